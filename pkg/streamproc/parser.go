package streamproc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
)

// ErrAlreadyActive is returned by Start when a stream is already running.
var ErrAlreadyActive = errors.New("streamproc: a stream is already active on this processor")

// ErrQueueOverflow is sent on the errors channel when PushChunk drops a
// chunk due to a full queue.
var ErrQueueOverflow = errors.New("streamproc: chunk queue overflow, oldest chunk dropped")

// runParser is the single owner of the accumulator. It reads chunks FIFO,
// repeatedly scans for balanced top-level `{...}` substrings, and emits any
// steps not already emitted (tracked by ordinal index so re-parses never
// re-emit a step).
func (p *Processor) runParser(ctx context.Context, streamID string) {
	var accumulator strings.Builder
	emittedSteps := 0
	var finalEnvelope *Envelope

	sendCompletion := func(result CompletionResult) {
		select {
		case p.done <- result:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			sendCompletion(CompletionResult{Cancelled: true})
			return
		case chunk, ok := <-p.chunks:
			if !ok {
				return
			}
			accumulator.WriteString(chunk.Content)
			p.emitUIUpdate(streamID, chunk)

			for _, candidate := range extractBalancedObjects(accumulator.String()) {
				env, ok := parseEnvelope(candidate)
				if !ok {
					continue
				}
				finalEnvelope = env
				emittedSteps = p.emitNewSteps(env, emittedSteps)
			}

			if chunk.Final {
				if finalEnvelope == nil {
					if env, ok := recoverLongestValidPrefix(accumulator.String()); ok {
						finalEnvelope = env
						emittedSteps = p.emitNewSteps(env, emittedSteps)
					}
				}
				if finalEnvelope != nil {
					sendCompletion(CompletionResult{Envelope: finalEnvelope})
				} else {
					p.opts.Metrics.RecordParseFailed()
					sendCompletion(CompletionResult{ParseFailed: true, RawText: accumulator.String()})
				}
				return
			}
		}
	}
}

// emitNewSteps emits every step beyond alreadyEmitted and returns the new
// total emitted count, guaranteeing no ordinal is ever emitted twice
// (spec §8 universal invariant 4).
func (p *Processor) emitNewSteps(env *Envelope, alreadyEmitted int) int {
	if env == nil || len(env.ChainOfThought) <= alreadyEmitted {
		return alreadyEmitted
	}
	for _, raw := range env.ChainOfThought[alreadyEmitted:] {
		step := fleetmodel.ReasoningStep{
			Name:      raw.Name,
			Narrative: raw.Narrative,
			Findings:  raw.Findings,
		}
		if raw.Confidence != nil {
			step.Confidence = raw.Confidence
		}
		if len(raw.Entities) > 0 {
			step.Entities = make(map[fleetmodel.EntityKind][]string, len(raw.Entities))
			for k, v := range raw.Entities {
				step.Entities[fleetmodel.EntityKind(k)] = v
			}
		}
		for _, call := range raw.APICalls {
			step.APICalls = append(step.APICalls, fleetmodel.APICallDraft{
				Method:   call.Method,
				Endpoint: call.Endpoint,
				Body:     call.Body,
				Purpose:  call.Purpose,
			})
		}
		p.opts.Metrics.RecordChunk(step.Name)
		select {
		case p.steps <- step:
		default:
			// steps channel has its own buffer; if a consumer is slow we
			// still must not block the parser indefinitely, so spin one
			// retry with a short deadline before giving up on this step.
			select {
			case p.steps <- step:
			case <-time.After(time.Second):
			}
		}
	}
	return len(env.ChainOfThought)
}

func (p *Processor) emitUIUpdate(streamID string, chunk fleetmodel.StreamChunk) {
	update := UIUpdate{StreamID: streamID, Content: chunk.Content, Seq: chunk.Seq}
	select {
	case p.uiRaw <- update:
	default:
		// Drop-oldest on the UI side: backpressure here must never stall
		// the parser (spec §4.2).
		select {
		case <-p.uiRaw:
		default:
		}
		select {
		case p.uiRaw <- update:
		default:
		}
	}
}

// runUIDispatcher is the sole reader of uiRaw and the sole writer of uiCh
// (the channel exposed via UIUpdates()). It batches up to defaultUIBatchSize
// raw updates per tick at the configured update interval, forwarding each
// batched update downstream with the same drop-oldest policy.
func (p *Processor) runUIDispatcher(ctx context.Context, streamID string) {
	ticker := time.NewTicker(p.opts.UpdateInterval)
	defer ticker.Stop()

	var batch []UIUpdate
	flush := func() {
		for _, u := range batch {
			select {
			case p.uiCh <- u:
			default:
				select {
				case <-p.uiCh:
				default:
				}
				select {
				case p.uiCh <- u:
				default:
				}
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		case update, ok := <-p.uiRaw:
			if !ok {
				flush()
				return
			}
			batch = append(batch, update)
			if len(batch) >= defaultUIBatchSize {
				flush()
			}
		}
	}
}

