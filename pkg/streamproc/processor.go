// Package streamproc implements the Stream Processor (spec §4.2, C2):
// consuming a live token stream on one channel, incrementally parsing the
// Chain-of-Thought JSON envelope, and dispatching bounded-cadence UI-update
// events, while remaining cancellable and tolerant of malformed output.
//
// Grounded on reasoning/chain_of_thought.go's own output-channel idiom
// (a goroutine writing into a buffered chan string until the channel is
// closed) and on itsneelabh-gomind's streaming-client test style for the
// incremental-chunk shape.
package streamproc

import (
	"context"
	"sync"
	"time"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
)

const (
	defaultChunkQueueSize = 256
	defaultUpdateInterval = 50 * time.Millisecond
	defaultUIBatchSize    = 10
)

// UIUpdate is an opaque, low-latency UI event derived from stream progress.
type UIUpdate struct {
	StreamID string
	Content  string
	Seq      uint64
}

// CompletionResult is what the completion channel carries: either a
// successfully parsed envelope-derived result, a parse failure carrying the
// raw text, or a cancellation.
type CompletionResult struct {
	Envelope    *Envelope
	RawText     string
	ParseFailed bool
	Cancelled   bool
}

// MetricsRecorder receives the Processor's Prometheus observations.
// Declared narrowly so *fleetmetrics.Metrics satisfies it structurally
// without streamproc importing pkg/fleetmetrics.
type MetricsRecorder interface {
	RecordChunk(step string)
	RecordQueueOverflow()
	RecordParseFailed()
}

type noopMetrics struct{}

func (noopMetrics) RecordChunk(string)   {}
func (noopMetrics) RecordQueueOverflow() {}
func (noopMetrics) RecordParseFailed()   {}

// Options configures a Processor.
type Options struct {
	UpdateInterval time.Duration // default 50ms
	QueueSize      int           // default 256
	Metrics        MetricsRecorder
}

// Processor consumes one stream at a time (spec §4.2: "rejects concurrent
// use"), emitting ReasoningSteps, UI updates and a single completion.
type Processor struct {
	opts Options

	mu       sync.Mutex
	active   bool
	streamID string

	chunks chan fleetmodel.StreamChunk
	steps  chan fleetmodel.ReasoningStep
	uiRaw  chan UIUpdate // written by emitUIUpdate, drained only by runUIDispatcher
	uiCh   chan UIUpdate // written only by runUIDispatcher, exposed via UIUpdates()
	done   chan CompletionResult
	errs   chan error

	cancel context.CancelFunc

	overflowCount int
}

// New constructs a Processor. A fresh Processor (or a Stop'd-and-reused one)
// is required per stream per spec §4.2.
func New(opts Options) *Processor {
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = defaultUpdateInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultChunkQueueSize
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &Processor{opts: opts}
}

// Steps returns the channel new ReasoningSteps are emitted on.
func (p *Processor) Steps() <-chan fleetmodel.ReasoningStep { return p.steps }

// UIUpdates returns the bounded-cadence UI event channel.
func (p *Processor) UIUpdates() <-chan UIUpdate { return p.uiCh }

// Completion returns the single-value completion channel.
func (p *Processor) Completion() <-chan CompletionResult { return p.done }

// Errors returns the non-fatal diagnostics channel (e.g. ChunkQueueOverflow).
func (p *Processor) Errors() <-chan error { return p.errs }

// Start initializes a fresh accumulator for streamID and launches the
// parser and UI dispatcher tasks. It errors if a stream is already active.
func (p *Processor) Start(ctx context.Context, streamID string) error {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return ErrAlreadyActive
	}
	p.active = true
	p.streamID = streamID
	p.overflowCount = 0
	p.chunks = make(chan fleetmodel.StreamChunk, p.opts.QueueSize)
	p.steps = make(chan fleetmodel.ReasoningStep, 64)
	p.uiRaw = make(chan UIUpdate, 256)
	p.uiCh = make(chan UIUpdate, 256)
	p.done = make(chan CompletionResult, 1)
	p.errs = make(chan error, 16)
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.runParser(runCtx, streamID)
	}()
	go func() {
		defer wg.Done()
		p.runUIDispatcher(runCtx, streamID)
	}()

	go func() {
		wg.Wait()
		p.mu.Lock()
		p.active = false
		p.mu.Unlock()
		close(p.steps)
		close(p.uiRaw)
		close(p.uiCh)
		close(p.errs)
	}()

	return nil
}

// PushChunk enqueues a chunk for processing. It is non-blocking: on queue
// overflow the oldest chunk is discarded (drop-oldest policy) and a counter
// is incremented, per spec §4.2.
func (p *Processor) PushChunk(content string, seq uint64, final bool) {
	p.mu.Lock()
	ch := p.chunks
	active := p.active
	p.mu.Unlock()
	if !active || ch == nil {
		return
	}

	chunk := fleetmodel.StreamChunk{Content: content, ReceivedAt: time.Now(), Seq: seq, Final: final}
	select {
	case ch <- chunk:
	default:
		// Queue full: drop the oldest, then push.
		select {
		case <-ch:
			p.mu.Lock()
			p.overflowCount++
			p.mu.Unlock()
			p.opts.Metrics.RecordQueueOverflow()
			select {
			case p.errs <- ErrQueueOverflow:
			default:
			}
		default:
		}
		select {
		case ch <- chunk:
		default:
		}
	}
}

// Stop cancels in-flight parsing and releases resources; the completion
// channel receives a Cancelled result if no completion was already sent.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// OverflowCount reports how many chunks have been dropped due to queue
// overflow for the current/most recent stream.
func (p *Processor) OverflowCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overflowCount
}
