// Package reasoning implements the Reasoning Engine (spec §4.4, C4):
// it drives one request at a time from raw text through the LLM Manager and
// Stream Processor to a validated Interpretation, tracking state and a
// bounded result history.
//
// Grounded on reasoning/state.go's ReasoningState idiom (a per-run state
// value carrying iteration/config/output-channel bookkeeping) and
// reasoning/chain_of_thought.go's single-in-flight orchestration loop.
package reasoning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/llmproc"
	"github.com/fleetpilot/corepipe/pkg/promptbuild"
	"github.com/fleetpilot/corepipe/pkg/ringbuffer"
	"github.com/fleetpilot/corepipe/pkg/streamproc"
)

// State is the engine's lifecycle state (spec §4.4 state machine).
type State int

const (
	Idle State = iota
	Streaming
	Processing
	Completed
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Streaming:
		return "Streaming"
	case Processing:
		return "Processing"
	case Completed:
		return "Completed"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// ResultStatus is what Result returns alongside a possibly-nil result.
type ResultStatus int

const (
	Ready ResultStatus = iota
	NotReady
	NotFound
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 2048
	historyCapacity    = 1000
	historyTrimTo      = 500
	jobQueueSize       = 64
)

// SubmitOptions configures one Submit call. Zero values fall back to the
// spec-mandated defaults.
type SubmitOptions struct {
	Context     map[string]string
	Temperature float64 // default 0.1
	MaxTokens   int     // default 2048
	Streaming   *bool   // default true; pointer so false can be expressed
}

// Generator is the subset of *llmproc.Manager the engine depends on,
// declared narrowly so tests can substitute a fake.
type Generator interface {
	Generate(ctx context.Context, req llmproc.GenerateRequest) (llmproc.GenerateResponse, error)
	GenerateStream(ctx context.Context, req llmproc.GenerateRequest, onChunk func(content string, done bool)) error
}

// MetricsRecorder receives the Engine's Prometheus observations. Declared
// narrowly so *fleetmetrics.Metrics satisfies it structurally without this
// package importing pkg/fleetmetrics.
type MetricsRecorder interface {
	RecordSubmit(state string)
	RecordDuration(seconds float64)
	SetQueueDepth(n int)
}

type noopMetrics struct{}

func (noopMetrics) RecordSubmit(string)    {}
func (noopMetrics) RecordDuration(float64) {}
func (noopMetrics) SetQueueDepth(int)      {}

// Config configures an Engine.
type Config struct {
	Model      fleetmodel.ModelIdentifier
	Generator  Generator
	SystemRole promptbuild.Slots
	Metrics    MetricsRecorder
}

type job struct {
	requestID string
	text      string
	opts      SubmitOptions
}

// Engine drives requests through the pipeline one at a time; callers wanting
// parallelism instantiate multiple Engines (spec §4.4 concurrency contract).
type Engine struct {
	cfg Config

	mu      sync.Mutex
	state   State
	results map[string]*fleetmodel.ReasoningResult
	pending map[string]bool
	history *ringbuffer.Buffer[fleetmodel.ReasoningResult]

	totalCount      int
	successfulCount int
	totalDurationMs float64

	jobs chan job
	once sync.Once
}

// New constructs an Engine and starts its single worker goroutine.
func New(cfg Config) *Engine {
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	e := &Engine{
		cfg:     cfg,
		state:   Idle,
		results: make(map[string]*fleetmodel.ReasoningResult),
		pending: make(map[string]bool),
		history: ringbuffer.New[fleetmodel.ReasoningResult](historyCapacity, historyTrimTo),
		jobs:    make(chan job, jobQueueSize),
	}
	go e.worker()
	return e
}

// Submit enqueues text for processing and returns a request ID immediately;
// it never blocks the caller on model latency (spec §4.4).
func (e *Engine) Submit(ctx context.Context, text string, opts SubmitOptions) (string, error) {
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Streaming == nil {
		streaming := true
		opts.Streaming = &streaming
	}

	requestID := uuid.NewString()
	e.mu.Lock()
	e.pending[requestID] = true
	depth := len(e.pending)
	e.mu.Unlock()
	e.cfg.Metrics.SetQueueDepth(depth)

	select {
	case e.jobs <- job{requestID: requestID, text: text, opts: opts}:
	default:
		e.mu.Lock()
		delete(e.pending, requestID)
		e.mu.Unlock()
		return "", fmt.Errorf("reasoning: job queue full")
	}
	return requestID, nil
}

// Result returns the outcome for requestID, or NotReady/NotFound.
func (e *Engine) Result(requestID string) (*fleetmodel.ReasoningResult, ResultStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.results[requestID]; ok {
		return r, Ready
	}
	if e.pending[requestID] {
		return nil, NotReady
	}
	return nil, NotFound
}

// Latest returns the most recently completed result, if any.
func (e *Engine) Latest() (*fleetmodel.ReasoningResult, bool) {
	latest, ok := e.history.Latest()
	if !ok {
		return nil, false
	}
	return &latest, true
}

// Stats reports cumulative engine statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	var successRate float64
	var avgMs float64
	if e.totalCount > 0 {
		successRate = float64(e.successfulCount) / float64(e.totalCount)
		avgMs = e.totalDurationMs / float64(e.totalCount)
	}
	return Stats{
		Total:               e.totalCount,
		Successful:          e.successfulCount,
		SuccessRate:         successRate,
		AverageProcessingMs: avgMs,
		State:               e.state,
	}
}

// Stats is the snapshot Engine.Stats returns.
type Stats struct {
	Total               int
	Successful          int
	SuccessRate         float64
	AverageProcessingMs float64
	State               State
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// worker is the engine's single model-call serializer: it drains jobs one
// at a time, guaranteeing at most one in-flight LLM request per Engine.
func (e *Engine) worker() {
	for j := range e.jobs {
		e.run(j)
	}
}

func (e *Engine) run(j job) {
	startedAt := time.Now()
	streaming := *j.opts.Streaming

	if streaming {
		e.setState(Streaming)
	} else {
		e.setState(Processing)
	}

	system := promptbuild.BuildSystemPrompt(e.cfg.SystemRole)
	userPrompt := promptbuild.BuildUserPrompt(j.text, j.opts.Context)

	var result fleetmodel.ReasoningResult
	var err error
	if streaming {
		result, err = e.runStreaming(j, system, userPrompt, startedAt)
	} else {
		result, err = e.runBlocking(j, system, userPrompt, startedAt)
	}

	e.mu.Lock()
	e.totalCount++
	e.totalDurationMs += float64(result.ProcessingTime.Milliseconds())
	if err == nil && !result.ParseFailed {
		e.successfulCount++
	}
	delete(e.pending, j.requestID)
	e.results[j.requestID] = &result
	depth := len(e.pending)
	e.mu.Unlock()

	e.cfg.Metrics.SetQueueDepth(depth)
	e.cfg.Metrics.RecordDuration(result.ProcessingTime.Seconds())

	e.history.Append(result)

	if err != nil {
		e.cfg.Metrics.RecordSubmit("error")
		e.setState(Error)
	} else {
		e.cfg.Metrics.RecordSubmit("completed")
		e.setState(Completed)
	}
}

func (e *Engine) runStreaming(j job, system, userPrompt string, startedAt time.Time) (fleetmodel.ReasoningResult, error) {
	ctx := context.Background()
	proc := streamproc.New(streamproc.Options{})
	if err := proc.Start(ctx, j.requestID); err != nil {
		return buildHeuristicResult(j.requestID, "", startedAt), err
	}
	defer proc.Stop()

	var seq uint64
	genErr := e.cfg.Generator.GenerateStream(ctx, llmproc.GenerateRequest{
		Model:       e.cfg.Model,
		System:      system,
		Prompt:      userPrompt,
		Temperature: j.opts.Temperature,
		MaxTokens:   j.opts.MaxTokens,
		Stream:      true,
	}, func(content string, done bool) {
		proc.PushChunk(content, seq, done)
		seq++
	})

	// Drain steps concurrently so emitNewSteps never blocks on a full
	// channel while we wait on Completion below.
	go func() {
		for range proc.Steps() {
		}
	}()
	go func() {
		for range proc.UIUpdates() {
		}
	}()

	select {
	case completion := <-proc.Completion():
		result := resultFromCompletion(j.requestID, completion, startedAt)
		if genErr != nil {
			return result, genErr
		}
		return result, nil
	case <-time.After(2 * time.Minute):
		return buildHeuristicResult(j.requestID, "", startedAt), fmt.Errorf("reasoning: timed out waiting for stream completion")
	}
}

func (e *Engine) runBlocking(j job, system, userPrompt string, startedAt time.Time) (fleetmodel.ReasoningResult, error) {
	resp, err := e.cfg.Generator.Generate(context.Background(), llmproc.GenerateRequest{
		Model:       e.cfg.Model,
		System:      system,
		Prompt:      userPrompt,
		Temperature: j.opts.Temperature,
		MaxTokens:   j.opts.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return buildHeuristicResult(j.requestID, "", startedAt), err
	}
	return buildFromRawResponse(j.requestID, resp.Response, startedAt), nil
}
