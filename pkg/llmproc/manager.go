// Package llmproc implements the LLM Subprocess Manager (spec §4.1, C1):
// locating, spawning, health-monitoring and shutting down the local model
// server subprocess, with on-demand model downloads.
//
// Grounded on pkg/ollama/client.go and pkg/llms/ollama.go for the HTTP
// shape, and on floegence-redeven-agent's internal/codeapp/codeserver
// runner/binpath/proc_unix/proc_windows files for the spawn-discover-
// supervise-kill process lifecycle the teacher itself does not implement
// for an LLM binary (the teacher's OllamaProvider only ever talks to an
// already-running server).
package llmproc

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/fleeterr"
)

// SpawnOptions controls platform-specific process launch behavior (spec §9
// "Process lifecycle"): a single struct keeps the OS-specific code narrow.
type SpawnOptions struct {
	NewSession bool // POSIX: new process group
	NoConsole  bool // Windows: detach from console
}

const (
	healthPollInterval  = 10 * time.Second
	healthProbeTimeout  = 5 * time.Second
	defaultStopGrace    = 10 * time.Second
	defaultStartTimeout = 30 * time.Second
)

// MetricsRecorder receives the Manager's Prometheus observations. Declared
// narrowly (structural typing, no import of pkg/fleetmetrics) so tests can
// pass a no-op or recording fake; *fleetmetrics.Metrics satisfies it via
// the methods in fleetmetrics/recorders.go.
type MetricsRecorder interface {
	RecordSpawn(outcome string)
	RecordHealthCheck(ok bool)
	RecordGenerate(streaming bool, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) RecordSpawn(string)           {}
func (noopMetrics) RecordHealthCheck(bool)       {}
func (noopMetrics) RecordGenerate(bool, float64) {}

// ManagerConfig configures a Manager instance.
type ManagerConfig struct {
	BinaryName string // e.g. "ollama"
	BaseURL    string // e.g. "http://localhost:11434"
	ServeArgs  []string
	Spawn      SpawnOptions
	Logger     *slog.Logger
	Metrics    MetricsRecorder
}

// Manager owns the local LLM subprocess's entire lifecycle.
type Manager struct {
	cfg    ManagerConfig
	client *ollamaClient
	logger *slog.Logger

	mu          sync.Mutex
	state       fleetmodel.ServerState
	cmd         *exec.Cmd
	binaryPath  string
	observers   []StateObserver
	healthCtx   context.Context
	healthStop  context.CancelFunc
	consecutive int // consecutive health-probe failures
}

// New creates a Manager. Callers normally construct exactly one per process
// since the subprocess handle is process-global by nature.
func New(cfg ManagerConfig) *Manager {
	if cfg.BinaryName == "" {
		cfg.BinaryName = "ollama"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &Manager{
		cfg:    cfg,
		client: newOllamaClient(cfg.BaseURL),
		logger: cfg.Logger,
		state:  fleetmodel.ServerStopped,
	}
}

// Subscribe registers an observer for state transitions and download
// progress. Existing state is not replayed.
func (m *Manager) Subscribe(o StateObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// State returns the current ServerState.
func (m *Manager) State() fleetmodel.ServerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(next fleetmodel.ServerState) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	observers := append([]StateObserver(nil), m.observers...)
	m.mu.Unlock()

	if prev == next {
		return
	}
	m.logger.Info("llmproc: state transition", "from", prev, "to", next)
	for _, o := range observers {
		o.OnStateChange(prev, next)
	}
}

// IsResponsive issues a lightweight health probe with a 5s deadline.
func (m *Manager) IsResponsive(ctx context.Context) bool {
	return m.client.versionProbe(ctx, healthProbeTimeout) == nil
}

// Start is idempotent: if the runtime is already responsive, it transitions
// straight to Running without spawning anything (spec §4.1, §8 round-trip
// property: "Starting an already-running Manager is a no-op").
func (m *Manager) Start(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}

	if m.IsResponsive(ctx) {
		m.cfg.Metrics.RecordSpawn("already_running")
		m.setState(fleetmodel.ServerRunning)
		m.startHealthMonitor()
		return nil
	}

	m.setState(fleetmodel.ServerStarting)

	bin, err := resolveBinary(m.cfg.BinaryName)
	if err != nil {
		m.cfg.Metrics.RecordSpawn("binary_not_found")
		m.setState(fleetmodel.ServerError)
		return err
	}

	m.mu.Lock()
	m.binaryPath = bin
	m.mu.Unlock()

	cmd := exec.Command(bin, m.cfg.ServeArgs...)
	applySpawnOptions(cmd, m.cfg.Spawn)

	if err := cmd.Start(); err != nil {
		m.cfg.Metrics.RecordSpawn("spawn_error")
		m.setState(fleetmodel.ServerError)
		return fleeterr.Wrap(fleeterr.SpawnError, "failed to spawn "+bin, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		ok := m.IsResponsive(probeCtx)
		cancel()
		if ok {
			m.cfg.Metrics.RecordSpawn("ok")
			m.setState(fleetmodel.ServerRunning)
			m.startHealthMonitor()
			return nil
		}
		select {
		case <-ctx.Done():
			m.cfg.Metrics.RecordSpawn("timeout")
			m.setState(fleetmodel.ServerError)
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	m.cfg.Metrics.RecordSpawn("timeout")
	m.setState(fleetmodel.ServerError)
	return fleeterr.New(fleeterr.SpawnError, fmt.Sprintf("%s did not become responsive within %s", bin, timeout))
}

// Stop sends a graceful termination signal, then force-kills the process
// group after defaultStopGrace, guaranteeing the state returns to Stopped.
func (m *Manager) Stop() {
	m.stopHealthMonitor()

	m.mu.Lock()
	cmd := m.cmd
	m.cmd = nil
	m.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = killProcessTree(cmd, false)
		done := make(chan struct{})
		go func() {
			_, _ = cmd.Process.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(defaultStopGrace):
			_ = killProcessTree(cmd, true)
			<-done
		}
	}

	m.setState(fleetmodel.ServerStopped)
}

// ListModels returns the runtime's currently installed models.
func (m *Manager) ListModels(ctx context.Context) ([]ModelRecord, error) {
	return m.client.listModels(ctx)
}

// EnsureModel pulls model if it is not already present, emitting
// DownloadProgress events to subscribers as it goes. If the model is
// already installed this is a zero-event no-op (spec §8 round-trip
// property).
func (m *Manager) EnsureModel(ctx context.Context, model fleetmodel.ModelIdentifier) error {
	models, err := m.ListModels(ctx)
	if err == nil {
		for _, rec := range models {
			if rec.Name == string(model) {
				return nil
			}
		}
	}

	pullCtx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()

	return m.client.pull(pullCtx, string(model), func(status string, completed, total uint64) {
		var percent float32
		if total > 0 {
			percent = float32(completed) / float32(total) * 100
			if percent > 100 {
				percent = 100
			}
		}
		progress := fleetmodel.DownloadProgress{
			Status:         status,
			CompletedBytes: completed,
			TotalBytes:     total,
			Percent:        percent,
		}
		m.mu.Lock()
		observers := append([]StateObserver(nil), m.observers...)
		m.mu.Unlock()
		for _, o := range observers {
			o.OnDownloadProgress(model, progress)
		}
	})
}

// Generate issues a blocking generation request.
func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	if m.State() != fleetmodel.ServerRunning {
		return GenerateResponse{}, fleeterr.New(fleeterr.HealthLost, "LLM subprocess is not in Running state")
	}
	started := time.Now()
	resp, err := m.client.generateBlocking(ctx, req)
	m.cfg.Metrics.RecordGenerate(false, time.Since(started).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return GenerateResponse{}, fleeterr.Wrap(fleeterr.LLMTimeout, "generate deadline exceeded", ctx.Err())
		}
		return GenerateResponse{}, fleeterr.Wrap(fleeterr.Internal, "generate failed", err)
	}
	return resp, nil
}

// GenerateStream issues a streaming generation request, invoking onChunk
// for every content fragment received until done.
func (m *Manager) GenerateStream(ctx context.Context, req GenerateRequest, onChunk func(content string, done bool)) error {
	if m.State() != fleetmodel.ServerRunning {
		return fleeterr.New(fleeterr.HealthLost, "LLM subprocess is not in Running state")
	}
	started := time.Now()
	err := m.client.generateStreaming(ctx, req, onChunk)
	m.cfg.Metrics.RecordGenerate(true, time.Since(started).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return fleeterr.Wrap(fleeterr.LLMTimeout, "generate stream deadline exceeded", ctx.Err())
		}
		return fleeterr.Wrap(fleeterr.Internal, "generate stream failed", err)
	}
	return nil
}

// startHealthMonitor launches the background poller described in spec §4.1:
// while Running, probe every 10s; two consecutive failures transition to
// Error. The Manager never self-restarts.
func (m *Manager) startHealthMonitor() {
	m.mu.Lock()
	if m.healthStop != nil {
		m.mu.Unlock()
		return // already running
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.healthCtx = ctx
	m.healthStop = cancel
	m.consecutive = 0
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(healthPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
				ok := m.IsResponsive(probeCtx)
				cancel()
				m.cfg.Metrics.RecordHealthCheck(ok)

				m.mu.Lock()
				if ok {
					m.consecutive = 0
					m.mu.Unlock()
					continue
				}
				m.consecutive++
				failures := m.consecutive
				m.mu.Unlock()

				if failures >= 2 {
					m.logger.Warn("llmproc: two consecutive health probes failed")
					m.setState(fleetmodel.ServerError)
					m.stopHealthMonitor()
					return
				}
			}
		}
	}()
}

func (m *Manager) stopHealthMonitor() {
	m.mu.Lock()
	stop := m.healthStop
	m.healthStop = nil
	m.healthCtx = nil
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
}
