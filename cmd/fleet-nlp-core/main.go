// Command fleet-nlp-core is the CLI for the fleet natural-language request
// pipeline. It is a single binary with no subcommands (spec §6 "CLI
// surface"): every behavior is a flag on the root command.
//
// Usage:
//
//	fleet-nlp-core --config fleet-nlp-core.yaml --input "unlock vehicle V123"
//	fleet-nlp-core --config fleet-nlp-core.yaml
//
// Grounded on cmd/hector/main.go's kong.Parse / logger-before-config /
// ctx.Run / ctx.FatalIfErrorf shape and its signal-handling goroutine,
// trimmed from a multi-subcommand server CLI down to one flags-only
// command that drives a single request through pkg/fleetpipeline.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	corepipe "github.com/fleetpilot/corepipe"
	"github.com/fleetpilot/corepipe/pkg/approval"
	"github.com/fleetpilot/corepipe/pkg/fleetapi"
	"github.com/fleetpilot/corepipe/pkg/fleetconfig"
	"github.com/fleetpilot/corepipe/pkg/fleeterr"
	"github.com/fleetpilot/corepipe/pkg/fleetlog"
	"github.com/fleetpilot/corepipe/pkg/fleetmetrics"
	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/fleetpipeline"
	"github.com/fleetpilot/corepipe/pkg/fleetsecrets"
	"github.com/fleetpilot/corepipe/pkg/llmproc"
	"github.com/fleetpilot/corepipe/pkg/promptbuild"
	"github.com/fleetpilot/corepipe/pkg/reasoning"
	"github.com/fleetpilot/corepipe/pkg/templates"
)

// CLI defines the entire command surface: flags only, no subcommands.
type CLI struct {
	Config      string `short:"c" help:"Path to config file." type:"path"`
	Input       string `short:"i" help:"Natural-language request text. Omit to read requests from stdin, one per line."`
	AutoApprove bool   `name:"auto-approve" help:"Skip the interactive approval prompt and execute immediately."`
	Version     bool   `help:"Print version information and exit."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

func main() {
	cli := CLI{}
	kong.Parse(&cli,
		kong.Name("fleet-nlp-core"),
		kong.Description("Natural-language fleet request pipeline"),
		kong.UsageOnError(),
	)

	if cli.Version {
		fmt.Println(corepipe.GetVersion().String())
		os.Exit(0)
	}

	logOutput := os.Stderr
	if cli.LogFile != "" {
		f, err := os.OpenFile(cli.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fleet-nlp-core: open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOutput = f
	}
	logger := fleetlog.Init(fleetlog.ParseLevel(cli.LogLevel), logOutput, cli.LogFormat)

	if err := run(cli, logger); err != nil {
		var coreErr *fleeterr.CoreError
		if errors.As(err, &coreErr) && coreErr.Recoverable() {
			fmt.Fprintf(os.Stderr, "fleet-nlp-core: %v (retryable, try again)\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "fleet-nlp-core: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(cli CLI, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	cfg, err := fleetconfig.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := fleetconfig.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := fleetsecrets.Open(cfg.Secrets.Dir, cfg.Secrets.AppIdentity); err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	metrics := fleetmetrics.New()
	if cfg.Metrics.Enabled {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	mgr := llmproc.New(llmproc.ManagerConfig{
		BinaryName: "ollama",
		BaseURL:    cfg.LLM.BaseURL,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err := mgr.Start(ctx, 30*time.Second); err != nil {
		return fmt.Errorf("start llm runtime: %w", err)
	}
	defer mgr.Stop()

	model := fleetmodel.ModelIdentifier(cfg.LLM.Model)
	if err := mgr.EnsureModel(ctx, model); err != nil {
		return fmt.Errorf("ensure model %s: %w", model, err)
	}

	store := templates.New()
	store.SetMetrics(metrics)
	if err := templates.LoadDir(store, cfg.Templates.Dir); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	engine := reasoning.New(reasoning.Config{
		Model:      model,
		Generator:  mgr,
		SystemRole: promptbuild.Slots{},
		Metrics:    metrics,
	})

	registry := approval.NewRegistry()

	client := fleetapi.New(cfg.FleetAPI.BaseURL,
		fleetapi.WithAuth(authConfigFor(cfg.FleetAPI.AuthMode)),
		fleetapi.WithMaxRetries(cfg.FleetAPI.MaxRetries),
		fleetapi.WithBackoffDelay(cfg.FleetAPI.RetryBackoff),
		fleetapi.WithRequestTimeout(cfg.FleetAPI.RequestCaps),
		fleetapi.WithTLSConfig(fleetapi.TLSConfig{InsecureSkipVerify: cfg.FleetAPI.SSLVerify != nil && !*cfg.FleetAPI.SSLVerify}),
		fleetapi.WithLogger(logger),
	)

	p := fleetpipeline.New(fleetpipeline.Config{
		Engine:      engine,
		Store:       store,
		Generator:   mgr,
		Registry:    registry,
		Client:      client,
		Metrics:     metrics,
		Model:       model,
		Logger:      logger,
		AutoApprove: cli.AutoApprove,
		Confirm:     confirmAtPrompt,
	})

	if cli.Input != "" {
		_, err := p.Handle(ctx, cli.Input)
		return err
	}
	return interactive(ctx, p)
}

// interactive reads one request per line from stdin until EOF or
// cancellation, matching cmd/hector's direct-chat reader loop but without
// its slash-command vocabulary; this CLI has nothing to configure mid-run.
func interactive(ctx context.Context, p *fleetpipeline.Pipeline) error {
	reader := bufio.NewScanner(os.Stdin)
	for reader.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		if _, err := p.Handle(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "fleet-nlp-core: %v\n", err)
		}
	}
	return reader.Err()
}

func authConfigFor(mode string) fleetapi.AuthConfig {
	switch mode {
	case "bearer":
		return fleetapi.AuthConfig{Mode: fleetapi.AuthBearer, BearerToken: os.Getenv("FLEETNLPCORE_FLEET_API_TOKEN")}
	case "oauth":
		return fleetapi.AuthConfig{Mode: fleetapi.AuthOAuth, BearerToken: os.Getenv("FLEETNLPCORE_FLEET_API_TOKEN")}
	case "api_key":
		return fleetapi.AuthConfig{Mode: fleetapi.AuthAPIKey, APIKeyValue: os.Getenv("FLEETNLPCORE_FLEET_API_KEY")}
	case "cookie":
		return fleetapi.AuthConfig{Mode: fleetapi.AuthCookie, CookieName: "session", CookieValue: os.Getenv("FLEETNLPCORE_FLEET_API_COOKIE")}
	default:
		return fleetapi.AuthConfig{}
	}
}

// confirmAtPrompt is the interactive approval gate: it prints the filled
// request and any validation findings, then reads a y/N answer from stdin.
func confirmAtPrompt(request map[string]any, findings []fleetmodel.ValidationFinding) bool {
	for _, f := range findings {
		fmt.Printf("  [%s] %s: %s\n", f.Severity, f.Field, f.Message)
		if f.Severity == fleetmodel.SeverityError {
			return false
		}
	}
	fmt.Println("proposed request:")
	for k, v := range request {
		fmt.Printf("  %s: %v\n", k, v)
	}
	fmt.Print("approve? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
