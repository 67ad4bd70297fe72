// Package fleetconfig loads and watches the pipeline's single YAML
// configuration file (spec §6 "CLI surface"): LLM runtime location and
// model, Fleet API endpoint and auth mode, template directory, logging,
// and metrics binding.
//
// Grounded on pkg/config/config.go's root Config struct (a tree of
// component configs loaded from one YAML document) and
// pkg/config/provider/file.go's file-watch idiom, narrowed from Hector's
// multi-agent/multi-LLM tree to the single-pipeline shape this core needs.
package fleetconfig

import "time"

// Config is the root configuration document.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	FleetAPI  FleetAPIConfig  `yaml:"fleet_api"`
	Templates TemplatesConfig `yaml:"templates"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

// LLMConfig points at the Ollama-shaped runtime the LLM Subprocess
// Manager supervises (spec §6 "LLM runtime HTTP").
type LLMConfig struct {
	BinaryPath string `yaml:"binary_path"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
}

// FleetAPIConfig describes the external Fleet API the Approval State
// Machine hands executed requests to (spec §6 "Fleet API").
type FleetAPIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	AuthMode     string        `yaml:"auth_mode"` // cookie | bearer | oauth | api_key
	SSLVerify    *bool         `yaml:"ssl_verify"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RequestCaps  time.Duration `yaml:"request_timeout"`
}

// TemplatesConfig points at the directory of YAML/JSON template files
// the Template Store loads at startup.
type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig configures the fleetlog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // simple | verbose
	File   string `yaml:"file"`   // empty = stderr
}

// MetricsConfig configures the Prometheus metrics HTTP listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// SecretsConfig configures where fleetsecrets stores encrypted
// credentials and which app identity derives the store key.
type SecretsConfig struct {
	Dir         string `yaml:"dir"`
	AppIdentity string `yaml:"app_identity"`
}

// Defaults returns the configuration baseline applied before a file or
// environment overrides are layered on, mirroring the teacher's
// zero-config fallback philosophy (pkg/config/zero_config.go).
func Defaults() Config {
	sslVerify := true
	return Config{
		LLM: LLMConfig{
			BaseURL: "http://localhost:11434",
			Model:   "qwen2.5:14b",
		},
		FleetAPI: FleetAPIConfig{
			SSLVerify:    &sslVerify,
			MaxRetries:   3,
			RetryBackoff: 2 * time.Second,
			RequestCaps:  30 * time.Second,
		},
		Templates: TemplatesConfig{
			Dir: "./templates",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "simple",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Secrets: SecretsConfig{
			Dir:         ".fleet-nlp-core",
			AppIdentity: "fleet-nlp-core",
		},
	}
}
