package fleetconfig

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the environment-variable prefix ApplyEnvOverrides uses
// when Load is called without an explicit one.
const EnvPrefix = "FLEETNLPCORE"

// Load reads path (if non-empty and present), decodes it over Defaults(),
// expands ${VAR} references, and applies FLEETNLPCORE_* environment
// overrides. A missing path is not an error: the zero-config defaults
// apply, matching pkg/config/zero_config.go's "config is optional" stance.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return finish(cfg), nil
			}
			return cfg, fmt.Errorf("fleetconfig: read %s: %w", path, err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("fleetconfig: parse %s: %w", path, err)
		}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "yaml",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		})
		if err != nil {
			return cfg, fmt.Errorf("fleetconfig: init decoder: %w", err)
		}
		if err := decoder.Decode(raw); err != nil {
			return cfg, fmt.Errorf("fleetconfig: decode %s: %w", path, err)
		}
	}

	return finish(cfg), nil
}

func finish(cfg Config) Config {
	expandStrings(&cfg)
	ApplyEnvOverrides(&cfg, EnvPrefix)
	return cfg
}

// Validate checks the handful of invariants the pipeline cannot run
// without: a Fleet API base URL once an auth mode is configured, and a
// recognized auth mode.
func Validate(cfg Config) error {
	switch cfg.FleetAPI.AuthMode {
	case "", "cookie", "bearer", "oauth", "api_key":
	default:
		return fmt.Errorf("fleetconfig: unknown fleet_api.auth_mode %q", cfg.FleetAPI.AuthMode)
	}
	if cfg.FleetAPI.AuthMode != "" && cfg.FleetAPI.BaseURL == "" {
		return fmt.Errorf("fleetconfig: fleet_api.base_url is required when auth_mode is set")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("fleetconfig: unknown logging.level %q", cfg.Logging.Level)
	}
	return nil
}
