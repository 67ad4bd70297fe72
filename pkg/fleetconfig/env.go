package fleetconfig

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(?::-(.*?))?\}`)

// expandEnvVars substitutes ${VAR} and ${VAR:-default} references in s,
// matching pkg/config/env.go's ExpandEnvVarsInData pattern.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		name, def := parts[1], parts[2]
		if val := os.Getenv(name); val != "" {
			return val
		}
		return def
	})
}

// LoadEnvFiles loads .env.local then .env into the process environment,
// ignoring a missing file (grounded on pkg/config/env.go's LoadEnvFiles).
func LoadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// ApplyEnvOverrides applies APPNAME_DOT_PATH environment variables over
// cfg, per spec §6's "environment variables ... override configuration
// keys via dot-path lowercasing". prefix is the app name in upper case
// (e.g. "FLEETNLPCORE").
func ApplyEnvOverrides(cfg *Config, prefix string) {
	target := prefix + "_"
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, target) {
			continue
		}
		path := strings.ToLower(strings.TrimPrefix(name, target))
		path = strings.ReplaceAll(path, "_", ".")
		setDotPath(cfg, path, value)
	}
}

// setDotPath applies value to the handful of dot-paths the config schema
// actually exposes; unknown paths are ignored rather than erroring, since
// env override is a best-effort convenience layer over the YAML file.
func setDotPath(cfg *Config, path, value string) {
	switch path {
	case "llm.base.url", "llm.baseurl":
		cfg.LLM.BaseURL = value
	case "llm.model":
		cfg.LLM.Model = value
	case "llm.binary.path", "llm.binarypath":
		cfg.LLM.BinaryPath = value
	case "fleet.api.base.url", "fleetapi.baseurl":
		cfg.FleetAPI.BaseURL = value
	case "fleet.api.auth.mode", "fleetapi.authmode":
		cfg.FleetAPI.AuthMode = value
	case "fleet.api.ssl.verify", "fleetapi.sslverify":
		if b, err := strconv.ParseBool(value); err == nil {
			cfg.FleetAPI.SSLVerify = &b
		}
	case "templates.dir":
		cfg.Templates.Dir = value
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.format":
		cfg.Logging.Format = value
	case "logging.file":
		cfg.Logging.File = value
	case "metrics.addr":
		cfg.Metrics.Addr = value
	case "metrics.enabled":
		if b, err := strconv.ParseBool(value); err == nil {
			cfg.Metrics.Enabled = b
		}
	case "secrets.dir":
		cfg.Secrets.Dir = value
	case "secrets.app.identity", "secrets.appidentity":
		cfg.Secrets.AppIdentity = value
	}
}

// expandStrings walks every string field of cfg that may legitimately
// carry an env-var reference, applying expandEnvVars in place.
func expandStrings(cfg *Config) {
	cfg.LLM.BaseURL = expandEnvVars(cfg.LLM.BaseURL)
	cfg.LLM.Model = expandEnvVars(cfg.LLM.Model)
	cfg.LLM.BinaryPath = expandEnvVars(cfg.LLM.BinaryPath)
	cfg.FleetAPI.BaseURL = expandEnvVars(cfg.FleetAPI.BaseURL)
	cfg.FleetAPI.AuthMode = expandEnvVars(cfg.FleetAPI.AuthMode)
	cfg.Templates.Dir = expandEnvVars(cfg.Templates.Dir)
	cfg.Logging.File = expandEnvVars(cfg.Logging.File)
	cfg.Secrets.Dir = expandEnvVars(cfg.Secrets.Dir)
	cfg.Secrets.AppIdentity = expandEnvVars(cfg.Secrets.AppIdentity)
}
