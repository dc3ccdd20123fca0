package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Azure     AzureConfig     `koanf:"azure"`
	Recording RecordingConfig `koanf:"recording"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
	Models    []ModelListItem `koanf:"models"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// APIKey is the shared secret clients must send as a bearer token.
	APIKey          string        `koanf:"api_key"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// AzureConfig describes the Responses API deployment requests are forwarded to.
type AzureConfig struct {
	BaseURL      string `koanf:"base_url"`
	APIKey       string `koanf:"api_key"`
	Deployment   string `koanf:"deployment"`
	APIVersion   string `koanf:"api_version"`
	SummaryLevel string `koanf:"summary_level"` // auto, detailed, concise
	Truncation   string `koanf:"truncation"`    // auto, disabled
}

// ResponsesURL returns the full endpoint of the Responses API.
func (a AzureConfig) ResponsesURL() string {
	return fmt.Sprintf("%s/openai/responses?api-version=%s", strings.TrimRight(a.BaseURL, "/"), a.APIVersion)
}

type RecordingConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
	Redact bool   `koanf:"redact"`
}

type ModelListItem struct {
	ID      string `koanf:"id"`
	Object  string `koanf:"object"`
	OwnedBy string `koanf:"owned_by"`
	Created int64  `koanf:"created"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// legacyEnv maps the variable names used by earlier deployments onto config keys.
var legacyEnv = map[string]string{
	"SERVICE_API_KEY":     "server.api_key",
	"AZURE_BASE_URL":      "azure.base_url",
	"AZURE_API_KEY":       "azure.api_key",
	"AZURE_DEPLOYMENT":    "azure.deployment",
	"AZURE_API_VERSION":   "azure.api_version",
	"AZURE_SUMMARY_LEVEL": "azure.summary_level",
	"AZURE_TRUNCATION":    "azure.truncation",
	"RECORD_TRAFFIC":      "recording.enabled",
	"LOG_REDACT":          "log.redact",
}

var defaults = map[string]any{
	"server.port":             8080,
	"server.shutdown_timeout": "30s",
	"azure.deployment":        "gpt-5",
	"azure.api_version":       "2025-04-01-preview",
	"azure.summary_level":     "detailed",
	"azure.truncation":        "auto",
	"recording.path":          "./data/recordings.db",
	"telemetry.service_name":  "chat-responses-gateway",
	"log.level":               "info",
	"log.format":              "json",
	"log.redact":              true,
}

// DefaultModels mirrors the model ids the gateway can translate.
var DefaultModels = []ModelListItem{
	{ID: "gpt-high", Object: "model", OwnedBy: "openai", Created: 1686935002},
	{ID: "gpt-medium", Object: "model", OwnedBy: "openai", Created: 1686935002},
	{ID: "gpt-low", Object: "model", OwnedBy: "openai", Created: 1686935002},
}

// Load reads the YAML file at path (missing files are skipped), then the
// legacy environment variables, then GATEWAY_ prefixed variables where a
// double underscore separates levels (GATEWAY_AZURE__API_KEY).
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return legacyEnv[s]
	}), nil); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GATEWAY_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Server.APIKey = substituteEnvVars(cfg.Server.APIKey)
	cfg.Azure.APIKey = substituteEnvVars(cfg.Azure.APIKey)
	cfg.Azure.BaseURL = strings.TrimRight(substituteEnvVars(cfg.Azure.BaseURL), "/")

	if len(cfg.Models) == 0 {
		cfg.Models = append([]ModelListItem(nil), DefaultModels...)
	}

	return &cfg, nil
}

// Validate reports the settings the gateway cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.APIKey == "" {
		errs = append(errs, errors.New("server.api_key is required"))
	}
	if c.Azure.BaseURL == "" {
		errs = append(errs, errors.New("azure.base_url is required"))
	}
	if c.Azure.APIKey == "" {
		errs = append(errs, errors.New("azure.api_key is required"))
	}
	if c.Azure.Deployment == "" {
		errs = append(errs, errors.New("azure.deployment is required"))
	}
	return errors.Join(errs...)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
