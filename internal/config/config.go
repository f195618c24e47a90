// Package config defines the process configuration for the fetch gateway.
// Configuration is loaded once at startup (Lambda cold start or server boot)
// and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any invalid value causes startup to fail fast.
package config

import "time"

// Config is the top-level configuration struct. Sub-components receive only
// the subset they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"fetchgate"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Fetch         FetchConfig
	Security      SecurityConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds inbound HTTP settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// RequestTimeout is the per-request context deadline. It models the
	// hosting platform's ceiling and must exceed Fetch.Timeout.
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s" validate:"gt=0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s" validate:"gt=0"`
}

// FetchConfig bounds outbound fetches.
type FetchConfig struct {
	Timeout        time.Duration `envconfig:"FETCH_TIMEOUT" default:"9s" validate:"gt=0"`
	MaxBodyBytes   int64         `envconfig:"FETCH_MAX_BODY_BYTES" default:"4718592" validate:"gt=0"`
	MaxRedirects   int           `envconfig:"FETCH_MAX_REDIRECTS" default:"5" validate:"min=1,max=20"`
	UserAgent      string        `envconfig:"FETCH_USER_AGENT" default:"fetchgate/1.0 (+html fetch proxy)" validate:"required"`
	AllowedSchemes []string      `envconfig:"FETCH_ALLOWED_SCHEMES" default:"http,https" validate:"min=1,dive,oneof=http https"`
}

// SecurityConfig holds target blocklist extensions and CORS settings.
type SecurityConfig struct {
	// BlockedHostnames extends the built-in blocklist. Entries from
	// BlocklistFile are merged in by the loader.
	BlockedHostnames   []string `envconfig:"BLOCKED_HOSTNAMES"`
	BlocklistFile      string   `envconfig:"BLOCKLIST_FILE"`
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// AuditQueueURL receives rejected-target audit events. Empty disables
	// publishing.
	AuditQueueURL string `envconfig:"AUDIT_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"FetchGate"`
}

// IsLocal reports whether the process runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string `ignored:"true"`
	Commit    string `ignored:"true"`
	BuildTime string `ignored:"true"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching values from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrBlocklist indicates the blocklist file could not be read or parsed.
	ErrBlocklist ConfigErrorType = "BLOCKLIST_FAILED"
)
