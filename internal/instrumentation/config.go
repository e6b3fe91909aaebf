package instrumentation

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: inboxcopilot)
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// InstanceID identifies this process (default: hostname)
	InstanceID string

	// Environment is the deployment environment, e.g. "dev" or "prod"
	Environment string

	// Transport is the MCP transport the process serves ("stdio" or
	// "streamable-http"). Set by the serve command.
	Transport string

	// Enabled determines if instrumentation is active (default: true)
	// Set to false via INSTRUMENTATION_ENABLED=false to disable metrics and tracing
	Enabled bool

	// MetricsExporter specifies the metrics exporter type
	// Options: "prometheus", "otlp", "stdout" (default: "prometheus")
	MetricsExporter string

	// TracingExporter specifies the tracing exporter type
	// Options: "otlp", "stdout", "none" (default: "none")
	TracingExporter string

	// OTLPEndpoint is the OTLP collector endpoint
	// Example: "localhost:4318" (without protocol prefix)
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP export. Spans carry thread ids and
	// agent ids, so keep it off outside local development.
	OTLPInsecure bool

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0, default: 0.1)
	TraceSamplingRate float64

	// MetricsPath is where the metrics server exposes Prometheus metrics
	// (default: "/metrics")
	MetricsPath string

	// DetailedLabels adds agent session identifiers to agent metrics. Keep
	// it off in production; every session is a new series.
	DetailedLabels bool

	// AuditLogging configures audit logging behavior.
	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	// Audit logs record every consequential action (replies and follow-ups
	// sent, schedule changes).
	Enabled bool

	// IncludePII controls whether subjects and recipients are included in
	// audit logs. When false (default), only thread identifiers are logged.
	IncludePII bool
}

// DefaultConfig returns the configuration described by the process
// environment.
func DefaultConfig() Config {
	return configFromEnv(os.Getenv)
}

// configFromEnv builds a Config from getenv, falling back to defaults for
// unset or unparsable values.
func configFromEnv(getenv func(string) string) Config {
	env := envReader(getenv)

	instance := env.str("OTEL_SERVICE_INSTANCE_ID", "")
	if instance == "" {
		instance, _ = os.Hostname()
	}

	return Config{
		ServiceName:       env.str("OTEL_SERVICE_NAME", "inboxcopilot"),
		ServiceVersion:    "unknown",
		InstanceID:        instance,
		Environment:       env.str("INBOXCOPILOT_ENVIRONMENT", ""),
		Enabled:           env.boolean("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:   strings.ToLower(env.str("METRICS_EXPORTER", ExporterPrometheus)),
		TracingExporter:   strings.ToLower(env.str("TRACING_EXPORTER", ExporterNone)),
		OTLPEndpoint:      env.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:      env.boolean("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate: env.float("OTEL_TRACES_SAMPLER_ARG", 0.1),
		MetricsPath:       env.str("METRICS_PATH", DefaultMetricsPath),
		DetailedLabels:    env.boolean("METRICS_DETAILED_LABELS", false),
		AuditLogging: AuditLoggingConfig{
			Enabled:    env.boolean("AUDIT_LOGGING_ENABLED", true),
			IncludePII: env.boolean("AUDIT_LOGGING_INCLUDE_PII", false),
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
		}
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
		}
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("metrics path must start with '/', got %q", c.MetricsPath)
	}
	return nil
}

type envReader func(string) string

func (e envReader) str(key, def string) string {
	if v := strings.TrimSpace(e(key)); v != "" {
		return v
	}
	return def
}

func (e envReader) boolean(key string, def bool) bool {
	v, err := strconv.ParseBool(e.str(key, ""))
	if err != nil {
		return def
	}
	return v
}

func (e envReader) float(key string, def float64) float64 {
	v, err := strconv.ParseFloat(e.str(key, ""), 64)
	if err != nil {
		return def
	}
	return v
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Agent invocation results
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricsPath is where Prometheus metrics are served.
	DefaultMetricsPath = "/metrics"
)
