package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/beacon/internal/config"
)

// Config holds observability settings shared by the admin, collect, and
// rollup binaries. Values come from the app config with environment
// variables taking precedence, so a single image can be retuned per
// deployment without a rebuild.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	// Log sampling bounds per-second volume. Collect deployments under
	// heavy ingest lower these; zero means the logger's defaults.
	LogSamplingInitial    int
	LogSamplingThereafter int

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName:           "beacon",
		Environment:           strings.TrimSpace(getenv("DEPLOYMENT_ENV", cfg.Environment)),
		Version:               strings.TrimSpace(getenv("SERVICE_VERSION", cfg.AppVersion)),
		LogLevel:              strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:             strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		LogSamplingInitial:    getenvInt("LOG_SAMPLING_INITIAL", 0),
		LogSamplingThereafter: getenvInt("LOG_SAMPLING_THEREAFTER", 0),
		OtelEnabled:           getenvBool("OTEL_ENABLED", true),
		OtelExporterEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)),
		OtelExporterProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:     getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}

	if name := strings.TrimSpace(cfg.AppName); name != "" {
		out.ServiceName = name
	}
	// The traces-specific protocol variable overrides the shared one.
	if tracesProtocol := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); tracesProtocol != "" {
		out.OtelExporterProtocol = strings.ToLower(tracesProtocol)
	}
	return out
}

func (c Config) Debug() bool {
	if strings.ToLower(strings.TrimSpace(c.LogLevel)) == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}
