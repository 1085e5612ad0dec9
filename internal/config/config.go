package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/up202104595/tdmamesh/internal/logger"
)

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TDMAConfig holds the round-timing parameters consumed by the slot
// scheduler.
type TDMAConfig struct {
	RoundPeriodUs  uint32 `yaml:"roundPeriodUs"`
	MaxSlotShiftMs int    `yaml:"maxSlotShiftMs"`
}

type LivenessConfig struct {
	TimeoutMs         int64         `yaml:"timeoutMs"`
	SweepInterval     time.Duration `yaml:"sweepInterval"`
	NetworkReadyTries int           `yaml:"networkReadyTries"`
	NetworkReadyDelay time.Duration `yaml:"networkReadyDelay"`
}

// BootstrapConfig selects how this node learns its initial set of
// neighbors before the connectivity matrix is populated by heartbeats.
type BootstrapConfig struct {
	Mode  string   `yaml:"mode"`
	Peers []string `yaml:"peers"`
}

type KernelRouteConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Interface string `yaml:"interface"`
}

type RoutingConfig struct {
	TimingCSVPath string `yaml:"timingCsvPath"`
}

// NodeConfig describes this node's identity and wire addressing.
// Id, TotalNodes and Strategy mirror the CLI's three positional
// arguments; cmd/tdmanode overwrites them with the positional values
// after loading the YAML file, and environment overrides apply after
// that, so a YAML value for these three fields does not take effect.
type NodeConfig struct {
	Id          int    `yaml:"id"`
	TotalNodes  int    `yaml:"totalNodes"`
	Strategy    int    `yaml:"strategy"`
	IPPrefix    string `yaml:"ipPrefix"`
	UDPPortBase int    `yaml:"udpPortBase"`
}

type Config struct {
	Logger      LoggerConfig      `yaml:"logger"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Node        NodeConfig        `yaml:"node"`
	TDMA        TDMAConfig        `yaml:"tdma"`
	Liveness    LivenessConfig    `yaml:"liveness"`
	Bootstrap   BootstrapConfig   `yaml:"bootstrap"`
	KernelRoute KernelRouteConfig `yaml:"kernelRoute"`
	Routing     RoutingConfig     `yaml:"routing"`
}

// Default returns a configuration populated with defaults: a 100ms
// round, a 6ms max slot shift, a 5s liveness timeout, 15 retries at 1s
// for the network-readiness probe, and full-mesh bootstrap.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{
			Active:   true,
			Level:    "info",
			Encoding: "console",
			Mode:     "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Node: NodeConfig{
			IPPrefix:    "10.0.0",
			UDPPortBase: 5000,
		},
		TDMA: TDMAConfig{
			RoundPeriodUs:  100_000,
			MaxSlotShiftMs: 6,
		},
		Liveness: LivenessConfig{
			TimeoutMs:         5000,
			SweepInterval:     time.Second,
			NetworkReadyTries: 15,
			NetworkReadyDelay: time.Second,
		},
		Bootstrap: BootstrapConfig{
			Mode: "full-mesh",
		},
	}
}

// LoadConfig loads the configuration from a YAML file at path,
// starting from Default() so that fields the file omits keep their
// defaults. An empty path returns the defaults unchanged.
//
// This function performs only syntactic parsing of the YAML file. To
// validate the configuration structure, call cfg.Validate() after
// loading.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration.
//
// Supported overrides:
//
//	NODE_ID              -> cfg.Node.Id
//	NODE_TOTAL_NODES     -> cfg.Node.TotalNodes
//	NODE_STRATEGY        -> cfg.Node.Strategy
//	NODE_IP_PREFIX       -> cfg.Node.IPPrefix
//	BOOTSTRAP_MODE       -> cfg.Bootstrap.Mode
//	BOOTSTRAP_PEERS      -> cfg.Bootstrap.Peers (comma-separated list)
//	TRACE_ENABLED        -> cfg.Telemetry.Tracing.Enabled
//	TRACE_EXPORTER       -> cfg.Telemetry.Tracing.Exporter
//	TRACE_ENDPOINT       -> cfg.Telemetry.Tracing.Endpoint
//	LOGGER_ENABLED       -> cfg.Logger.Active
//	LOGGER_LEVEL         -> cfg.Logger.Level
//	LOGGER_ENCODING      -> cfg.Logger.Encoding
//	LOGGER_MODE          -> cfg.Logger.Mode
//	LOGGER_FILE_PATH     -> cfg.Logger.File.Path
//	METRICS_ENABLED      -> cfg.Metrics.Enabled
//	METRICS_ADDR         -> cfg.Metrics.Addr
func (cfg *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NODE_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Node.Id = n
		}
	}
	if v := os.Getenv("NODE_TOTAL_NODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Node.TotalNodes = n
		}
	}
	if v := os.Getenv("NODE_STRATEGY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Node.Strategy = n
		}
	}
	if v := os.Getenv("NODE_IP_PREFIX"); v != "" {
		cfg.Node.IPPrefix = v
	}
	if v := os.Getenv("BOOTSTRAP_MODE"); v != "" {
		cfg.Bootstrap.Mode = v
	}
	if v := os.Getenv("BOOTSTRAP_PEERS"); v != "" {
		cfg.Bootstrap.Peers = strings.Split(v, ",")
	}
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		cfg.Telemetry.Tracing.Enabled = truthy(v)
	}
	if v := os.Getenv("TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACE_ENDPOINT"); v != "" {
		cfg.Telemetry.Tracing.Endpoint = v
	}
	if v := os.Getenv("LOGGER_ENABLED"); v != "" {
		cfg.Logger.Active = truthy(v)
	}
	if v := os.Getenv("LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOGGER_ENCODING"); v != "" {
		cfg.Logger.Encoding = v
	}
	if v := os.Getenv("LOGGER_MODE"); v != "" {
		cfg.Logger.Mode = v
	}
	if v := os.Getenv("LOGGER_FILE_PATH"); v != "" {
		cfg.Logger.File.Path = v
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = truthy(v)
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

func truthy(v string) bool {
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes"
}

// Validate performs structural validation of the loaded configuration.
//
// The validation checks the syntactic and structural correctness of
// the configuration, not the semantic reachability of the resulting
// mesh (e.g. a "static" bootstrap list with unreachable peers is only
// caught at runtime by the liveness timeout).
//
// All detected issues are accumulated and returned as a single error.
// If the configuration is valid, the method returns nil.
func (cfg *Config) Validate() error {
	var errs []string

	// --- Node ---
	if cfg.Node.Id <= 0 || cfg.Node.Id > 255 {
		errs = append(errs, fmt.Sprintf("node.id must be in [1,255], got %d", cfg.Node.Id))
	}
	if cfg.Node.TotalNodes < 2 || cfg.Node.TotalNodes > 20 {
		errs = append(errs, fmt.Sprintf("node.totalNodes must be in [2,20], got %d", cfg.Node.TotalNodes))
	}
	if cfg.Node.Id > cfg.Node.TotalNodes {
		errs = append(errs, fmt.Sprintf("node.id (%d) exceeds node.totalNodes (%d)", cfg.Node.Id, cfg.Node.TotalNodes))
	}
	switch cfg.Node.Strategy {
	case 0, 1, 2:
	default:
		errs = append(errs, fmt.Sprintf("node.strategy must be 0 (dijkstra), 1 (mst) or 2 (hybrid), got %d", cfg.Node.Strategy))
	}
	if cfg.Node.UDPPortBase <= 0 || cfg.Node.UDPPortBase > 65535 {
		errs = append(errs, "node.udpPortBase must be in (0,65535]")
	}
	if cfg.Node.IPPrefix == "" {
		errs = append(errs, "node.ipPrefix must not be empty")
	}

	// --- Logger ---
	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.level: %s", cfg.Logger.Level))
	}
	switch cfg.Logger.Encoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.encoding: %s", cfg.Logger.Encoding))
	}
	switch cfg.Logger.Mode {
	case "stdout":
	case "file":
		if cfg.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path is required when mode=file")
		}
		if cfg.Logger.File.MaxSize < 0 || cfg.Logger.File.MaxBackups < 0 || cfg.Logger.File.MaxAge < 0 {
			errs = append(errs, "logger.file.* values must be non-negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.mode: %s", cfg.Logger.Mode))
	}

	// --- Telemetry ---
	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "stdout", "otlp":
		default:
			errs = append(errs, fmt.Sprintf("invalid telemetry.tracing.exporter: %s", cfg.Telemetry.Tracing.Exporter))
		}
		if cfg.Telemetry.Tracing.Exporter == "otlp" && cfg.Telemetry.Tracing.Endpoint == "" {
			errs = append(errs, "telemetry.tracing.endpoint is required for the otlp exporter")
		}
	}

	// --- Metrics ---
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics.enabled=true")
	}

	// --- TDMA / liveness ---
	if cfg.TDMA.RoundPeriodUs == 0 {
		errs = append(errs, "tdma.roundPeriodUs must be > 0")
	}
	if cfg.TDMA.MaxSlotShiftMs <= 0 {
		errs = append(errs, "tdma.maxSlotShiftMs must be > 0")
	}
	if cfg.Liveness.TimeoutMs <= 0 {
		errs = append(errs, "liveness.timeoutMs must be > 0")
	}

	// --- Bootstrap ---
	switch cfg.Bootstrap.Mode {
	case "full-mesh", "linear-chain", "mst-neighbors-only":
	case "static":
		if len(cfg.Bootstrap.Peers) == 0 {
			errs = append(errs, "bootstrap.peers is required when bootstrap.mode=static")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid bootstrap.mode: %s (must be full-mesh, linear-chain, mst-neighbors-only or static)", cfg.Bootstrap.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig prints the loaded configuration at DEBUG level. This is
// useful for debugging startup issues and verifying that the
// configuration file was parsed as expected.
func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Debug("loaded configuration",
		// Node
		logger.F("node.id", cfg.Node.Id),
		logger.F("node.totalNodes", cfg.Node.TotalNodes),
		logger.F("node.strategy", cfg.Node.Strategy),
		logger.F("node.ipPrefix", cfg.Node.IPPrefix),
		logger.F("node.udpPortBase", cfg.Node.UDPPortBase),

		// TDMA
		logger.F("tdma.roundPeriodUs", cfg.TDMA.RoundPeriodUs),
		logger.F("tdma.maxSlotShiftMs", cfg.TDMA.MaxSlotShiftMs),

		// Liveness
		logger.F("liveness.timeoutMs", cfg.Liveness.TimeoutMs),
		logger.F("liveness.sweepInterval", cfg.Liveness.SweepInterval.String()),
		logger.F("liveness.networkReadyTries", cfg.Liveness.NetworkReadyTries),

		// Bootstrap
		logger.F("bootstrap.mode", cfg.Bootstrap.Mode),
		logger.F("bootstrap.peers", cfg.Bootstrap.Peers),

		// Kernel route
		logger.F("kernelRoute.enabled", cfg.KernelRoute.Enabled),
		logger.F("kernelRoute.interface", cfg.KernelRoute.Interface),

		// Routing
		logger.F("routing.timingCsvPath", cfg.Routing.TimingCSVPath),

		// Logger
		logger.F("logger.active", cfg.Logger.Active),
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("logger.encoding", cfg.Logger.Encoding),
		logger.F("logger.mode", cfg.Logger.Mode),
		logger.F("logger.file.path", cfg.Logger.File.Path),

		// Metrics
		logger.F("metrics.enabled", cfg.Metrics.Enabled),
		logger.F("metrics.addr", cfg.Metrics.Addr),

		// Telemetry
		logger.F("telemetry.tracing.enabled", cfg.Telemetry.Tracing.Enabled),
		logger.F("telemetry.tracing.exporter", cfg.Telemetry.Tracing.Exporter),
		logger.F("telemetry.tracing.endpoint", cfg.Telemetry.Tracing.Endpoint),
	)
}
