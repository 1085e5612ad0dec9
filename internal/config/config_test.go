package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Node.Id = 1
	cfg.Node.TotalNodes = 4
	cfg.Node.Strategy = 0
	return cfg
}

func TestDefault_IsValidOnceNodeIdentityIsSet(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangeNodeId(t *testing.T) {
	cfg := validConfig()
	cfg.Node.Id = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsIdAboveTotalNodes(t *testing.T) {
	cfg := validConfig()
	cfg.Node.Id = 5
	cfg.Node.TotalNodes = 4
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.Node.Strategy = 7
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsStaticBootstrapWithoutPeers(t *testing.T) {
	cfg := validConfig()
	cfg.Bootstrap.Mode = "static"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsFileLoggerWithoutPath(t *testing.T) {
	cfg := validConfig()
	cfg.Logger.Mode = "file"
	cfg.Logger.File.Path = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOTLPExporterWithoutEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Tracing.Enabled = true
	cfg.Telemetry.Tracing.Exporter = "otlp"
	cfg.Telemetry.Tracing.Endpoint = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadConfig_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfig_OverlaysYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("node:\n  ipPrefix: \"10.1.1\"\nbootstrap:\n  mode: static\n  peers: [\"2\", \"3\"]\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "10.1.1", cfg.Node.IPPrefix)
	assert.Equal(t, "static", cfg.Bootstrap.Mode)
	assert.Equal(t, []string{"2", "3"}, cfg.Bootstrap.Peers)
	// untouched defaults survive the overlay
	assert.Equal(t, uint32(100_000), cfg.TDMA.RoundPeriodUs)
}

func TestApplyEnvOverrides_SetsNodeIdentityFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("NODE_ID", "3")
	t.Setenv("NODE_TOTAL_NODES", "6")
	t.Setenv("BOOTSTRAP_PEERS", "1,2,3")
	cfg.ApplyEnvOverrides()

	assert.Equal(t, 3, cfg.Node.Id)
	assert.Equal(t, 6, cfg.Node.TotalNodes)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.Bootstrap.Peers)
}
