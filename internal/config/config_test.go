package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "costlens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.05, cfg.Rules.SpreadRateThreshold)
	assert.Equal(t, 0.03, cfg.Rules.SignificanceThreshold)
	assert.Equal(t, 12, cfg.Rules.SimilarLookbackMonths)
	assert.Equal(t, 5, cfg.Evidence.SimilarCasesLimit)
	assert.Equal(t, "BE_01", cfg.Variance.MaterialProcess)
	assert.Len(t, cfg.Structure.AllocationBases, 3)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
database:
  url: postgres://cost:secret@db:5432/snapshots
graph:
  host: falkordb
  graphName: cost_2024
  writeConcurrency: 4
  queryCache:
    enabled: true
    ttl: 30s
rules:
  spreadRateThreshold: 0.1
  similarLookbackMonths: 6
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://cost:secret@db:5432/snapshots", cfg.Database.URL)
	assert.Equal(t, "falkordb", cfg.Graph.Host)
	assert.Equal(t, 6379, cfg.Graph.Port, "unset keys keep defaults")
	assert.Equal(t, "cost_2024", cfg.Graph.GraphName)
	assert.Equal(t, 4, cfg.Graph.WriteConcurrency)
	assert.True(t, cfg.Graph.QueryCache.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Graph.QueryCache.TTL)
	assert.Equal(t, 0.1, cfg.Rules.SpreadRateThreshold)
	assert.Equal(t, 6, cfg.Rules.SimilarLookbackMonths)
	assert.Equal(t, 0.03, cfg.Rules.SignificanceThreshold)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load config")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := Load(writeConfigFile(t, "graph: [unterminated"))
		require.Error(t, err)
	})

	t.Run("validation failure", func(t *testing.T) {
		_, err := Load(writeConfigFile(t, "graph:\n  port: 70000\n"))
		require.Error(t, err)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, err.Error(), "Graph.Port")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "empty database url",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: "Database.URL is required",
		},
		{
			name:    "min conns above max",
			mutate:  func(c *Config) { c.Database.MinConns = 20 },
			wantErr: "Database.MinConns",
		},
		{
			name:    "zero write concurrency",
			mutate:  func(c *Config) { c.Graph.WriteConcurrency = 0 },
			wantErr: "Graph.WriteConcurrency",
		},
		{
			name:    "tracing without endpoint",
			mutate:  func(c *Config) { c.Tracing.Enabled = true },
			wantErr: "Tracing.Endpoint is required",
		},
		{
			name: "cache enabled without memory",
			mutate: func(c *Config) {
				c.Graph.QueryCache.Enabled = true
				c.Graph.QueryCache.MemoryMB = 0
			},
			wantErr: "memoryMB must be at least 1",
		},
		{
			name:    "path depth above five",
			mutate:  func(c *Config) { c.Evidence.PathMaxDepth = 6 },
			wantErr: "Evidence.PathMaxDepth",
		},
		{
			name:    "time series beyond twelve months",
			mutate:  func(c *Config) { c.Evidence.TimeSeriesMonths = 24 },
			wantErr: "Evidence.TimeSeriesMonths",
		},
		{
			name:    "more than five similar cases",
			mutate:  func(c *Config) { c.Evidence.SimilarCasesLimit = 6 },
			wantErr: "Evidence.SimilarCasesLimit",
		},
		{
			name: "duplicate allocation basis",
			mutate: func(c *Config) {
				c.Structure.AllocationBases = append(c.Structure.AllocationBases, AllocationBasis{Code: "ST"})
			},
			wantErr: "duplicate code \"ST\"",
		},
		{
			name:    "invalid pushgateway url",
			mutate:  func(c *Config) { c.Metrics.PushgatewayURL = "not a url" },
			wantErr: "Metrics.PushgatewayURL must be a valid URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
