package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "pipeline_steps", cfg.Queue.StepQueue)
	assert.Equal(t, 8, cfg.Generation.MaxCandidates)
	assert.Equal(t, 3, cfg.Generation.MinCandidates)
	assert.Equal(t, 1300, cfg.Generation.ContextTargetChars)
	assert.Equal(t, 1800, cfg.Generation.ContextHardCapChars)
	assert.Equal(t, 5, cfg.Generation.EscalateMinAccepted)
	assert.InDelta(t, 0.45, cfg.Generation.EscalateRejectRatio, 1e-9)
	assert.InDelta(t, 0.55, cfg.Generation.EscalateGrounded, 1e-9)
	assert.InDelta(t, 2.0, cfg.Generation.AutoPostThreshold, 1e-9)
	assert.InDelta(t, 0.6, cfg.Generation.RetryTemperature, 1e-9)
	assert.Equal(t, 8, cfg.Policy.MaxAccepted)
}

func TestApplyDefaults_Clamps(t *testing.T) {
	tests := []struct {
		name          string
		threshold     float64
		maxAccepted   int
		wantThreshold float64
		wantAccepted  int
	}{
		{"too high", 9.0, 50, 3.0, 20},
		{"too low", 0.1, -3, 0.5, 1},
		{"in range", 1.7, 5, 1.7, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Generation: GenerationConfig{AutoPostThreshold: tt.threshold},
				Policy:     PolicyConfig{MaxAccepted: tt.maxAccepted},
			}
			cfg.ApplyDefaults()
			assert.InDelta(t, tt.wantThreshold, cfg.Generation.AutoPostThreshold, 1e-9)
			assert.Equal(t, tt.wantAccepted, cfg.Policy.MaxAccepted)
		})
	}
}

func TestLoad_PrefersLocalConfig(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "config.yaml")
	local := filepath.Join(dir, "config.local.yaml")

	require.NoError(t, os.WriteFile(base, []byte("server:\n  port: 8080\n"), 0644))
	require.NoError(t, os.WriteFile(local, []byte("server:\n  port: 9090\nmodels:\n  primary_model: llama3.1:8b\n"), 0644))

	cfg, err := Load(base)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "llama3.1:8b", cfg.Models.PrimaryModel)
	assert.Equal(t, "local_ai", cfg.Capability.Provider)
}
