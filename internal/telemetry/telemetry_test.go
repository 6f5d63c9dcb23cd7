package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "disabled skips validation",
			cfg:  Config{Enabled: false},
		},
		{
			name: "enabled with local insecure endpoint",
			cfg: Config{
				Enabled:      true,
				Endpoint:     "localhost:4317",
				ServiceName:  "recalld",
				Insecure:     true,
				SamplingRate: 1.0,
			},
		},
		{
			name: "insecure remote endpoint rejected",
			cfg: Config{
				Enabled:      true,
				Endpoint:     "collector.example.com:4317",
				ServiceName:  "recalld",
				Insecure:     true,
				SamplingRate: 1.0,
			},
			wantErr: "insecure connections to remote endpoints",
		},
		{
			name: "sampling rate out of range",
			cfg: Config{
				Enabled:      true,
				Endpoint:     "localhost:4317",
				ServiceName:  "recalld",
				SamplingRate: 1.5,
			},
			wantErr: "sampling rate",
		},
		{
			name: "missing service name",
			cfg: Config{
				Enabled:      true,
				Endpoint:     "localhost:4317",
				SamplingRate: 1.0,
			},
			wantErr: "service_name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.MetricInterval = 15 * time.Second
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		local    bool
	}{
		{"localhost:4317", true},
		{"127.0.0.1:4317", true},
		{"[::1]:4317", true},
		{"::1", true},
		{"collector.example.com:4317", false},
		{"10.0.0.5:4317", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.local, cfg.isLocalEndpoint())
		})
	}
}

func TestNewDisabledIsNoop(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.False(t, tel.IsDegraded())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))

	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.IsEnabled())
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
}
