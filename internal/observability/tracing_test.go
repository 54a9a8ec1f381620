package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracing_Disabled(t *testing.T) {
	cfg := TracingConfig{Enabled: false}

	provider, err := InitTracing(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, provider)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, ShutdownTracing(ctx, provider))
}

func TestInitTracing_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  TracingConfig
	}{
		{
			name: "missing endpoint",
			cfg:  TracingConfig{Enabled: true, SampleRate: 1.0},
		},
		{
			name: "sample rate too high",
			cfg:  TracingConfig{Enabled: true, Endpoint: "localhost:4317", SampleRate: 1.5},
		},
		{
			name: "sample rate negative",
			cfg:  TracingConfig{Enabled: true, Endpoint: "localhost:4317", SampleRate: -0.1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InitTracing(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid tracing configuration")
		})
	}
}

func TestTracingConfig_Validate(t *testing.T) {
	disabled := TracingConfig{Enabled: false}
	assert.NoError(t, disabled.Validate(), "disabled config always validates")

	valid := TracingConfig{Enabled: true, Endpoint: "collector:4317", SampleRate: 0.5}
	assert.NoError(t, valid.Validate())

	noEndpoint := TracingConfig{Enabled: true, SampleRate: 0.5}
	assert.Error(t, noEndpoint.Validate())
}

func TestShutdownTracing_NilProvider(t *testing.T) {
	assert.NoError(t, ShutdownTracing(context.Background(), nil))
}
