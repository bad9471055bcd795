package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/organic-advisor/internal/config"
)

func TestSetupTracing_Disabled(t *testing.T) {
	shutdown, err := SetupTracing(config.Config{OTLPEndpoint: ""})
	require.NoError(t, err)
	assert.Nil(t, shutdown)
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestSetupTracing_WithEndpoint(t *testing.T) {
	cfg := config.Config{
		AppEnv:          "test",
		OTLPEndpoint:    "localhost:4317",
		OTELServiceName: "test-service",
	}

	// the gRPC exporter dials lazily, so setup succeeds without a collector
	shutdown, err := SetupTracing(cfg)
	if err != nil {
		assert.Nil(t, shutdown)
		return
	}
	require.NotNil(t, shutdown)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestSamplingRatio(t *testing.T) {
	assert.Equal(t, 0.1, SamplingRatio(config.Config{AppEnv: "prod"}))
	assert.Equal(t, 1.0, SamplingRatio(config.Config{AppEnv: "dev"}))
	assert.Equal(t, 1.0, SamplingRatio(config.Config{AppEnv: "test"}))
}
