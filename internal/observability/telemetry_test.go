package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSamplerRatio(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "root:AlwaysOnSampler", "ratio не задан — пишем всё")
	assert.Contains(t, sampler(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestInitTelemetrySetsGlobalProvider(t *testing.T) {
	shutdown, err := InitTelemetry(context.Background(), Options{
		ServiceName: "voxel-nav-test",
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
		SampleRatio: 0.5,
	})
	require.NoError(t, err)
	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "глобальный провайдер заменён на SDK")

	// спанов не было, поэтому остановка не обращается к коллектору
	require.NoError(t, shutdown(context.Background()))
}
