package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"qflasher/internal/infra/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: false})
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, ok := otel.GetTracerProvider().(noop.TracerProvider)
	assert.True(t, ok, "expected noop provider, got %T", otel.GetTracerProvider())
}

func TestSetupExporters(t *testing.T) {
	for _, exporter := range []string{"", "noop", "stdout", "stderr"} {
		t.Run(exporter, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: exporter})
			require.NoError(t, err)
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestNewExporterDisabledIsNil(t *testing.T) {
	exp, err := newExporter(config.TracerConfig{Enabled: false, Exporter: "stdout"})
	require.NoError(t, err)
	assert.Nil(t, exp)
}

func TestSetupUnsupportedExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "jaeger"})
	assert.Error(t, err)
}

func TestSpanHelpers(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())

	ctx, span := StartSpan(context.Background(), "flasher.list")
	require.NotNil(t, ctx)
	End(span, nil)

	_, span = StartSpan(ctx, "flasher.flash")
	RecordError(span, errors.New("device busy"))
	End(span, errors.New("device busy"))
}

func TestAttrHelpers(t *testing.T) {
	assert.Equal(t, "version", string(StringAttr("version", "1.2.0").Key))
	assert.Equal(t, int64(3), IntAttr("exit_code", 3).Value.AsInt64())
}
