package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewTracer_None(t *testing.T) {
	t.Parallel()

	tr, err := NewTracer(context.Background(), TraceConfig{})
	require.NoError(t, err)
	require.False(t, tr.Enabled())

	_, span := tr.Start(context.Background(), "forge.run")
	require.False(t, span.SpanContext().IsValid(), "no-op spans carry no context")
	span.End()
	require.NoError(t, tr.Shutdown(context.Background()))
}

func TestNewTracer_StdoutWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tr, err := NewTracer(context.Background(), TraceConfig{Exporter: ExporterStdout, Writer: &buf, ServiceName: "strata-test"})
	require.NoError(t, err)
	require.True(t, tr.Enabled())

	ctx, span := tr.Start(context.Background(), "forge.reconcile", attribute.Int("configuration", 1))
	require.True(t, span.SpanContext().IsValid())
	_, child := tr.Start(ctx, "forge.generate")
	require.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())
	child.End()
	span.End()

	require.NoError(t, tr.Shutdown(context.Background()))
	require.Contains(t, buf.String(), "forge.reconcile")
	require.Contains(t, buf.String(), "forge.generate")
}

func TestNewTracer_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := NewTracer(context.Background(), TraceConfig{Exporter: "zipkin"})
	require.ErrorContains(t, err, `unsupported trace exporter "zipkin"`)
}

func TestNilTracer(t *testing.T) {
	t.Parallel()

	var tr *Tracer
	ctx, span := tr.Start(context.Background(), "x")
	require.NotNil(t, ctx)
	span.End()
	require.False(t, tr.Enabled())
	require.NoError(t, tr.Shutdown(context.Background()))
}
