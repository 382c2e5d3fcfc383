package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	tenun "github.com/antaredja/tenun"
)

// ObservedTool wraps a tenun.Tool with OTEL instrumentation.
type ObservedTool struct {
	inner tenun.Tool
	inst  *Instruments
}

var _ tenun.Tool = (*ObservedTool)(nil)

// WrapTool returns an instrumented tool.
func WrapTool(inner tenun.Tool, inst *Instruments) *ObservedTool {
	return &ObservedTool{inner: inner, inst: inst}
}

func (o *ObservedTool) Name() string        { return o.inner.Name() }
func (o *ObservedTool) Description() string { return o.inner.Description() }

func (o *ObservedTool) ValidateInput(input string, params map[string]any) error {
	return o.inner.ValidateInput(input, params)
}

func (o *ObservedTool) Execute(ctx context.Context, input string, params map[string]any) tenun.ToolResult {
	ctx, span := o.inst.Tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		AttrToolName.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	result := o.inner.Execute(ctx, input, params)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if !result.Success {
		status = "error"
		span.SetStatus(codes.Error, result.Err)
	}

	span.SetAttributes(
		AttrToolStatus.String(status),
		AttrToolResultLength.Int(len(result.Content)),
	)
	o.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
		AttrToolName.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.ToolDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrToolName.String(o.inner.Name()),
	))

	return result
}
