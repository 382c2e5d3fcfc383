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

// ObservedLLM wraps a tenun.LLMProvider with OTEL instrumentation.
type ObservedLLM struct {
	inner tenun.LLMProvider
	inst  *Instruments
}

var _ tenun.LLMProvider = (*ObservedLLM)(nil)

// WrapLLM returns an instrumented provider that emits traces and metrics.
func WrapLLM(inner tenun.LLMProvider, inst *Instruments) *ObservedLLM {
	return &ObservedLLM{inner: inner, inst: inst}
}

func (o *ObservedLLM) Name() string { return o.inner.Name() }

func (o *ObservedLLM) CountTokens(text string) int { return o.inner.CountTokens(text) }

func (o *ObservedLLM) Generate(ctx context.Context, messages []tenun.ChatMessage, settings tenun.Config) (tenun.LLMResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Generate(ctx, messages, settings)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.record(ctx, span, "generate", status, durationMs, resp)
	return resp, err
}

func (o *ObservedLLM) GenerateStream(ctx context.Context, messages []tenun.ChatMessage, settings tenun.Config, ch chan<- string) (tenun.LLMResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.generate_stream", trace.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	// Wrap the channel to count chunks. Buffer generously so the inner
	// provider never blocks on send while nobody reads ch until
	// GenerateStream returns.
	bufSize := max(cap(ch), 64)
	wrappedCh := make(chan string, bufSize)
	chunks := 0
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		for delta := range wrappedCh {
			chunks++
			select {
			case ch <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()

	resp, err := o.inner.GenerateStream(ctx, messages, settings, wrappedCh)
	<-done // wait for the forwarder before reading chunks

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(AttrStreamChunks.Int(chunks))
	o.record(ctx, span, "generate_stream", status, durationMs, resp)
	return resp, err
}

func (o *ObservedLLM) record(ctx context.Context, span trace.Span, method, status string, durationMs float64, resp tenun.LLMResponse) {
	attrs := metric.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
	)

	span.SetAttributes(
		AttrTokensInput.Int(resp.Usage.InputTokens),
		AttrTokensOutput.Int(resp.Usage.OutputTokens),
	)

	o.inst.TokenUsage.Add(ctx, int64(resp.Usage.InputTokens), metric.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("direction", "input"),
	))
	o.inst.TokenUsage.Add(ctx, int64(resp.Usage.OutputTokens), metric.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("direction", "output"),
	))
	o.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
		attribute.String("status", status),
	))
	o.inst.LLMDuration.Record(ctx, durationMs, attrs)
}
