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

// ObservedEmbedding wraps a tenun.EmbeddingProvider with OTEL instrumentation.
type ObservedEmbedding struct {
	inner tenun.EmbeddingProvider
	inst  *Instruments
}

var _ tenun.EmbeddingProvider = (*ObservedEmbedding)(nil)

// WrapEmbedding returns an instrumented embedding provider.
func WrapEmbedding(inner tenun.EmbeddingProvider, inst *Instruments) *ObservedEmbedding {
	return &ObservedEmbedding{inner: inner, inst: inst}
}

func (o *ObservedEmbedding) Name() string    { return o.inner.Name() }
func (o *ObservedEmbedding) Dimensions() int { return o.inner.Dimensions() }

func (o *ObservedEmbedding) EmbedText(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := o.embed(ctx, "embed_text", []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (o *ObservedEmbedding) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return o.embed(ctx, "embed_documents", texts)
}

func (o *ObservedEmbedding) embed(ctx context.Context, method string, texts []string) ([][]float32, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.embed", trace.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
		AttrEmbedTextCount.Int(len(texts)),
		AttrEmbedDimensions.Int(o.inner.Dimensions()),
	))
	defer span.End()
	start := time.Now()

	var result [][]float32
	var err error
	if method == "embed_text" {
		var single []float32
		single, err = o.inner.EmbedText(ctx, texts[0])
		if err == nil {
			result = [][]float32{single}
		}
	} else {
		result, err = o.inner.EmbedDocuments(ctx, texts)
	}

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.inst.EmbedRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.EmbedDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
	))

	return result, err
}
