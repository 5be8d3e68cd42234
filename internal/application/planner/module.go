package planner

import (
	"context"
	"fmt"

	"github.com/XiaoConstantine/dspy-go/pkg/modules"
)

// PredictModule wraps dspy-go's Predict with tracing and metrics hooks, so
// the model-backed strategy's single LLM round-trip shows up the same way
// every other external call in the pipeline does.
type PredictModule struct {
	*modules.Predict
	tracer  Tracer
	metrics MetricsCollector
}

type Option func(*PredictModule)

func WithTracer(tracer Tracer) Option {
	return func(p *PredictModule) { p.tracer = tracer }
}

func WithMetrics(metrics MetricsCollector) Option {
	return func(p *PredictModule) { p.metrics = metrics }
}

func NewPredictModule(sig Signature, opts ...Option) *PredictModule {
	p := &PredictModule{Predict: modules.NewPredict(sig.Signature)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PredictModule) Process(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	var span Span
	if p.tracer != nil {
		span = p.tracer.StartSpan(ctx, "planner.predict")
		defer span.End()
	}

	outputs, err := p.Predict.Process(ctx, inputs)

	if p.metrics != nil {
		p.metrics.RecordExecution(span, inputs, outputs, err)
	}

	if err != nil {
		if span != nil {
			span.SetError(err)
		}
		return nil, fmt.Errorf("predict process failed: %w", err)
	}

	return outputs, nil
}

// Tracer is the span-producing collaborator the Planner reports into;
// satisfied by internal/adapters/tracing's otel wrapper in production.
type Tracer interface {
	StartSpan(ctx context.Context, name string) Span
}

type Span interface {
	End()
	SetError(err error)
	SetAttribute(key string, value any)
}

// MetricsCollector receives one record per predict call; satisfied by
// internal/adapters/metrics's prometheus wrapper in production.
type MetricsCollector interface {
	RecordExecution(span Span, inputs, outputs map[string]any, err error)
}

type NoOpTracer struct{}

func (t *NoOpTracer) StartSpan(ctx context.Context, name string) Span { return &NoOpSpan{} }

type NoOpSpan struct{}

func (s *NoOpSpan) End()                               {}
func (s *NoOpSpan) SetError(err error)                 {}
func (s *NoOpSpan) SetAttribute(key string, value any) {}

type NoOpMetrics struct{}

func (m *NoOpMetrics) RecordExecution(span Span, inputs, outputs map[string]any, err error) {}
