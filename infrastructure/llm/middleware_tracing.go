package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

// tracedLLM wraps each provider call in an OpenTelemetry span.
type tracedLLM struct {
	next        CoreLLM
	serviceName string
	tracer      trace.Tracer
}

// TracingMiddleware creates middleware that records an "llm.request" span
// per call using the global tracer provider.
func TracingMiddleware(serviceName string) Middleware {
	return TracingMiddlewareWithTracer(serviceName, otel.Tracer("llm-client"))
}

// TracingMiddlewareWithTracer is TracingMiddleware with an explicit tracer.
func TracingMiddlewareWithTracer(serviceName string, tracer trace.Tracer) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &tracedLLM{
			next:        next,
			serviceName: serviceName,
			tracer:      tracer,
		}
	}
}

// DoRequest runs the request inside a span carrying the model, the
// conversation shape, the test case id when present, and token usage.
func (t *tracedLLM) DoRequest(ctx context.Context, conv domain.Conversation, opts map[string]any) (string, int, int, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", t.serviceName),
		attribute.String("llm.model", t.next.GetModel()),
		attribute.Int("llm.conversation.turns", len(conv)),
		attribute.Int("llm.conversation.length", conversationLength(conv)),
	}
	if id, ok := ports.TestIDFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("eval.test_id", id))
	}

	ctx, span := t.tracer.Start(ctx, "llm.request", trace.WithAttributes(attrs...))
	defer span.End()

	response, tokensIn, tokensOut, err := t.next.DoRequest(ctx, conv, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return response, tokensIn, tokensOut, err
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", tokensIn),
		attribute.Int("llm.tokens.output", tokensOut),
	)
	span.SetStatus(codes.Ok, "")
	return response, tokensIn, tokensOut, nil
}

func conversationLength(conv domain.Conversation) int {
	n := 0
	for _, m := range conv {
		n += len(m.Content)
	}
	return n
}

// GetModel returns the model name from the wrapped implementation.
func (t *tracedLLM) GetModel() string { return t.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (t *tracedLLM) SetModel(m string) { t.next.SetModel(m) }
