// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-whoami/internal/domain"
)

// Backend is anything that turns a conversation into a reply.
// The orchestrator depends on nothing else; mock, vendor SDK and HTTP
// backends are all interchangeable behind it.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Generate returns the backend's reply to the final turn of conv.
	// The conversation must not be modified.
	// Failures must be reported as *BackendError so the orchestrator can
	// decide whether to retry.
	//
	// Example:
	//
	//	resp, err := backend.Generate(ctx, tc.Conversation())
	//	if err != nil {
	//	    be := ports.AsBackendError(backend.Name(), backend.ModelID(), err)
	//	    if be.IsRetryable() { ... }
	//	}
	Generate(ctx context.Context, conv domain.Conversation) (domain.Response, error)

	// Name returns a human-readable backend name used for logging.
	Name() string

	// ModelID returns the identifier of the model behind this backend.
	// It selects the expected identity from the suite's backend configs.
	ModelID() string
}

type testIDKey struct{}

// WithTestID returns a context carrying the id of the test case being
// evaluated. Deterministic backends use it to key scripted replies.
func WithTestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, testIDKey{}, id)
}

// TestIDFromContext returns the test case id stored by WithTestID.
func TestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(testIDKey{}).(string)
	return id, ok
}
