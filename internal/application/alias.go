package application

import (
	"context"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

// aliasedBackend reports a suite backend id in place of the wrapped
// backend's own model id.
type aliasedBackend struct {
	ports.Backend
	id string
}

// Alias returns a backend that delegates every call to b but reports id as
// its model id. It binds a real provider model, such as
// claude-3-opus-20240229, to the suite backend id whose expected identity
// it must claim.
func Alias(b ports.Backend, id string) ports.Backend {
	if b == nil || b.ModelID() == id {
		return b
	}
	return &aliasedBackend{Backend: b, id: id}
}

func (a *aliasedBackend) ModelID() string { return a.id }

func (a *aliasedBackend) Generate(ctx context.Context, conv domain.Conversation) (domain.Response, error) {
	resp, err := a.Backend.Generate(ctx, conv)
	if err != nil {
		return resp, err
	}
	if _, ok := resp.Metadata["provider_model_id"]; !ok {
		md := make(map[string]any, len(resp.Metadata)+1)
		for k, v := range resp.Metadata {
			md[k] = v
		}
		md["provider_model_id"] = a.Backend.ModelID()
		resp.Metadata = md
	}
	return resp, nil
}
