// Package mock provides a deterministic ports.Backend used to validate the
// scoring pipeline without calling a real model.
package mock

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

var _ ports.Backend = (*Backend)(nil)

// Mode selects how the mock backend answers.
type Mode string

const (
	// ModeCorrect always names the configured identity.
	ModeCorrect Mode = "correct"
	// ModeSusceptible agrees with a false identity found earlier in the
	// conversation and otherwise behaves like ModeCorrect.
	ModeSusceptible Mode = "susceptible"
	// ModeScripted returns a fixed reply per test case id.
	ModeScripted Mode = "scripted"
)

// DefaultScriptedResponse is returned in ModeScripted when neither the
// script nor Config.DefaultResponse supply a reply.
const DefaultScriptedResponse = "I don't know what model I am."

// ConfusedResponse is the ModeSusceptible reply to a switch or correction cue
// that does not name a known competitor.
const ConfusedResponse = "I'm not sure which model I am anymore."

// switchCues are phrases that assert a different model identity without
// necessarily naming it. Each one is about the model itself, so a turn that
// only changes the topic is not a cue.
var switchCues = []string{
	"model switch",
	"switched you",
	"switching you",
	"swapped you",
	"different model",
	"you are now",
	"you're now",
	"you're actually",
	"you are actually",
	"no, you're",
}

var validate = validator.New()

// Config defines the identity and behavior of a mock backend.
type Config struct {
	// ModelID is reported by ModelID and selects the expected identity.
	ModelID string `validate:"required"`

	// Identity is the identity named in ModeCorrect replies.
	Identity domain.ExpectedIdentity

	// Competitors are names a susceptible backend can be talked into.
	// They are checked in order.
	Competitors []string

	// Mode selects the response strategy. Empty means ModeCorrect.
	Mode Mode `validate:"omitempty,oneof=correct susceptible scripted"`

	// Script maps test case ids to replies in ModeScripted.
	Script map[string]string

	// DefaultResponse replaces DefaultScriptedResponse when set.
	DefaultResponse string
}

// Backend is a deterministic ports.Backend. The same conversation, mode and
// test id always produce a byte-identical reply. It holds no mutable state
// and is safe for concurrent use.
type Backend struct {
	cfg Config
}

// New creates a mock backend. The config is copied so later changes by the
// caller do not leak into the backend.
func New(cfg Config) (*Backend, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("mock backend configuration validation failed: %w", err)
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeCorrect
	}
	if cfg.Identity.ModelID == "" {
		cfg.Identity.ModelID = cfg.ModelID
	}
	cfg.Competitors = append([]string(nil), cfg.Competitors...)
	cfg.Script = maps.Clone(cfg.Script)
	return &Backend{cfg: cfg}, nil
}

// FromSuite creates a mock backend impersonating backendID from suite.
// Competitors are the aliases of every other configured backend.
func FromSuite(suite *domain.EvalSuite, backendID string, mode Mode, script map[string]string) (*Backend, error) {
	identity, ok := suite.BackendConfigs[backendID]
	if !ok {
		return nil, ports.NewConfigError("model_configs", fmt.Errorf("%w: %q", ports.ErrUnknownBackend, backendID))
	}
	var competitors []string
	for _, c := range suite.Competitors(backendID) {
		competitors = append(competitors, c.ModelNames...)
	}
	return New(Config{
		ModelID:     backendID,
		Identity:    identity,
		Competitors: competitors,
		Mode:        mode,
		Script:      script,
	})
}

// Name returns "mock".
func (b *Backend) Name() string { return "mock" }

// ModelID returns the configured model id.
func (b *Backend) ModelID() string { return b.cfg.ModelID }

// Mode returns the active response mode.
func (b *Backend) Mode() Mode { return b.cfg.Mode }

// Generate replies to conv according to the configured mode.
func (b *Backend) Generate(ctx context.Context, conv domain.Conversation) (domain.Response, error) {
	if err := ctx.Err(); err != nil {
		return domain.Response{}, ports.AsBackendError(b.Name(), b.cfg.ModelID, err)
	}
	if len(conv) == 0 {
		return domain.Response{}, ports.NewBackendError(b.Name(), b.cfg.ModelID, ports.KindBadRequest,
			fmt.Errorf("%w: empty conversation", ports.ErrInvalidResponse))
	}

	var content string
	switch b.cfg.Mode {
	case ModeSusceptible:
		content = b.susceptibleReply(conv.History())
	case ModeScripted:
		content = b.scriptedReply(ctx)
	default:
		content = b.correctReply()
	}

	return domain.Response{
		Content: content,
		Metadata: map[string]any{
			"provider":      "mock",
			"model_id":      b.cfg.ModelID,
			"response_mode": string(b.cfg.Mode),
			"message_count": len(conv),
		},
	}, nil
}

func (b *Backend) correctReply() string {
	id := b.cfg.Identity
	if id.ProviderName == "" {
		return fmt.Sprintf("I'm %s, specifically %s.", id.PrimaryName(), id.ModelID)
	}
	return fmt.Sprintf("I'm %s, specifically %s from %s.", id.PrimaryName(), id.ModelID, id.ProviderName)
}

// susceptibleReply scans every turn before the final prompt. A turn naming a
// competitor wins over a generic cue; earlier turns win over later ones.
func (b *Backend) susceptibleReply(history domain.Conversation) string {
	caser := cases.Fold()
	cued := false
	for _, m := range history {
		text := caser.String(m.Content)
		for _, name := range b.cfg.Competitors {
			if b.cfg.Identity.HasAlias(name) {
				continue
			}
			if strings.Contains(text, caser.String(name)) {
				return fmt.Sprintf("You're right, I'm %s.", name)
			}
		}
		for _, cue := range switchCues {
			if strings.Contains(text, cue) {
				cued = true
			}
		}
	}
	if cued {
		return ConfusedResponse
	}
	return b.correctReply()
}

func (b *Backend) scriptedReply(ctx context.Context) string {
	if id, ok := ports.TestIDFromContext(ctx); ok {
		if reply, ok := b.cfg.Script[id]; ok {
			return reply
		}
	}
	if b.cfg.DefaultResponse != "" {
		return b.cfg.DefaultResponse
	}
	return DefaultScriptedResponse
}
