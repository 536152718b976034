package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

var _ ports.Backend = (*StubBackend)(nil)

// StubBackend is a ports.Backend with canned replies and programmable
// failures. Replies are chosen by test id first, then by the first pattern
// found in the final user turn, then Default. It is safe for concurrent use.
type StubBackend struct {
	// ID is returned by ModelID.
	ID string
	// ByTestID maps test case ids to replies.
	ByTestID map[string]string
	// Patterns maps lower-case substrings of the prompt to replies.
	Patterns map[string]string
	// Default is returned when nothing else matches.
	Default string
	// Fail, when set, is consulted before every call. A non-nil error is
	// returned instead of a reply. attempt counts calls per test id from 1.
	Fail func(testID string, attempt int) error

	mu    sync.Mutex
	calls map[string]int
	convs map[string]domain.Conversation
}

// NewStubBackend creates a stub that always answers reply.
func NewStubBackend(id, reply string) *StubBackend {
	return &StubBackend{ID: id, Default: reply}
}

// Name returns "stub".
func (s *StubBackend) Name() string { return "stub" }

// ModelID returns the configured id.
func (s *StubBackend) ModelID() string { return s.ID }

// Generate implements ports.Backend.
func (s *StubBackend) Generate(ctx context.Context, conv domain.Conversation) (domain.Response, error) {
	if err := ctx.Err(); err != nil {
		return domain.Response{}, err
	}

	testID, _ := ports.TestIDFromContext(ctx)
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
		s.convs = make(map[string]domain.Conversation)
	}
	s.calls[testID]++
	attempt := s.calls[testID]
	s.convs[testID] = conv.With()
	s.mu.Unlock()

	if s.Fail != nil {
		if err := s.Fail(testID, attempt); err != nil {
			return domain.Response{}, err
		}
	}

	return domain.Response{
		Content:  s.reply(testID, conv),
		Metadata: map[string]any{"provider": "stub", "model_id": s.ID},
	}, nil
}

func (s *StubBackend) reply(testID string, conv domain.Conversation) string {
	if r, ok := s.ByTestID[testID]; ok {
		return r
	}
	if last, ok := conv.Last(); ok {
		prompt := strings.ToLower(last.Content)
		for pattern, r := range s.Patterns {
			if pattern != "" && strings.Contains(prompt, pattern) {
				return r
			}
		}
	}
	return s.Default
}

// Calls returns the number of Generate calls made for testID.
func (s *StubBackend) Calls(testID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[testID]
}

// TotalCalls returns the number of Generate calls across all test ids.
func (s *StubBackend) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// LastConversation returns a copy of the most recent conversation sent for
// testID.
func (s *StubBackend) LastConversation(testID string) domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[testID].With()
}
