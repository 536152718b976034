package application

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ahrav/go-whoami/infrastructure/scoring"
	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

// ScorerFactory creates a scorer for one scoring method.
type ScorerFactory func() (ports.Scorer, error)

// ScorerRegistry maps scoring methods to scorer factories.
// It comes with keyword_match and regex registered; custom is registered by
// SetCustomFunc or RegisterScorerFactory.
type ScorerRegistry struct {
	// factories maps scoring methods to their factory functions.
	factories map[domain.ScoringMethod]ScorerFactory
	// mu protects concurrent access to the factories map.
	mu sync.RWMutex
}

// NewScorerRegistry creates a registry with the built-in scoring methods.
func NewScorerRegistry() *ScorerRegistry {
	r := &ScorerRegistry{factories: make(map[domain.ScoringMethod]ScorerFactory)}

	r.factories[domain.ScoringKeywordMatch] = func() (ports.Scorer, error) {
		return scoring.NewKeywordScorer(), nil
	}
	r.factories[domain.ScoringRegex] = func() (ports.Scorer, error) {
		return scoring.NewRegexScorer(), nil
	}

	return r
}

// CreateScorer creates the scorer for method.
func (r *ScorerRegistry) CreateScorer(method domain.ScoringMethod) (ports.Scorer, error) {
	if method == "" {
		method = domain.ScoringKeywordMatch
	}

	r.mu.RLock()
	factory, exists := r.factories[method]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported scoring method: %s", method)
	}

	scorer, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create scorer for method %s: %w", method, err)
	}
	return scorer, nil
}

// RegisterScorerFactory registers a factory for method, replacing any
// existing one.
func (r *ScorerRegistry) RegisterScorerFactory(method domain.ScoringMethod, factory ScorerFactory) error {
	if method == "" {
		return fmt.Errorf("scoring method cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[method] = factory
	return nil
}

// SetCustomFunc registers fn as the custom scoring method.
func (r *ScorerRegistry) SetCustomFunc(fn scoring.CustomFunc) error {
	if fn == nil {
		return scoring.ErrNilCustomFunc
	}
	return r.RegisterScorerFactory(domain.ScoringCustom, func() (ports.Scorer, error) {
		return scoring.NewCustomScorer(fn)
	})
}

// SupportedMethods returns the registered methods in sorted order.
func (r *ScorerRegistry) SupportedMethods() []domain.ScoringMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]domain.ScoringMethod, 0, len(r.factories))
	for m := range r.factories {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}
