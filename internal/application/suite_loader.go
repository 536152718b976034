package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-whoami/internal/domain"
	"github.com/ahrav/go-whoami/internal/ports"
)

// LoadedSuite is a validated suite together with the backend bindings
// declared next to it.
// WARNING: LoadedSuite values are cached and shared. Callers MUST NOT
// mutate the suite or the bindings.
type LoadedSuite struct {
	// Suite is the immutable suite definition.
	Suite *domain.EvalSuite
	// Models maps backend ids to provider/model specs for backends that
	// declared one.
	Models map[string]string
	// Hash is the SHA256 of the normalized configuration.
	Hash string
}

// SuiteLoader parses, validates and caches suite documents, transforming
// declarative YAML or JSON into immutable domain.EvalSuite values.
// Use SuiteLoader to load suites from files or readers while benefiting
// from SHA256-based caching and comprehensive validation.
type SuiteLoader struct {
	// validator performs struct field validation and custom validation
	// rules for suite configurations and their nested components.
	validator *validator.Validate
	// cache stores loaded suites indexed by SHA256 hash of the normalized
	// configuration.
	cache map[string]*LoadedSuite
	// cacheMu provides thread-safe access to the cache map.
	cacheMu sync.RWMutex
	// sf prevents duplicate loads when multiple goroutines request the
	// same suite simultaneously.
	sf singleflight.Group
}

// NewSuiteLoader creates a new suite loader with validation capabilities
// and an empty cache.
// NewSuiteLoader returns an error if validator registration fails.
func NewSuiteLoader() (*SuiteLoader, error) {
	v := validator.New()

	if err := RegisterSuiteValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	return &SuiteLoader{
		validator: v,
		cache:     make(map[string]*LoadedSuite),
	}, nil
}

// LoadFromFile loads a suite from a YAML or JSON file.
// Every failure is reported as *ports.ConfigError.
func (sl *SuiteLoader) LoadFromFile(ctx context.Context, path string) (*LoadedSuite, error) {
	// Clean the path to prevent directory traversal attacks.
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, ports.NewConfigError("suite", fmt.Errorf("failed to read file: %w", err))
	}

	return sl.Load(ctx, data)
}

// LoadFromReader loads a suite from an io.Reader.
// Every failure is reported as *ports.ConfigError.
func (sl *SuiteLoader) LoadFromReader(ctx context.Context, r io.Reader) (*LoadedSuite, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ports.NewConfigError("suite", fmt.Errorf("failed to read data: %w", err))
	}

	return sl.Load(ctx, data)
}

// Load parses and validates a suite document. Documents starting with '{'
// are decoded as JSON, anything else as YAML; both reject unknown fields.
// A suite without test cases fails with a ConfigError wrapping
// domain.ErrEmptySuite, and a canceled ctx with one wrapping ctx.Err().
func (sl *SuiteLoader) Load(ctx context.Context, data []byte) (*LoadedSuite, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.NewConfigError("suite", fmt.Errorf("load aborted: %w", err))
	}

	config, err := parseSuite(data)
	if err != nil {
		return nil, ports.NewConfigError("suite", err)
	}

	// Calculate hash based on normalized config, not raw bytes.
	hash, err := sl.calculateConfigHash(config)
	if err != nil {
		return nil, ports.NewConfigError("suite", err)
	}

	v, err, _ := sl.sf.Do(hash, func() (any, error) {
		if loaded, ok := sl.getCached(hash); ok {
			return loaded, nil
		}

		suite, err := sl.validateConfig(config)
		if err != nil {
			return nil, err
		}

		models := make(map[string]string)
		for id, mc := range config.ModelConfigs {
			if mc.Model != "" {
				models[id] = mc.Model
			}
		}

		loaded := &LoadedSuite{Suite: suite, Models: models, Hash: hash}
		sl.cacheSuite(hash, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*LoadedSuite), nil
}

// parseSuite decodes data strictly so configuration typos are never
// silently ignored.
func parseSuite(data []byte) (*SuiteConfig, error) {
	var config SuiteConfig
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("suite document is empty")
	}

	if trimmed[0] == '{' {
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&config); err != nil {
			return nil, fmt.Errorf("JSON decode failed: %w", err)
		}
		return &config, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(trimmed))
	decoder.KnownFields(true) // Strict mode - fail on unknown fields.
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// validateConfig runs struct validation, converts the document and runs
// the domain invariants on the result.
func (sl *SuiteLoader) validateConfig(config *SuiteConfig) (*domain.EvalSuite, error) {
	if len(config.TestCases) == 0 {
		return nil, ports.NewConfigError("test_cases", domain.ErrEmptySuite)
	}

	if err := sl.validator.Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, ports.NewConfigError(verrs[0].Namespace(), fmt.Errorf("struct validation failed: %w", err))
		}
		return nil, ports.NewConfigError("suite", fmt.Errorf("struct validation failed: %w", err))
	}

	suite, err := config.ToSuite()
	if err != nil {
		return nil, ports.NewConfigError("suite", err)
	}
	if err := suite.Validate(); err != nil {
		return nil, ports.NewConfigError("suite", fmt.Errorf("semantic validation failed: %w", err))
	}
	return suite, nil
}

// calculateConfigHash computes the SHA256 hash of a normalized SuiteConfig
// so that semantically identical YAML and JSON documents share a cache entry.
func (sl *SuiteLoader) calculateConfigHash(config *SuiteConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

func (sl *SuiteLoader) getCached(hash string) (*LoadedSuite, bool) {
	sl.cacheMu.RLock()
	defer sl.cacheMu.RUnlock()

	loaded, ok := sl.cache[hash]
	return loaded, ok
}

func (sl *SuiteLoader) cacheSuite(hash string, loaded *LoadedSuite) {
	sl.cacheMu.Lock()
	defer sl.cacheMu.Unlock()

	sl.cache[hash] = loaded
}

// ClearCache removes all cached suites, forcing subsequent loads to
// re-validate from source.
func (sl *SuiteLoader) ClearCache() {
	sl.cacheMu.Lock()
	defer sl.cacheMu.Unlock()

	sl.cache = make(map[string]*LoadedSuite)
}
