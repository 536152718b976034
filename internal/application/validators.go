package application

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterSuiteValidators registers custom validation functions with
// the validator instance for use in suite configuration validation.
// RegisterSuiteValidators adds testid, backendid, regexpattern and
// modelformat validators that can be referenced in struct tags, plus a
// struct-level rule for expected identities.
// RegisterSuiteValidators returns an error if any validator registration
// fails.
func RegisterSuiteValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("testid", validateIdentifier); err != nil {
		return fmt.Errorf("failed to register testid validator: %w", err)
	}

	if err := v.RegisterValidation("backendid", validateIdentifier); err != nil {
		return fmt.Errorf("failed to register backendid validator: %w", err)
	}

	if err := v.RegisterValidation("regexpattern", validateRegexPattern); err != nil {
		return fmt.Errorf("failed to register regexpattern validator: %w", err)
	}

	// Register model string validator for provider/model format.
	if err := v.RegisterValidation("modelformat", validateModelFormat); err != nil {
		return fmt.Errorf("failed to register modelformat validator: %w", err)
	}

	v.RegisterStructValidation(validateExpectedAnswers, ExpectedAnswersConfig{})

	return nil
}

// validateIdentifier accepts ids made of letters, digits, '-', '_' and '.'.
// Such ids are safe as file names, metric labels and map keys.
func validateIdentifier(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" {
		return false
	}
	for _, ch := range id {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.':
		default:
			return false
		}
	}
	return true
}

// validateRegexPattern checks that a pattern compiles.
func validateRegexPattern(fl validator.FieldLevel) bool {
	_, err := regexp.Compile(fl.Field().String())
	return err == nil
}

// validateExpectedAnswers requires an expected identity to name the model
// somehow, either through aliases or a model id.
func validateExpectedAnswers(sl validator.StructLevel) {
	ea := sl.Current().Interface().(ExpectedAnswersConfig)
	if len(ea.ModelNames) == 0 && ea.ModelID == "" {
		sl.ReportError(ea.ModelNames, "ModelNames", "model_names", "names_or_id", "")
	}
}

// validateModelFormat validates that a model string matches the required format:
// ^[a-z0-9]+/[A-Za-z0-9\-_\.]+(@[A-Za-z0-9\-_\.]+)?$
// This ensures the model follows the pattern provider/model or provider/model@version.
func validateModelFormat(fl validator.FieldLevel) bool {
	_, _, err := ParseModelSpec(fl.Field().String())
	return err == nil
}

// ParseModelSpec splits a "provider/model" string. An "@version" suffix is
// kept as part of the model. The provider must be lower-case alphanumeric.
func ParseModelSpec(spec string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(spec, "/")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("model spec %q must have the form provider/model", spec)
	}
	for _, ch := range provider {
		if (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') {
			return "", "", fmt.Errorf("model spec %q: provider must be lower-case alphanumeric", spec)
		}
	}
	for _, ch := range model {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.', ch == '@':
		default:
			return "", "", fmt.Errorf("model spec %q: invalid character %q in model", spec, ch)
		}
	}
	return provider, model, nil
}
