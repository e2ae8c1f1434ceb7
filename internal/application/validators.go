package application

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// configValidator validates Config with the custom tags registered below.
var configValidator = mustConfigValidator()

func mustConfigValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		panic(err)
	}
	return v
}

// RegisterConfigValidators adds the modelname tag to v.
// RegisterConfigValidators returns an error if registration fails.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("modelname", validateModelName); err != nil {
		return fmt.Errorf("failed to register modelname validator: %w", err)
	}
	return nil
}

// validateModelName accepts bare model IDs ("gpt-4o") and routed IDs
// ("openai/gpt-4o", "meta-llama/llama-3-70b:free"). Each slash-separated
// segment must be non-empty and the whole ID may not contain whitespace.
func validateModelName(fl validator.FieldLevel) bool {
	return IsValidModelName(fl.Field().String())
}

// IsValidModelName reports whether model is acceptable as a model ID.
func IsValidModelName(model string) bool {
	if model == "" {
		return false
	}

	for _, segment := range strings.Split(model, "/") {
		if segment == "" {
			return false
		}
		for _, ch := range segment {
			if !isModelRune(ch) {
				return false
			}
		}
	}
	return true
}

func isModelRune(ch rune) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	case ch == '-', ch == '_', ch == '.', ch == ':', ch == '@':
		return true
	}
	return false
}
