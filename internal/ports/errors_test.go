package ports

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestStorageError tests creation, formatting and unwrapping of StorageError.
func TestStorageError(t *testing.T) {
	err := NewStorageError("outputs/response_3.md", "write", ErrStorageUnavailable)

	assert.Equal(t, "storage error: operation=write, path=outputs/response_3.md, err=artifact storage unavailable", err.Error())
	assert.Equal(t, "outputs/response_3.md", err.Path)
	assert.Equal(t, "write", err.Operation)
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
}

// TestConfigError tests creation, formatting and unwrapping of ConfigError.
func TestConfigError(t *testing.T) {
	err := NewConfigError("OPENROUTER_API_KEY", ErrConfigNotFound)

	assert.Equal(t, "config error: key=OPENROUTER_API_KEY, err=configuration not found", err.Error())
	assert.True(t, errors.Is(err, ErrConfigNotFound))

	var cfgErr *ConfigError
	wrapped := errors.Join(errors.New("load failed"), err)
	assert.True(t, errors.As(wrapped, &cfgErr))
	assert.Equal(t, "OPENROUTER_API_KEY", cfgErr.ConfigKey)
}
