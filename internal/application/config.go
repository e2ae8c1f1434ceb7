package application

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-bestof/infrastructure/llm"
	"github.com/ahrav/go-bestof/infrastructure/units"
	"github.com/ahrav/go-bestof/internal/ports"
)

// Default values used when neither the config file nor the command line
// sets a field.
const (
	DefaultProvider       = "openai"
	DefaultAPIKeyEnv      = "OPENROUTER_API_KEY"
	DefaultGeneratorModel = "openai/gpt-4o-mini"
	DefaultJudgeModel     = "openai/gpt-4o"
	DefaultCount          = 10
	DefaultTopK           = 3
	DefaultTemperature    = 0.7
	DefaultOutputDir      = "outputs"
	DefaultTimeout        = 2 * time.Minute
)

var (
	// ErrMissingAPIKey is returned when the environment variable holding the
	// API key is unset or empty.
	ErrMissingAPIKey = errors.New("API key not found in environment")

	// ErrConfigValidation wraps every struct validation failure.
	ErrConfigValidation = errors.New("configuration validation failed")
)

// Config is the complete configuration of a best-of-N run.
// It is loaded from an optional YAML file on top of DefaultConfig and then
// overridden by command line flags.
type Config struct {
	// Provider selects the completion backend registered in the llm package.
	Provider string `yaml:"provider" validate:"required,oneof=openai anthropic google"`
	// BaseURL overrides the provider endpoint. The openai provider points at
	// OpenRouter by default.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// APIKeyEnv names the environment variable the API key is read from.
	APIKeyEnv string `yaml:"api_key_env" validate:"required,max=255"`
	// APIKey is resolved from APIKeyEnv and never read from the file.
	APIKey string `yaml:"-"`

	Generator GeneratorSettings `yaml:"generator" validate:"required"`
	Judge     JudgeSettings     `yaml:"judge" validate:"required"`
	Output    OutputSettings    `yaml:"output" validate:"required"`

	// Timeout bounds every completion call. Zero disables the bound.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`

	RateLimit RateLimitSettings `yaml:"rate_limit"`
}

// GeneratorSettings configures the sampling phase.
type GeneratorSettings struct {
	Model string `yaml:"model" validate:"required,modelname"`
	// Count is the number of samples drawn for the question.
	Count int `yaml:"count" validate:"required,min=1,max=1000"`
	// Temperature is forwarded to the service unchecked.
	Temperature float64 `yaml:"temperature"`
	// MaxConcurrency caps simultaneous calls, at most 20.
	MaxConcurrency int `yaml:"max_concurrency" validate:"required,min=1,max=20"`
	MaxTokens      int `yaml:"max_tokens" validate:"min=0,max=200000"`
}

// JudgeSettings configures the ranking phase.
type JudgeSettings struct {
	Model string `yaml:"model" validate:"required,modelname"`
	// TopK is the number of answers the judge is asked to pick. Values
	// outside [1, count] are clamped when the request is built.
	TopK int `yaml:"top_k" validate:"required,min=1"`
}

// OutputSettings controls where artifacts are written.
type OutputSettings struct {
	Dir string `yaml:"dir" validate:"required"`
	// PerRun places each run in a subdirectory named after its run ID.
	PerRun bool `yaml:"per_run"`
}

// RateLimitSettings throttles outgoing completion calls. RPS of zero
// disables throttling.
type RateLimitSettings struct {
	RPS   float64 `yaml:"rps" validate:"min=0"`
	Burst int     `yaml:"burst" validate:"min=0"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Provider:  DefaultProvider,
		BaseURL:   llm.OpenRouterBaseURL,
		APIKeyEnv: DefaultAPIKeyEnv,
		Generator: GeneratorSettings{
			Model:          DefaultGeneratorModel,
			Count:          DefaultCount,
			Temperature:    DefaultTemperature,
			MaxConcurrency: units.DefaultMaxConcurrency,
		},
		Judge: JudgeSettings{
			Model: DefaultJudgeModel,
			TopK:  DefaultTopK,
		},
		Output:  OutputSettings{Dir: DefaultOutputDir},
		Timeout: DefaultTimeout,
		RateLimit: RateLimitSettings{
			Burst: 1,
		},
	}
}

// LoadConfig reads path from fs and decodes it over DefaultConfig.
// An empty path yields the defaults. Unknown keys are rejected so that typos
// do not go unnoticed. The result is not validated; call Validate after
// applying overrides.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, ports.NewConfigError(path, fmt.Errorf("failed to read config file: %w", err))
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, ports.NewConfigError(path, fmt.Errorf("YAML decode failed: %w", err))
	}
	return cfg, nil
}

// Validate checks every field against its struct tags.
// The first failing field is reported as a ports.ConfigError wrapping
// ErrConfigValidation.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return ports.NewConfigError(
			fe.Namespace(),
			fmt.Errorf("%w: %q failed on the %q rule", ErrConfigValidation, fe.Field(), fe.Tag()),
		)
	}
	return ports.NewConfigError("config", fmt.Errorf("%w: %v", ErrConfigValidation, err))
}

// ResolveAPIKey reads the API key from the variable named by APIKeyEnv using
// lookup, which is os.LookupEnv when nil.
func (c *Config) ResolveAPIKey(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	key, ok := lookup(c.APIKeyEnv)
	if !ok || key == "" {
		return ports.NewConfigError(c.APIKeyEnv, ErrMissingAPIKey)
	}
	c.APIKey = key
	return nil
}

// DotEnvFile is the file, relative to the working directory, whose
// variables fill in anything missing from the process environment.
const DotEnvFile = ".env"

// LoadDotEnv parses the dotenv file at path. A missing file yields no
// variables and no error.
func LoadDotEnv(fs afero.Fs, path string) (map[string]string, error) {
	f, err := fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ports.NewConfigError(path, fmt.Errorf("failed to open env file: %w", err))
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return nil, ports.NewConfigError(path, fmt.Errorf("failed to parse env file: %w", err))
	}
	return vars, nil
}

// WithDotEnv returns a lookup that prefers lookup and falls back to vars,
// so exported variables always win over the dotenv file.
func WithDotEnv(lookup func(string) (string, bool), vars map[string]string) func(string) (string, bool) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return func(name string) (string, bool) {
		if v, ok := lookup(name); ok && v != "" {
			return v, true
		}
		v, ok := vars[name]
		return v, ok
	}
}

// GeneratorConfig converts the generator settings into the units form.
func (c *Config) GeneratorConfig() units.GeneratorConfig {
	return units.GeneratorConfig{
		MaxConcurrency: c.Generator.MaxConcurrency,
		MaxTokens:      c.Generator.MaxTokens,
	}
}

// ProviderBaseURL returns the endpoint override for the configured provider.
// The OpenRouter default only applies to the openai provider; other
// providers fall back to their own endpoint.
func (c *Config) ProviderBaseURL() string {
	if c.Provider != DefaultProvider && c.BaseURL == llm.OpenRouterBaseURL {
		return ""
	}
	return c.BaseURL
}
