// Package llm calls chat-completion providers and turns their JSON output
// into candidate memory facts.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"

	defaultTimeout = 30 * time.Second
)

// ErrUnsupportedProvider is returned for an unknown provider name.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// CallFunc sends a single-turn prompt and returns the model's text reply.
// An empty model uses the caller's configured model.
type CallFunc func(ctx context.Context, model, prompt string) (string, error)

// CallerConfig holds configuration for creating an LLM caller.
type CallerConfig struct {
	Provider string        // "openai", "anthropic", or "ollama"
	Model    string        // e.g. "gpt-4o-mini", "claude-haiku-4-5-20251001"
	APIKey   string        // explicit API key (highest priority)
	BaseURL  string        // override base URL
	Timeout  time.Duration // per-call timeout, 30s by default

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// HasCredentials reports whether an API key can be resolved for the config
// without creating a caller. Ollama needs none.
func HasCredentials(cfg CallerConfig) bool {
	if cfg.APIKey != "" {
		return true
	}
	provider := strings.ToLower(cfg.Provider)
	if provider == ProviderOllama {
		return true
	}
	return resolveAPIKeyFromEnv(provider) != ""
}

// NewCaller creates a CallFunc for the configured provider.
// Resolution order for API key:
//  1. Explicit APIKey in config
//  2. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
func NewCaller(cfg CallerConfig) (CallFunc, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = resolveAPIKeyFromEnv(provider)
	}

	c := &httpCaller{
		apiKey:  apiKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client:  cfg.HTTPClient,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}

	switch provider {
	case ProviderOpenAI, "":
		if apiKey == "" {
			return nil, fmt.Errorf("openai: %w", errMissingAPIKey)
		}
		c.defaults("gpt-4o-mini", "https://api.openai.com")
		return c.openAI, nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic: %w", errMissingAPIKey)
		}
		c.defaults("claude-haiku-4-5-20251001", "https://api.anthropic.com")
		return c.anthropic, nil

	case ProviderOllama:
		c.defaults("llama3.2", "http://localhost:11434")
		return c.ollama, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}

var errMissingAPIKey = errors.New("api key is required")

func resolveAPIKeyFromEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI, "":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}

type httpCaller struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	client  *http.Client
}

func (c *httpCaller) defaults(model, baseURL string) {
	if c.model == "" {
		c.model = model
	}
	if c.baseURL == "" {
		c.baseURL = baseURL
	}
}

func (c *httpCaller) modelFor(override string) string {
	if override != "" {
		return override
	}
	return c.model
}
