package llm

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// ProviderConfig describes how the Registry builds clients for one
// provider.
type ProviderConfig struct {
	// Type is the provider factory name.
	Type string
	// EnvVar holds the API key. Empty for keyless providers.
	EnvVar string
	// DefaultModel is used when a spec names only the provider.
	DefaultModel string
	// BaseURL overrides the provider endpoint.
	BaseURL string
}

// DefaultProviders lists the built-in providers.
var DefaultProviders = map[string]ProviderConfig{
	"openai": {
		Type:         "openai",
		EnvVar:       "OPENAI_API_KEY",
		DefaultModel: OpenAIDefaultModel,
	},
	"anthropic": {
		Type:         "anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: AnthropicDefaultModel,
	},
	"google": {
		Type:         "google",
		EnvVar:       "GOOGLE_API_KEY",
		DefaultModel: GoogleDefaultModel,
	},
	"ollama": {
		Type:         "ollama",
		DefaultModel: OllamaDefaultModel,
		BaseURL:      OllamaDefaultBaseURL,
	},
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Providers       map[string]ProviderConfig
	DefaultProvider string
	DefaultTimeout  time.Duration
	// TokenEstimator is shared by every client. Nil uses the character
	// estimator.
	TokenEstimator TokenEstimator
	// Middleware returns the chain for a provider; it receives the provider
	// name so metrics and tracing can label by it.
	Middleware func(provider string) []Middleware
	// Getenv resolves API keys. Defaults to os.Getenv.
	Getenv func(string) string
}

// Registry builds and caches one Client per "provider/model" spec.
type Registry struct {
	mu              sync.Mutex
	providers       map[string]ProviderConfig
	clients         map[string]*Client
	defaultProvider string
	defaultTimeout  time.Duration
	estimator       TokenEstimator
	middleware      func(string) []Middleware
	getenv          func(string) string
}

// NewRegistry validates config and returns an empty registry.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.Providers == nil {
		config.Providers = DefaultProviders
	}
	if config.DefaultProvider == "" {
		return nil, fmt.Errorf("default provider cannot be empty")
	}
	if _, ok := config.Providers[config.DefaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q not found in providers configuration", config.DefaultProvider)
	}
	if config.Getenv == nil {
		config.Getenv = os.Getenv
	}

	return &Registry{
		providers:       config.Providers,
		clients:         make(map[string]*Client),
		defaultProvider: config.DefaultProvider,
		defaultTimeout:  config.DefaultTimeout,
		estimator:       config.TokenEstimator,
		middleware:      config.Middleware,
		getenv:          config.Getenv,
	}, nil
}

// GetDefaultClient returns the client for the default provider and model.
func (r *Registry) GetDefaultClient() (*Client, error) {
	return r.GetClient(r.defaultProvider)
}

// GetClient returns the client for spec, which is "provider" or
// "provider/model". Model names may contain further slashes.
func (r *Registry) GetClient(spec string) (*Client, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("provider specification cannot be empty")
	}
	provider, model := r.parseSpec(spec)
	key := provider + "/" + model

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	c, err := r.createClient(provider, model)
	if err != nil {
		return nil, err
	}
	r.clients[key] = c
	return c, nil
}

// Providers returns the configured provider names in sorted order.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) parseSpec(spec string) (provider, model string) {
	provider, model, _ = strings.Cut(strings.TrimSpace(spec), "/")
	if model == "" {
		if pc, ok := r.providers[provider]; ok {
			model = pc.DefaultModel
		}
	}
	return provider, model
}

func (r *Registry) createClient(provider, model string) (*Client, error) {
	pc, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	var apiKey string
	if pc.EnvVar != "" {
		apiKey = r.getenv(pc.EnvVar)
		if apiKey == "" {
			return nil, fmt.Errorf("%s environment variable not set for provider %q", pc.EnvVar, provider)
		}
	}

	config := ClientConfig{
		APIKey:         apiKey,
		Model:          model,
		BaseURL:        pc.BaseURL,
		Timeout:        r.defaultTimeout,
		TokenEstimator: r.estimator,
	}
	if r.middleware != nil {
		config.Middleware = r.middleware(provider)
	}
	return NewClient(pc.Type, config)
}
