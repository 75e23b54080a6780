package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// CallRequest is a single eye invocation against a provider/model pair.
type CallRequest struct {
	Eye          string
	Provider     string
	Model        string
	SystemPrompt string
	UserInput    string
	Temperature  *float64
	MaxTokens    *int
}

// CallResult is the raw outcome of a provider call.
type CallResult struct {
	Text      string
	Model     string
	TokensIn  int
	TokensOut int
}

// Provider calls a provider/model pair and returns raw text.
type Provider interface {
	Call(ctx context.Context, req CallRequest) (*CallResult, error)
	ListModels(ctx context.Context, provider string) ([]Model, error)
}

// Endpoint is the base URL of an OpenAI-compatible provider.
type Endpoint struct {
	BaseURL string
}

// Router dispatches calls to per-provider clients.
type Router struct {
	endpoints map[string]Endpoint
	creds     CredentialStore
	timeout   time.Duration

	mu      sync.Mutex
	clients map[string]*Client
}

// Ensure Router implements Provider.
var _ Provider = (*Router)(nil)

// NewRouter creates a provider router.
func NewRouter(endpoints map[string]Endpoint, creds CredentialStore, timeout time.Duration) *Router {
	return &Router{
		endpoints: endpoints,
		creds:     creds,
		timeout:   timeout,
		clients:   make(map[string]*Client),
	}
}

func (r *Router) client(ctx context.Context, provider string) (*Client, error) {
	provider = strings.ToLower(provider)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[provider]; ok {
		return c, nil
	}

	ep, ok := r.endpoints[provider]
	if !ok || ep.BaseURL == "" {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	key, err := r.creds.APIKey(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credentials for %s: %w", provider, err)
	}
	c := NewClient(ep.BaseURL, key, r.timeout, providerHeaders(provider)...)
	r.clients[provider] = c
	return c, nil
}

// providerHeaders returns the attribution headers some providers expect.
func providerHeaders(provider string) []ClientOption {
	switch provider {
	case "openrouter":
		return []ClientOption{
			WithHeader("HTTP-Referer", "https://github.com/xiaot623/thirdeye"),
			WithHeader("X-Title", "thirdeye"),
		}
	default:
		return nil
	}
}

// Call sends the persona as system context and the input as user content.
func (r *Router) Call(ctx context.Context, req CallRequest) (*CallResult, error) {
	c, err := r.client(ctx, req.Provider)
	if err != nil {
		return nil, err
	}

	resp, err := c.CreateChatCompletion(ctx, &ChatCompletionRequest{
		Model: req.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserInput},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	result := &CallResult{
		Text:  resp.Text(),
		Model: resp.Model,
	}
	if resp.Usage != nil {
		result.TokensIn = resp.Usage.PromptTokens
		result.TokensOut = resp.Usage.CompletionTokens
	}
	return result, nil
}

// ListModels lists the models a provider exposes.
func (r *Router) ListModels(ctx context.Context, provider string) ([]Model, error) {
	c, err := r.client(ctx, provider)
	if err != nil {
		return nil, err
	}
	return c.ListModels(ctx)
}

// NewProvider returns the mock provider in mock mode, otherwise a Router.
func NewProvider(mock bool, endpoints map[string]Endpoint, creds CredentialStore, timeout time.Duration) Provider {
	if mock {
		log.Println("INFO: mock mode detected, using mock provider")
		return NewMockClient()
	}
	return NewRouter(endpoints, creds, timeout)
}
