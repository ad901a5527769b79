// Package completion is the boundary to the text-completion service used by every pipeline.
//
// Implementations report failures as *core.ServiceError; callers treat every failure the same
// way, so no retry or transient classification happens here.
package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/shpitdev/product-data-enhancer/internal/completion/gemini"
	"github.com/shpitdev/product-data-enhancer/internal/completion/openai"
)

// Completer returns a completion for a system instruction and a user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Func adapts a function to the Completer interface.
type Func func(ctx context.Context, system, user string) (string, error)

func (f Func) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and configures a completion backend.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	// BaseURL overrides the backend endpoint. Useful for proxies/testing.
	BaseURL string
}

// New constructs the backend named by cfg.Provider (default: openai).
func New(ctx context.Context, cfg Config) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		c, err := openai.New(openai.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderGemini:
		c, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q (expected openai|gemini)", cfg.Provider)
	}
}
