package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/core"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/redact"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1/chat/completions"
	DefaultModel   = "gpt-4o"

	provider = "openai"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL is the full chat-completions endpoint. Useful for proxies and
	// OpenAI-compatible servers.
	BaseURL string

	HTTPClient *http.Client
}

// Client calls an OpenAI-compatible chat completion endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   model,
		http:    hc,
	}, nil
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string {
	return c.model
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one system + user exchange and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", &core.ServiceError{Provider: provider, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &core.ServiceError{Provider: provider, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &core.ServiceError{Provider: provider, StatusCode: resp.StatusCode, Err: err}
	}

	var payload chatResponse
	decodeErr := json.Unmarshal(raw, &payload)

	if resp.StatusCode/100 != 2 {
		msg := resp.Status
		if decodeErr == nil && payload.Error != nil && strings.TrimSpace(payload.Error.Message) != "" {
			msg = payload.Error.Message
		}
		return "", &core.ServiceError{Provider: provider, StatusCode: resp.StatusCode, Message: redact.Secrets(msg)}
	}
	if decodeErr != nil {
		return "", &core.ServiceError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    "malformed service response",
			Err:        decodeErr,
		}
	}
	if payload.Error != nil {
		return "", &core.ServiceError{Provider: provider, StatusCode: resp.StatusCode, Message: redact.Secrets(payload.Error.Message)}
	}
	if len(payload.Choices) == 0 {
		return "", &core.ServiceError{Provider: provider, StatusCode: resp.StatusCode, Message: "empty response"}
	}
	return payload.Choices[0].Message.Content, nil
}
