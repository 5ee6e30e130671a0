package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	providerOpenAI    = "openai"
	providerAnthropic = "anthropic"
	providerOllama    = "ollama"
)

// NewCaller creates a CallFunc for the configured provider.
// Resolution order for the API key:
//  1. Explicit APIKey in config
//  2. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
func NewCaller(cfg Config) (CallFunc, error) {
	provider := strings.ToLower(cfg.Provider)
	model := cfg.Model

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = resolveAPIKeyFromEnv(provider)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	switch provider {
	case providerOpenAI, "":
		if model == "" {
			model = "gpt-4o-mini"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
		return newOpenAICaller(apiKey, model, baseURL, timeout), nil

	case providerAnthropic:
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}
		return newAnthropicCaller(apiKey, model, baseURL, timeout), nil

	case providerOllama:
		if model == "" {
			model = "llama3.2"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return newOllamaCaller(model, baseURL, timeout), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

func resolveAPIKeyFromEnv(provider string) string {
	switch provider {
	case providerAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case providerOpenAI, "":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}

// --- OpenAI caller ---

type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	ResponseFormat *openAIRespFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRespFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newOpenAICaller(apiKey, model, baseURL string, timeout time.Duration) CallFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := openAIRequest{
			Model: model,
			Messages: []openAIMessage{
				{Role: "user", Content: prompt},
			},
			ResponseFormat: &openAIRespFormat{Type: "json_object"},
		}

		data, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: openai request: %v", ErrTransport, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("%w: read response: %v", ErrTransport, err)
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%w: openai API error (status %d): %s", ErrTransport, resp.StatusCode, string(body))
		}

		var result openAIResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}

		if result.Error != nil {
			return "", fmt.Errorf("%w: openai error: %s", ErrTransport, result.Error.Message)
		}

		if len(result.Choices) == 0 {
			return "", errors.New("openai returned no choices")
		}

		return result.Choices[0].Message.Content, nil
	}
}

// --- Anthropic caller ---

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newAnthropicCaller(apiKey, model, baseURL string, timeout time.Duration) CallFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := anthropicRequest{
			Model:     model,
			MaxTokens: 2048,
			Messages: []anthropicMessage{
				{Role: "user", Content: prompt + "\n\nReturn ONLY valid JSON, no markdown or extra text."},
			},
		}

		data, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: anthropic request: %v", ErrTransport, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("%w: read response: %v", ErrTransport, err)
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%w: anthropic API error (status %d): %s", ErrTransport, resp.StatusCode, string(body))
		}

		var result anthropicResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}

		if result.Error != nil {
			return "", fmt.Errorf("%w: anthropic error: %s", ErrTransport, result.Error.Message)
		}

		if len(result.Content) == 0 {
			return "", errors.New("anthropic returned no content")
		}

		return result.Content[0].Text, nil
	}
}

// --- Ollama caller ---

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func newOllamaCaller(model, baseURL string, timeout time.Duration) CallFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := ollamaChatRequest{
			Model: model,
			Messages: []ollamaChatMessage{
				{Role: "user", Content: prompt},
			},
			Stream: false,
			Format: "json",
		}

		data, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/chat", bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: ollama request: %v", ErrTransport, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("%w: read response: %v", ErrTransport, err)
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%w: ollama API error (status %d): %s", ErrTransport, resp.StatusCode, string(body))
		}

		var result ollamaChatResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}

		return result.Message.Content, nil
	}
}
