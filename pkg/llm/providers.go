package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

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

func (c *httpCaller) openAI(ctx context.Context, model, prompt string) (string, error) {
	reqBody := openAIRequest{
		Model: c.modelFor(model),
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &openAIRespFormat{Type: "json_object"},
	}

	body, err := c.post(ctx, "/v1/chat/completions", reqBody, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("openai %w", err)
	}

	var result openAIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("openai error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	return result.Choices[0].Message.Content, nil
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

func (c *httpCaller) anthropic(ctx context.Context, model, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     c.modelFor(model),
		MaxTokens: 1024,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt + "\n\nReturn ONLY valid JSON, no markdown or extra text."},
		},
	}

	body, err := c.post(ctx, "/v1/messages", reqBody, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", fmt.Errorf("anthropic %w", err)
	}

	var result anthropicResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("anthropic error: %s", result.Error.Message)
	}
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", errors.New("anthropic returned no content")
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

func (c *httpCaller) ollama(ctx context.Context, model, prompt string) (string, error) {
	reqBody := ollamaChatRequest{
		Model: c.modelFor(model),
		Messages: []ollamaChatMessage{
			{Role: "user", Content: prompt},
		},
		Stream: false,
		Format: "json",
	}

	body, err := c.post(ctx, "/api/chat", reqBody, nil)
	if err != nil {
		return "", fmt.Errorf("ollama %w", err)
	}

	var result ollamaChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	return result.Message.Content, nil
}

// post sends a JSON body and returns the response body of a 200 reply.
func (c *httpCaller) post(ctx context.Context, path string, payload any, headers map[string]string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
