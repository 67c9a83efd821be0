// Package llm is the assistant's chat-model client. The assistant makes two
// short completion calls per query, so only the blocking chat call and a
// reachability probe are exposed; there is no streaming surface.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is one turn of a chat exchange. Role is "system", "user" or
// "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Available(ctx context.Context) (bool, error)
	Model() string
}

// OllamaClient talks to an Ollama server's /api/chat endpoint.
type OllamaClient struct {
	host          string
	model         string
	contextLength int
	httpClient    *http.Client
}

func NewOllamaClient(host, model string, contextLength int) *OllamaClient {
	return &OllamaClient{
		host:          host,
		model:         model,
		contextLength: contextLength,
		// Generation on CPU-only hosts can take a while.
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// Chat runs one non-streaming completion and returns the model's reply text.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"num_ctx": c.contextLength},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(errBody))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	return out.Message.Content, nil
}

// Available reports whether the Ollama server answers at all.
func (c *OllamaClient) Available(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (c *OllamaClient) Model() string {
	return c.model
}
