package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"deepfake/internal/pkg/media"
)

// OllamaConfig contains configuration for Ollama client.
type OllamaConfig struct {
	BaseURL string // e.g., "http://localhost:11434"
	Model   string // a vision model, e.g., "llava:13b" or "qwen2.5vl:7b"
	Timeout time.Duration
}

// DefaultOllamaConfig returns default configuration for local Ollama.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL: "http://localhost:11434",
		Model:   "qwen2.5vl:7b",
		Timeout: 120 * time.Second,
	}
}

// OllamaClient is a client for Ollama API (self-hosted). Only images are supported.
type OllamaClient struct {
	config     OllamaConfig
	httpClient *http.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	return &OllamaClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// ollamaRequest represents an Ollama chat request.
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64 without data URI prefix
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaResponse represents an Ollama chat response.
type ollamaResponse struct {
	Model     string        `json:"model"`
	CreatedAt string        `json:"created_at"`
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`
	Error     string        `json:"error,omitempty"`
}

// Judge asks the model to assess an image. Audio is rejected with *UnsupportedMediaError.
func (c *OllamaClient) Judge(ctx context.Context, blob media.Blob) (*Judgement, error) {
	if blob.Family() != "image" {
		return nil, &UnsupportedMediaError{MIMEType: blob.MIMEType}
	}
	reqBody := ollamaRequest{
		Model: c.config.Model,
		Messages: []ollamaMessage{
			{Role: "user", Content: imagePrompt, Images: []string{blob.Base64()}},
		},
		Stream: false,
		Format: "json",
		Options: &ollamaOptions{
			Temperature: 0.2,
			NumPredict:  512,
		},
	}

	ollamaResp, err := c.callAPI(ctx, reqBody)
	if err != nil {
		return nil, err
	}
	j, err := ParseJudgement(ollamaResp.Message.Content)
	if err != nil {
		return nil, err
	}
	j.Model = ollamaResp.Model
	return j, nil
}

func (c *OllamaClient) callAPI(ctx context.Context, reqBody ollamaRequest) (*ollamaResponse, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Ollama API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if ollamaResp.Error != "" {
		return nil, fmt.Errorf("Ollama error: %s", ollamaResp.Error)
	}

	return &ollamaResp, nil
}

// Ping checks if Ollama is running and the model is available.
func (c *OllamaClient) Ping(ctx context.Context) error {
	models, err := c.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("Ollama not reachable at %s: %w", c.config.BaseURL, err)
	}
	for _, m := range models {
		if m == c.config.Model {
			return nil
		}
	}
	return fmt.Errorf("Ollama model %s is not pulled", c.config.Model)
}

// ListModels returns available models from Ollama.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	models := make([]string, len(result.Models))
	for i, m := range result.Models {
		models[i] = m.Name
	}
	return models, nil
}
