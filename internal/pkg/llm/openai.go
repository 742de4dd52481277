package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deepfake/internal/pkg/media"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig contains configuration for an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	BaseURL     string // e.g., "https://generativelanguage.googleapis.com/v1beta/openai/"
	APIKey      string
	Model       string // e.g., "gemini-2.0-flash"
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// DefaultOpenAIConfig returns default configuration for the Gemini compatibility endpoint.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
		Model:       "gemini-2.0-flash",
		Temperature: 0.2,
		Timeout:     60 * time.Second,
		MaxRetries:  2,
	}
}

// OpenAIClient judges media through the Chat Completions API.
type OpenAIClient struct {
	config OpenAIConfig
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(config OpenAIConfig, opts ...option.RequestOption) *OpenAIClient {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(config.Timeout))
	}
	clientOpts = append(clientOpts, opts...)

	return &OpenAIClient{
		config: config,
		client: openai.NewClient(clientOpts...),
	}
}

// Judge asks the model to assess one image or audio payload.
func (c *OpenAIClient) Judge(ctx context.Context, blob media.Blob) (*Judgement, error) {
	part, err := contentPartFor(blob)
	if err != nil {
		return nil, err
	}
	prompt, err := PromptFor(blob.Family())
	if err != nil {
		return nil, err
	}

	raw, model, err := c.complete(ctx, prompt, part)
	if err != nil {
		return nil, err
	}
	j, err := ParseJudgement(raw)
	if err != nil {
		return nil, err
	}
	j.Model = model
	return j, nil
}

// JudgeVideo asks the model to assess a whole video file in one call.
func (c *OpenAIClient) JudgeVideo(ctx context.Context, blob media.Blob) (*VideoJudgement, error) {
	if blob.Family() != "video" {
		return nil, &UnsupportedMediaError{MIMEType: blob.MIMEType}
	}
	part := openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
		FileData: openai.String(blob.DataURI()),
		Filename: openai.String("video" + media.ExtensionFor("", blob.MIMEType)),
	})

	raw, model, err := c.complete(ctx, videoPrompt, part)
	if err != nil {
		return nil, err
	}
	v, err := ParseVideoJudgement(raw)
	if err != nil {
		return nil, err
	}
	v.Model = model
	return v, nil
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string, part openai.ChatCompletionContentPartUnionParam) (string, string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				part,
			}),
		},
		Model:       c.config.Model,
		Temperature: openai.Float(c.config.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to call chat completions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", "", ErrEmptyResponse
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if raw == "" {
		return "", "", ErrEmptyResponse
	}
	return raw, resp.Model, nil
}

// contentPartFor encodes a payload as an inline chat content part.
func contentPartFor(blob media.Blob) (openai.ChatCompletionContentPartUnionParam, error) {
	switch blob.Family() {
	case "image":
		return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    blob.DataURI(),
			Detail: "high",
		}), nil
	case "audio":
		return openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
			Data:   blob.Base64(),
			Format: audioFormat(blob.Subtype()),
		}), nil
	default:
		return openai.ChatCompletionContentPartUnionParam{}, &UnsupportedMediaError{MIMEType: blob.MIMEType}
	}
}

// audioFormat maps a MIME subtype onto the input_audio format names.
func audioFormat(subtype string) string {
	switch subtype {
	case "mpeg", "mp3", "mpeg3", "x-mpeg-3":
		return "mp3"
	case "wav", "wave", "x-wav", "vnd.wave":
		return "wav"
	default:
		return subtype
	}
}

// Ping checks that the endpoint is reachable with the configured key.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	_, err := c.client.Models.Get(ctx, c.config.Model)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return fmt.Errorf("model endpoint returned status %d: %w", apiErr.StatusCode, err)
		}
		return fmt.Errorf("model endpoint not reachable at %s: %w", c.config.BaseURL, err)
	}
	return nil
}
