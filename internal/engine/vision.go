package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/mdconv/internal/prompts"
)

// VisionConfig holds configuration for the remote vision engine.
type VisionConfig struct {
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration // per request
	MaxRetries int           // retries after the first attempt
	MaxTokens  int
}

// OpenAIVision transcribes page images through an OpenAI-compatible chat
// completions endpoint. It is the costliest engine and is consulted last.
type OpenAIVision struct {
	client    *resty.Client
	model     string
	endpoint  string
	maxTokens int
}

// NewOpenAIVision creates the vision engine.
// Parameters:
//   - cfg: model, credentials, timeout and retry budget.
//
// Returns:
//   - *OpenAIVision: initialized client wrapper.
func NewOpenAIVision(cfg VisionConfig) *OpenAIVision {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)
	client.SetRetryCount(max(cfg.MaxRetries, 0))
	client.SetRetryWaitTime(time.Second)
	client.SetRetryMaxWaitTime(10 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	return &OpenAIVision{
		client:    client,
		model:     cfg.Model,
		endpoint:  baseURL + "/chat/completions",
		maxTokens: maxTokens,
	}
}

func (v *OpenAIVision) Name() string { return NameVision }

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Recognize sends one page image with the OCR prompt and returns the
// model's Markdown.
func (v *OpenAIVision) Recognize(ctx context.Context, page PageImage) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s",
		http.DetectContentType(page.Data), base64.StdEncoding.EncodeToString(page.Data))

	req := openAIRequest{
		Model: v.model,
		Messages: []openAIMessage{
			{Role: "system", Content: prompts.OCRSystemPrompt},
			{
				Role: "user",
				Content: []interface{}{
					openAITextContent{Type: "text", Text: prompts.OCRUserPrompt},
					openAIImageContent{
						Type:     "image_url",
						ImageURL: openAIImageURL{URL: dataURL, Detail: "high"},
					},
				},
			},
		},
		MaxTokens: v.maxTokens,
	}

	var resp openAIResponse
	httpResp, err := v.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(v.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call vision API: %w", err)
	}

	if httpResp.IsError() {
		if resp.Error != nil {
			return "", fmt.Errorf("vision API returned HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return "", fmt.Errorf("vision API returned HTTP %d: %s", httpResp.StatusCode(), truncate(httpResp.String(), 512))
	}
	if resp.Error != nil {
		return "", fmt.Errorf("vision API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in vision response (status: %d)", httpResp.StatusCode())
	}

	return stripFence(resp.Choices[0].Message.Content), nil
}

// stripFence removes a ```markdown wrapper some models add despite the prompt.
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return s
	}
	t = strings.TrimSuffix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		return strings.TrimSpace(t[nl+1:])
	}
	return s
}
