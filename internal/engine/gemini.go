package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/timmy/mdconv/internal/prompts"
)

// GeminiVision is the vision engine backed by the Gemini API.
type GeminiVision struct {
	client     *genai.Client
	model      string
	timeout    time.Duration
	maxRetries int
}

// NewGeminiVision creates a Gemini client for cfg.Model.
func NewGeminiVision(ctx context.Context, cfg VisionConfig) (*GeminiVision, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiVision{client: client, model: model, timeout: timeout, maxRetries: max(cfg.MaxRetries, 0)}, nil
}

func (g *GeminiVision) Name() string { return NameVision }

// Recognize retries with exponential backoff; each attempt has its own timeout.
func (g *GeminiVision) Recognize(ctx context.Context, page PageImage) (string, error) {
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromText(prompts.OCRPrompt()),
			genai.NewPartFromBytes(page.Data, http.DetectContentType(page.Data)),
		},
	}}
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(0))}

	const (
		initialBackoff = time.Second
		maxBackoff     = 10 * time.Second
	)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := g.client.Models.GenerateContent(attemptCtx, g.model, contents, config)
		cancel()
		if err == nil {
			return stripFence(resp.Text()), nil
		}
		lastErr = err

		if attempt == g.maxRetries {
			break
		}
		backoff := min(initialBackoff<<attempt, maxBackoff)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("gemini retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}
	return "", fmt.Errorf("gemini vision failed after %d attempts: %w", g.maxRetries+1, lastErr)
}
