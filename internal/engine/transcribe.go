package engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// WhisperTranscriber calls an OpenAI-compatible /audio/transcriptions endpoint.
type WhisperTranscriber struct {
	client   *resty.Client
	model    string
	endpoint string
}

// NewWhisperTranscriber reuses the vision credentials and base URL.
func NewWhisperTranscriber(cfg VisionConfig, model string) *WhisperTranscriber {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	// Audio takes far longer than a single page.
	client.SetTimeout(timeout * 5)

	return &WhisperTranscriber{client: client, model: model, endpoint: baseURL + "/audio/transcriptions"}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, filename string, data []byte) (string, error) {
	var resp struct {
		Text  string `json:"text"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	httpResp, err := w.client.R().
		SetContext(ctx).
		SetFileReader("file", filename, bytes.NewReader(data)).
		SetFormData(map[string]string{"model": w.model, "response_format": "json"}).
		SetResult(&resp).
		SetError(&resp).
		Post(w.endpoint)
	if err != nil {
		return "", fmt.Errorf("call transcription API: %w", err)
	}
	if httpResp.IsError() {
		if resp.Error != nil {
			return "", fmt.Errorf("transcription API returned HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return "", fmt.Errorf("transcription API returned HTTP %d", httpResp.StatusCode())
	}
	return resp.Text, nil
}
