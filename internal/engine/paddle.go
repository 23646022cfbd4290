package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Paddle is the second local OCR engine: a PaddleOCR hub-serving endpoint,
// typically http://127.0.0.1:8866/predict/ocr_system.
type Paddle struct {
	client   *resty.Client
	endpoint string
}

type paddleRequest struct {
	Images []string `json:"images"`
}

type paddleResponse struct {
	Status  string `json:"status"`
	Msg     string `json:"msg"`
	Results [][]struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"results"`
}

// NewPaddle creates a client for the serving endpoint.
func NewPaddle(endpoint string, timeout time.Duration) *Paddle {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)
	return &Paddle{client: client, endpoint: endpoint}
}

func (e *Paddle) Name() string { return NamePaddle }

func (e *Paddle) Recognize(ctx context.Context, page PageImage) (string, error) {
	req := paddleRequest{Images: []string{base64.StdEncoding.EncodeToString(page.Data)}}

	var resp paddleResponse
	httpResp, err := e.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(e.endpoint)
	if err != nil {
		return "", fmt.Errorf("call paddleocr: %w", err)
	}
	if httpResp.IsError() {
		return "", fmt.Errorf("paddleocr returned HTTP %d: %s", httpResp.StatusCode(), truncate(httpResp.String(), 512))
	}
	if resp.Status != "" && resp.Status != "000" {
		return "", fmt.Errorf("paddleocr status %s: %s", resp.Status, resp.Msg)
	}

	var lines []string
	for _, image := range resp.Results {
		for _, line := range image {
			if t := strings.TrimSpace(line.Text); t != "" {
				lines = append(lines, t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
