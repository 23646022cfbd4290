package domain

import "time"

// ConversionStatus is the outcome recorded on a ConversionResult.
type ConversionStatus string

const (
	ConversionSuccess ConversionStatus = "success"
	ConversionFailure ConversionStatus = "failure"
)

// ConversionResult is the durable artifact of a successful pipeline run.
// MarkdownPath is owned exclusively by the result; cache entries and jobs only reference it.
type ConversionResult struct {
	Status       ConversionStatus `json:"status"`
	MarkdownPath string           `json:"markdown_path"`
	ContentHash  string           `json:"content_hash"`
	Namespace    string           `json:"namespace"`
	CreatedAt    time.Time        `json:"created_at"`
}
