package pipeline

import (
	"context"
	"fmt"

	"github.com/timmy/mdconv/internal/cache"
	"github.com/timmy/mdconv/internal/config"
	"github.com/timmy/mdconv/internal/engine"
	"github.com/timmy/mdconv/internal/logger"
	"github.com/timmy/mdconv/internal/validator"
)

// EnginesFromConfig builds the engine set described by cfg. Optional
// engines (Local-B, vision, transcription, enhancement) are left nil when
// they are not configured.
func EnginesFromConfig(ctx context.Context, cfg *config.Config) (Engines, error) {
	runner := engine.ExecRunner{}
	log := logger.FromContext(ctx).WithField(logger.FieldComponent, "engines")

	vision, err := visionFromConfig(ctx, &cfg.VLM)
	if err != nil {
		return Engines{}, err
	}

	var transcriber engine.Transcriber
	if cfg.Transcription.Enabled && cfg.VLM.APIKey != "" {
		transcriber = engine.NewWhisperTranscriber(visionConfig(&cfg.VLM), cfg.Transcription.Model)
	}

	engines := Engines{
		Structured: engine.NewStructured(engine.StructuredConfig{Pdftotext: cfg.OCR.PdftotextPath}, runner, vision, transcriber),
		Archive:    engine.NewArchive(),
		Renderer: engine.NewPDFRenderer(engine.RendererConfig{
			Pdftoppm: cfg.OCR.PdftoppmPath,
			DPI:      cfg.OCR.DPI,
			MaxPages: cfg.OCR.MaxPages,
			WorkDir:  cfg.Paths.Work,
		}, runner),
		LocalA: engine.NewTesseract(cfg.OCR.TesseractLanguages),
	}
	if vision != nil {
		engines.Vision = vision
	}
	if cfg.OCR.PaddleURL != "" {
		engines.LocalB = engine.NewPaddle(cfg.OCR.PaddleURL, cfg.OCR.PaddleTimeout)
	}
	if cfg.OCR.Enhance {
		engines.Enhancer = engine.NewEnhancer()
	}

	log.WithFields(logger.Fields{
		"vision":        vision != nil,
		"paddle":        engines.LocalB != nil,
		"transcription": transcriber != nil,
		"enhance":       engines.Enhancer != nil,
	}).Info("Engines configured")
	return engines, nil
}

// FromConfig builds a ready pipeline with the default validator.
func FromConfig(ctx context.Context, cfg *config.Config, layout cache.Layout, opts ...Option) (*Pipeline, error) {
	engines, err := EnginesFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithPageWorkers(cfg.OCR.PageWorkers)}, opts...)
	return New(engines, validator.NewDefault(), layout, opts...), nil
}

// visionFromConfig returns nil without an API key or with provider "none".
func visionFromConfig(ctx context.Context, cfg *config.VLMConfig) (engine.PageEngine, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "gemini":
		g, err := engine.NewGeminiVision(ctx, visionConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("create gemini vision engine: %w", err)
		}
		return g, nil
	default:
		return engine.NewOpenAIVision(visionConfig(cfg)), nil
	}
}

func visionConfig(cfg *config.VLMConfig) engine.VisionConfig {
	return engine.VisionConfig{
		Model:      cfg.Model,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		MaxTokens:  cfg.MaxTokens,
	}
}
