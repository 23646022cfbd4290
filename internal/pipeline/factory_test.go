package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/mdconv/internal/config"
	"github.com/timmy/mdconv/internal/engine"
)

func TestEnginesFromConfigMinimal(t *testing.T) {
	cfg := &config.Config{}
	cfg.VLM.Provider = "none"
	cfg.VLM.APIKey = "sk-test"
	cfg.OCR.TesseractLanguages = []string{"eng"}

	e, err := EnginesFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, e.Structured)
	assert.NotNil(t, e.Archive)
	assert.NotNil(t, e.Renderer)
	assert.NotNil(t, e.LocalA)
	assert.Nil(t, e.LocalB)
	assert.Nil(t, e.Vision)
	assert.Nil(t, e.Enhancer)
}

func TestEnginesFromConfigFull(t *testing.T) {
	cfg := &config.Config{}
	cfg.VLM = config.VLMConfig{Provider: "openai", Model: "gpt-4o", APIKey: "sk-test", BaseURL: "http://localhost:1"}
	cfg.OCR.PaddleURL = "http://localhost:8866/predict/ocr_system"
	cfg.OCR.Enhance = true
	cfg.Transcription.Enabled = true

	e, err := EnginesFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &engine.OpenAIVision{}, e.Vision)
	assert.IsType(t, &engine.Paddle{}, e.LocalB)
	assert.IsType(t, &engine.Enhancer{}, e.Enhancer)
	assert.Equal(t, engine.NameVision, e.Vision.Name())
}
