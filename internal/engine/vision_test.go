package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIVisionRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```markdown\\n| a |\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	v := NewOpenAIVision(VisionConfig{Model: "gpt-4o", APIKey: "sk-test", BaseURL: srv.URL + "/v1", MaxRetries: 2})
	v.client.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)

	text, err := v.Recognize(context.Background(), PageImage{Number: 2, Data: []byte("\x89PNG\r\n\x1a\n")})
	require.NoError(t, err)
	assert.Equal(t, "| a |", text)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestOpenAIVisionGivesUpAfterRetryBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	v := NewOpenAIVision(VisionConfig{Model: "m", BaseURL: srv.URL, MaxRetries: 1})
	v.client.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)

	_, err := v.Recognize(context.Background(), PageImage{Number: 1, Data: []byte("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestOpenAIVisionTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	v := NewOpenAIVision(VisionConfig{Model: "m", BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := v.Recognize(context.Background(), PageImage{Number: 1, Data: []byte("x")})
	assert.Error(t, err)
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, "text", stripFence("```markdown\ntext\n```"))
	assert.Equal(t, "plain", stripFence("plain"))
	assert.Equal(t, "```", stripFence("```"))
}

func TestPaddleJoinsLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req paddleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Images, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"000","msg":"","results":[[{"text":"第一行","confidence":0.98},{"text":" ","confidence":0.1},{"text":"second","confidence":0.9}]]}`))
	}))
	defer srv.Close()

	text, err := NewPaddle(srv.URL, time.Second).Recognize(context.Background(), PageImage{Number: 1, Data: []byte("img")})
	require.NoError(t, err)
	assert.Equal(t, "第一行\nsecond", text)
}

func TestPaddleReportsServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"101","msg":"model not loaded"}`))
	}))
	defer srv.Close()

	_, err := NewPaddle(srv.URL, time.Second).Recognize(context.Background(), PageImage{Number: 1})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "model not loaded"))
}

func TestWhisperTranscriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "memo.mp3", header.Filename)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello there"}`))
	}))
	defer srv.Close()

	tr := NewWhisperTranscriber(VisionConfig{BaseURL: srv.URL}, "whisper-1")
	text, err := tr.Transcribe(context.Background(), "memo.mp3", []byte("ID3"))
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}
