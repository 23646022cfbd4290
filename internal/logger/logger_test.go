package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "test"})

	ctx := base.WithContext(context.Background())
	ctx = WithFields(ctx, Fields{FieldNamespace: "device-1", FieldRequestID: "req-1"})
	ctx = SetJobID(ctx, "job-1")

	With(Fields{FieldEngine: "tesseract"}).WithDuration(42).Info(ctx, "page %d done", 3)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "page 3 done", line["message"])
	assert.Equal(t, "device-1", line[FieldNamespace])
	assert.Equal(t, "job-1", line[FieldJobID])
	assert.Equal(t, "tesseract", line[FieldEngine])
	assert.EqualValues(t, 42, line[FieldDurationMs])
	assert.Equal(t, "test", line["service"])
	assert.Equal(t, "req-1", GetRequestID(ctx))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
	assert.Same(t, GetDefault(), FromContext(nil)) //nolint:staticcheck
}
