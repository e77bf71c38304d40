package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", "production")

	l.Info("dropped")
	l.Warn("kept", "status", 401)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.EqualValues(t, 401, rec["status"])
}

func TestNewWithWriter_TextForLocal(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "debug", "local").Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestContextRoundTrip(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := IntoContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}
