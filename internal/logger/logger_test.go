package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"referral-ledger-backend/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("bogus"))
}

func TestSideEffectFailed_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger.SetDefault(logger.New("info", "json", &buf))
	t.Cleanup(func() { logger.Initialize("info", "text") })

	logger.SideEffectFailed("points.append", errors.New("boom"), "invitation_id", "inv-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "points.append", line["effect"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "inv-1", line["invitation_id"])
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger.SetDefault(logger.New("info", "text", &buf))
	t.Cleanup(func() { logger.Initialize("info", "text") })

	logger.DatabaseCall("SELECT", "invitations")
	assert.Empty(t, buf.String())
}

func TestWithServiceAndContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger.SetDefault(logger.New("info", "json", &buf))
	t.Cleanup(func() { logger.Initialize("info", "text") })

	logger.WithService("email_queue").Warn("retrying", "attempt", 2)
	logger.WarnContext(context.Background(), "Store ping failed", "error", "timeout")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "email_queue", first["service"])
	assert.Equal(t, float64(2), first["attempt"])
	assert.Equal(t, "WARN", second["level"])
	assert.Equal(t, "Store ping failed", second["msg"])
}
