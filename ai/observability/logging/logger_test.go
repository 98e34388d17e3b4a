package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" ERROR ", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}

func TestNewHandler_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, Options{Level: LevelWarn, Format: FormatJSON}))
	l.Info("dropped")
	l.Warn("kept", "image_count", 2)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, float64(2), rec["image_count"])

	buf.Reset()
	slog.New(NewHandler(&buf, Options{Level: LevelDebug, Format: "TEXT"})).Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestSetup_TeesIntoLogDir(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := filepath.Join(t.TempDir(), "logs")
	var stdout bytes.Buffer
	closer, err := Setup(Options{Level: LevelInfo, Format: FormatJSON, Dir: dir, Output: &stdout})
	require.NoError(t, err)

	slog.Info("flow start", "run_id", "ab12cd34")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"ab12cd34"`)
	assert.Contains(t, stdout.String(), `"run_id":"ab12cd34"`)
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewHandler(&buf, Options{Format: FormatJSON}))

	// 未注入 logger 时回退到默认 logger
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	ctx := ToContext(context.Background(), base)
	ctx = With(ctx, "request_id", "req-1")
	ctx = With(ctx, "run_id", "run-1")
	FromContext(ctx).Info("phase done")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "run-1", rec["run_id"])
}

func TestRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := ToContext(context.Background(), slog.New(NewHandler(&buf, Options{Format: FormatJSON})))

	assert.Empty(t, RequestID(ctx))
	ctx = WithRequestID(ctx, "req-9")
	assert.Equal(t, "req-9", RequestID(ctx))

	FromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), `"request_id":"req-9"`)
}
