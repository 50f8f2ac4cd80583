package log_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/algohub/algohub/internal/log"
	"github.com/stretchr/testify/require"
)

func TestContextAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(log.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	parent := log.ContextAttrs(t.Context(), slog.String("run_id", "42"))
	a := log.ContextAttrs(parent, slog.String("target", "10.0.0.0/24"))
	b := log.ContextAttrs(parent, slog.String("target", "10.0.1.0/24"))

	logger.InfoContext(a, "a")
	logger.InfoContext(b, "b")

	dec := json.NewDecoder(&buf)
	var recA, recB map[string]any
	require.NoError(t, dec.Decode(&recA))
	require.NoError(t, dec.Decode(&recB))

	require.Equal(t, "42", recA["run_id"])
	require.Equal(t, "10.0.0.0/24", recA["target"])
	require.Equal(t, "42", recB["run_id"])
	require.Equal(t, "10.0.1.0/24", recB["target"])
}

func TestNewFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "algohub.log")
	logger, closer := log.New(true, path)
	logger.DebugContext(t.Context(), "hello", "key", "value")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"msg":"hello"`)
	require.Contains(t, string(b), `"key":"value"`)
}
