package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInit_DisabledDiscards(t *testing.T) {
	require.NoError(t, Init(Options{Enabled: false}))
	require.False(t, L.Enabled(t.Context(), slog.LevelError))
}

func TestInit_Stderr(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Enabled: true, Level: slog.LevelDebug, Stderr: &buf}))
	t.Cleanup(func() { _ = Init(Options{}) })

	Debug("hello", "k", 1)
	require.Contains(t, buf.String(), "hello")
	require.Contains(t, buf.String(), "k=1")
}

func TestInit_LogDirWritesJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(Options{Enabled: true, LogDir: dir}))
	t.Cleanup(func() { _ = Init(Options{}) })

	Info("written")

	name := filepath.Join(dir, logPrefix+time.Now().Format("2006-01-02")+logSuffix)
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "{"), "expected JSON line, got %q", data)
	require.Contains(t, string(data), `"msg":"written"`)
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, logPrefix+"2001-01-01"+logSuffix)
	keep := filepath.Join(dir, "unrelated.log")
	require.NoError(t, os.WriteFile(old, nil, 0o644))
	require.NoError(t, os.WriteFile(keep, nil, 0o644))

	cleanOldLogs(dir)

	_, err := os.Stat(old)
	require.True(t, os.IsNotExist(err), "old log should be removed")
	_, err = os.Stat(keep)
	require.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
