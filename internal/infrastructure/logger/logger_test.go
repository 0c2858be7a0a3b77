package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"default config", DefaultConfig()},
		{"production config", ProductionConfig()},
		{"nil config", nil},
		{"stderr output", &Config{Level: "debug", Format: "json", Output: "stderr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("print job accepted")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "print job accepted"))
}

func TestNew_UnwritableOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "app.log")

	_, err := New(&Config{Output: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open log output")
}

func TestNewForEnvironment(t *testing.T) {
	l, err := NewForEnvironment("production")
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = NewForEnvironment("development")
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}
