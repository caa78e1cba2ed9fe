package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestToFields(t *testing.T) {
	now := time.Now()
	boom := errors.New("boom")

	tests := []struct {
		name     string
		input    []any
		wantKeys []string
	}{
		{"empty input", nil, nil},
		{"pairs", []any{"vehicle", "AGV-1", "port", 19206, "online", true}, []string{"vehicle", "port", "online"}},
		{"time and duration", []any{"at", now, "took", time.Second}, []string{"at", "took"}},
		{"bare error", []any{boom}, []string{"error"}},
		{"zap field passthrough", []any{zap.String("x", "y"), "n", 1}, []string{"x", "n"}},
		{"odd number of args", []any{"k1", "v1", "k2"}, []string{"k1", "arg#2"}},
		{"non-string key", []any{123, "value"}, []string{"invalid_key_1"}},
		{"nil value", []any{"a", nil}, []string{"a"}},
		{"bytes", []any{"body", []byte(`{"x":1}`)}, []string{"body"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.input...)
			require.Len(t, fields, len(tt.wantKeys))
			for i, f := range fields {
				assert.Equal(t, tt.wantKeys[i], f.Key)
			}
		})
	}
}

func TestLoggerWithValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core)).WithName("mux").WithValues("vehicle", "AGV-1")

	l.Info("connected", "port", 19301)
	l.Error(errors.New("reset"), "read failed")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "mux", entries[0].LoggerName)
	assert.Equal(t, "AGV-1", entries[0].ContextMap()["vehicle"])
	assert.EqualValues(t, 19301, entries[0].ContextMap()["port"])
	assert.Equal(t, "reset", entries[1].ContextMap()["error"])
}

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	assert.Empty(t, opts.Validate())

	opts.Level = "chatty"
	opts.Format = "xml"
	assert.Len(t, opts.Validate(), 2)
}
