package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLogger(zap.New(core))
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "inf", entries[1].Message)
	assert.Equal(t, int64(2), entries[1].ContextMap()["b"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestZapLogger_With(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapLogger(zap.New(core)).With("module", "retention")

	log.Info(context.Background(), "evicted", "handle", "123ABC/123ABC0007 0.jpg")

	entries := logs.FilterMessage("evicted").AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "retention", fields["module"])
	assert.Equal(t, "123ABC/123ABC0007 0.jpg", fields["handle"])
}

func TestNew_Backends(t *testing.T) {
	var buf bytes.Buffer

	l, err := New(Options{Backend: "slog", Level: "debug", Service: "keycatalog"}, &buf)
	require.NoError(t, err)
	l.Debug(context.Background(), "hello")
	assert.Contains(t, buf.String(), `"service":"keycatalog"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	z, err := New(Options{Backend: "zap", Level: "info", Environment: "production"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &ZapLogger{}, z)

	_, err = New(Options{Backend: "logrus"}, &buf)
	require.Error(t, err)
}

func TestZapLogger_RequestIDFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapLogger(zap.New(core))

	log.Info(WithRequestID(context.Background(), "req-9"), "slot status set", "slot", 1)
	log.Info(context.Background(), "untagged")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-9", entries[0].ContextMap()[RequestIDKey])
	assert.NotContains(t, entries[1].ContextMap(), RequestIDKey)
}
