package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLogger_Trace(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info, WithSlowThreshold(50*time.Millisecond))
	ctx := WithRequestID(context.Background(), "req-7")
	sql := func() (string, int64) { return "INSERT INTO receipt_attempts", 1 }

	gl.Trace(ctx, time.Now(), sql, nil)
	gl.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	gl.Trace(ctx, time.Now(), sql, errors.New("disk full"))
	gl.Trace(ctx, time.Now(), sql, gormlogger.ErrRecordNotFound)

	entries := recorded.All()
	assert.Len(t, entries, 3)
	assert.Equal(t, "SQL Query", entries[0].Message)
	assert.Equal(t, "req-7", entries[0].ContextMap()["request_id"])
	assert.Contains(t, entries[1].Message, "SLOW SQL")
	assert.Equal(t, "SQL Error", entries[2].Message)
}

func TestGormLogger_Silent(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info).LogMode(gormlogger.Silent)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, errors.New("x"))
	gl.Error(context.Background(), "boom")

	assert.Equal(t, 0, recorded.Len())
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}
