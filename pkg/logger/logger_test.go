package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "pestctl/internal/core/context"
)

func TestFromContext_AddsIdentityAndTrace(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), NewFromCore(core))
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1", CompanyID: "c-1", Role: "admin"})

	Info(ctx, "issue created", "number", "MI-2026-00001")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "c-1", fields["company_id"])
	assert.Equal(t, "MI-2026-00001", fields["number"])
}

func TestDebug_FilteredByLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), NewFromCore(core))

	Debug(ctx, "noise")
	assert.Equal(t, 0, logs.Len())
}
