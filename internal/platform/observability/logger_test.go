package observability

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventLoggerWritesEventAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logFn := EventLogger(zap.New(core), "orders")

	logFn(context.Background(), "order.placed", map[string]any{"orderId": "ord_1"})
	logFn(context.Background(), "invoice.render.failed", map[string]any{"error": errors.New("boom")})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0]
	if first.Level != zapcore.DebugLevel || first.LoggerName != "orders" {
		t.Fatalf("unexpected entry %+v", first.Entry)
	}
	fields := first.ContextMap()
	if fields["event"] != "order.placed" || fields["orderId"] != "ord_1" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for failures, got %s", entries[1].Level)
	}
	if entries[1].ContextMap()["error"] != "boom" {
		t.Fatalf("expected error field, got %v", entries[1].ContextMap())
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.DebugLevel)
	reqCore, reqLogs := observer.New(zapcore.DebugLevel)
	logFn := EventLogger(zap.New(baseCore), "cart")

	ctx := WithLogger(context.Background(), zap.New(reqCore).With(zap.String("request_id", "r1")))
	logFn(ctx, "cart.item.added", nil)

	if baseLogs.Len() != 0 {
		t.Fatalf("expected base logger unused, got %d entries", baseLogs.Len())
	}
	if reqLogs.Len() != 1 || reqLogs.All()[0].ContextMap()["request_id"] != "r1" {
		t.Fatalf("expected request logger entry, got %v", reqLogs.All())
	}
}
