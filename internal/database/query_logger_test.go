package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func traceQuery(ql *QueryLogger, sql string, wait time.Duration, err error) {
	ctx := ql.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: sql})
	if wait > 0 {
		time.Sleep(wait)
	}
	ql.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: err})
}

func TestQueryLogger_CountsQueries(t *testing.T) {
	ql := NewQueryLogger(nil, zap.NewNop())

	traceQuery(ql, "SELECT 1", 0, nil)
	traceQuery(ql, "SELECT 2", 0, nil)

	stats := ql.Stats()
	if stats.Total != 2 {
		t.Errorf("total = %d, want 2", stats.Total)
	}
	if stats.Slow != 0 || stats.Failed != 0 {
		t.Errorf("slow/failed = %d/%d, want 0/0", stats.Slow, stats.Failed)
	}
}

func TestQueryLogger_LogsSlowQueriesAtWarn(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ql := NewQueryLogger(&QueryLoggerConfig{SlowQueryThreshold: time.Millisecond}, zap.New(core))

	traceQuery(ql, "SELECT pg_sleep(1)", 5*time.Millisecond, nil)

	if got := ql.Stats().Slow; got != 1 {
		t.Errorf("slow = %d, want 1", got)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	if entries[0].Message != "slow query" {
		t.Errorf("message = %q", entries[0].Message)
	}
}

func TestQueryLogger_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	ql := NewQueryLogger(nil, zap.New(core))

	traceQuery(ql, "UPDATE providers SET phone = $1", 0, errors.New("connection reset"))

	if got := ql.Stats().Failed; got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
	if len(logs.All()) != 1 {
		t.Fatalf("log entries = %d, want 1", len(logs.All()))
	}
}

func TestQueryLogger_DebugLoggingOptIn(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ql := NewQueryLogger(&QueryLoggerConfig{
		SlowQueryThreshold: time.Hour,
		LogAllQueries:      true,
	}, zap.New(core))

	traceQuery(ql, "SELECT 1", 0, nil)

	if len(logs.All()) != 1 {
		t.Errorf("log entries = %d, want the query at debug", len(logs.All()))
	}
}

func TestQueryLogger_MissingTraceData(t *testing.T) {
	ql := NewQueryLogger(nil, zap.NewNop())

	// An end event without a matching start must not count or panic.
	ql.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})

	if got := ql.Stats().Total; got != 0 {
		t.Errorf("total = %d, want 0", got)
	}
}

func TestShortSQL(t *testing.T) {
	if got := shortSQL("SELECT 1"); got != "SELECT 1" {
		t.Errorf("shortSQL = %q", got)
	}

	long := strings.Repeat("x", maxLoggedSQL+50)
	got := shortSQL(long)
	if len(got) != maxLoggedSQL+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncated length = %d, want %d with ellipsis", len(got), maxLoggedSQL+3)
	}
}
