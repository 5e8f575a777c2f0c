package database

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// QueryLoggerConfig controls which query traces get logged.
type QueryLoggerConfig struct {
	// SlowQueryThreshold is the duration at which a query is logged at WARN.
	SlowQueryThreshold time.Duration

	// LogAllQueries logs every query at DEBUG, not just slow ones.
	LogAllQueries bool
}

// DefaultQueryLoggerConfig returns the production defaults.
func DefaultQueryLoggerConfig() *QueryLoggerConfig {
	return &QueryLoggerConfig{
		SlowQueryThreshold: 250 * time.Millisecond,
	}
}

// QueryStats is a point-in-time snapshot of tracer counters.
type QueryStats struct {
	Total  int64
	Slow   int64
	Failed int64
}

// QueryLogger traces pgx queries and logs slow or failed ones.
// It implements pgx.QueryTracer and is attached to the pool config.
type QueryLogger struct {
	cfg    *QueryLoggerConfig
	logger *zap.Logger

	total  atomic.Int64
	slow   atomic.Int64
	failed atomic.Int64
}

// NewQueryLogger creates a query tracer. A nil config uses the defaults.
func NewQueryLogger(cfg *QueryLoggerConfig, logger *zap.Logger) *QueryLogger {
	if cfg == nil {
		cfg = DefaultQueryLoggerConfig()
	}
	return &QueryLogger{
		cfg:    cfg,
		logger: logger.Named("query"),
	}
}

// Stats returns the current counters.
func (ql *QueryLogger) Stats() QueryStats {
	return QueryStats{
		Total:  ql.total.Load(),
		Slow:   ql.slow.Load(),
		Failed: ql.failed.Load(),
	}
}

type traceKey struct{}

type traceStart struct {
	at  time.Time
	sql string
}

// TraceQueryStart stamps the start time on the context.
func (ql *QueryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceStart{at: time.Now(), sql: data.SQL})
}

// TraceQueryEnd logs the completed query according to its outcome and duration.
func (ql *QueryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}

	duration := time.Since(start.at)
	ql.total.Add(1)

	if data.Err != nil {
		ql.failed.Add(1)
		ql.logger.Error("query failed",
			zap.String("sql", shortSQL(start.sql)),
			zap.Duration("duration", duration),
			zap.Error(data.Err),
		)
		return
	}

	if duration >= ql.cfg.SlowQueryThreshold {
		ql.slow.Add(1)
		ql.logger.Warn("slow query",
			zap.String("sql", shortSQL(start.sql)),
			zap.Duration("duration", duration),
			zap.Duration("threshold", ql.cfg.SlowQueryThreshold),
			zap.String("command_tag", data.CommandTag.String()),
		)
		return
	}

	if ql.cfg.LogAllQueries {
		ql.logger.Debug("query",
			zap.String("sql", shortSQL(start.sql)),
			zap.Duration("duration", duration),
		)
	}
}

const maxLoggedSQL = 300

func shortSQL(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	return sql[:maxLoggedSQL] + "..."
}
