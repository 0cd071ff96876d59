package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/satishbabariya/objql/query/executor"
)

// QueryEvent represents a query execution event
type QueryEvent struct {
	// Query is the SQL text sent to the database.
	Query string
	Args  []any
	// Statement is true for inserts, updates and deletes.
	Statement bool
	Duration  time.Duration
	Error     error
	Start     time.Time
	End       time.Time
}

// Middleware is a function that intercepts queries. For queries it wraps
// opening the cursor, for statements the whole execution.
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// runMiddleware runs exec through the middleware chain
func runMiddleware(ctx context.Context, chain []Middleware, event *QueryEvent, exec func() error) error {
	event.Start = time.Now()
	index := 0

	var next func() error
	next = func() error {
		if index >= len(chain) {
			// Last middleware, execute the actual query
			err := exec()
			event.End = time.Now()
			event.Duration = event.End.Sub(event.Start)
			event.Error = err
			return err
		}
		m := chain[index]
		index++
		return m(ctx, event, next)
	}
	return next()
}

// middlewareHandle runs the calls of a handle through middleware.
type middlewareHandle struct {
	executor.Handle
	chain []Middleware
}

func (h *middlewareHandle) Query(ctx context.Context, sql string, params []any) (executor.Cursor, error) {
	var cur executor.Cursor
	err := runMiddleware(ctx, h.chain, &QueryEvent{Query: sql, Args: params}, func() error {
		var err error
		cur, err = h.Handle.Query(ctx, sql, params)
		return err
	})
	return cur, err
}

func (h *middlewareHandle) Exec(ctx context.Context, sql string, params []any) (int64, error) {
	var n int64
	err := runMiddleware(ctx, h.chain, &QueryEvent{Query: sql, Args: params, Statement: true}, func() error {
		var err error
		n, err = h.Handle.Exec(ctx, sql, params)
		return err
	})
	return n, err
}

// LoggingMiddleware creates a middleware that logs queries
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		logger.DebugContext(ctx, "Executing query", "sql", event.Query, "args", event.Args)
		err := next()
		if err != nil {
			logger.ErrorContext(ctx, "Query failed", "sql", event.Query, "error", err)
		} else {
			logger.DebugContext(ctx, "Query completed", "duration", event.Duration)
		}
		return err
	}
}

// TimingMiddleware creates a middleware that measures query execution time
func TimingMiddleware(onTiming func(query string, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.Query, event.Duration)
		}
		return err
	}
}

// ErrorMiddleware creates a middleware that handles errors
func ErrorMiddleware(onError func(query string, err error)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(event.Query, err)
		}
		return err
	}
}
