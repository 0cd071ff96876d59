// Package client is the entry point of objql: it opens a database, compiles
// queries built with the builder package and runs them.
package client

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	"github.com/prometheus/client_golang/prometheus"

	"github.com/satishbabariya/objql/query/builder"
	"github.com/satishbabariya/objql/query/compiler"
	"github.com/satishbabariya/objql/query/executor"
	"github.com/satishbabariya/objql/query/mapping"
	"github.com/satishbabariya/objql/query/sqlgen"
)

// Options configures a client.
type Options struct {
	// Provider names the database: postgresql, mysql, sqlite or sqlserver.
	Provider string
	// URL is the data source name handed to the driver.
	URL string
	// ServerVersion enables version dependent SQL, such as LATERAL joins
	// on MySQL.
	ServerVersion string
	// Model describes the mapped types.
	Model *mapping.Model

	PlanCacheSize      int
	StatementCacheSize int
	MaxIterations      int
	// DisableIdentityMap turns off the per client object cache.
	DisableIdentityMap bool
	Middleware         []Middleware
}

// Client runs queries against one database.
type Client struct {
	*session
	db       *sql.DB
	provider string
}

// session is what clients and transactions share: compilation, identity
// map and middleware, plus the way to obtain a handle.
type session struct {
	compiler    *compiler.Compiler
	identity    *IdentityMap
	middlewares []Middleware
	version     *atomic.Int64
	acquire     func(ctx context.Context) (executor.Handle, error)
}

// Open opens the database named by opts and verifies the connection.
func Open(ctx context.Context, opts Options) (*Client, error) {
	driverName := getDriverName(opts.Provider)
	if driverName == "" {
		return nil, fmt.Errorf("unsupported provider: %s", opts.Provider)
	}
	db, err := sql.Open(driverName, opts.URL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c, err := New(db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// New creates a client on an open database.
func New(db *sql.DB, opts Options) (*Client, error) {
	dialect, err := sqlgen.NewDialect(opts.Provider, opts.ServerVersion)
	if err != nil {
		return nil, err
	}
	comp, err := compiler.New(compiler.Options{
		Model:              opts.Model,
		Dialect:            dialect,
		PlanCacheSize:      opts.PlanCacheSize,
		StatementCacheSize: opts.StatementCacheSize,
		MaxIterations:      opts.MaxIterations,
	})
	if err != nil {
		return nil, err
	}
	c := &Client{db: db, provider: opts.Provider}
	c.session = &session{
		compiler:    comp,
		middlewares: opts.Middleware,
		version:     new(atomic.Int64),
		acquire:     c.conn,
	}
	if !opts.DisableIdentityMap {
		c.identity = NewIdentityMap(opts.Model)
	}
	return c, nil
}

// getDriverName maps provider names to database/sql driver names
func getDriverName(provider string) string {
	switch provider {
	case "postgresql", "postgres":
		return "postgres"
	case "mysql", "mariadb":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return ""
	}
}

// conn holds one pooled connection for the lifetime of a query.
func (c *Client) conn(ctx context.Context) (executor.Handle, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return executor.NewSQLHandle(conn, conn.Close), nil
}

// Close closes the database.
func (c *Client) Close() error {
	return c.db.Close()
}

// DB returns the underlying database connection
func (c *Client) DB() *sql.DB {
	return c.db
}

// Provider returns the database provider name.
func (c *Client) Provider() string { return c.provider }

// Use adds middleware to the chain. It must not be called while queries
// run.
func (c *Client) Use(m ...Middleware) {
	c.middlewares = append(c.middlewares, m...)
}

// Stats returns the plan cache statistics.
func (c *Client) Stats() compiler.Stats { return c.compiler.Stats() }

// Collector returns a prometheus collector for the plan caches.
func (c *Client) Collector() prometheus.Collector {
	return c.compiler.Collector(prometheus.Opts{Namespace: "objql", Subsystem: "plan_cache"})
}

// Identity returns the identity map, or nil when it is disabled.
func (s *session) Identity() *IdentityMap { return s.identity }

func (s *session) options() executor.Options {
	o := executor.Options{Version: s.version.Add(1)}
	if s.identity != nil {
		o.Cache = s.identity
	}
	return o
}

func (s *session) handle(ctx context.Context) (executor.Handle, error) {
	h, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	if len(s.middlewares) == 0 {
		return h, nil
	}
	return &middlewareHandle{Handle: h, chain: s.middlewares}, nil
}

// Query compiles q and returns an enumerator over its results. The
// enumerator must be drained or closed.
func (s *session) Query(ctx context.Context, q *builder.Query, args ...any) (*executor.Enumerator, error) {
	e, err := s.compiler.Prepare(q.Node(), args...)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, e)
}

// Exec runs an insert, update or delete and returns the affected row
// count.
func (s *session) Exec(ctx context.Context, q *builder.Query, args ...any) (int64, error) {
	e, err := s.compiler.Prepare(q.Node(), args...)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, e)
}

// Explain describes how q would run.
func (s *session) Explain(q *builder.Query, args ...any) (*compiler.Explanation, error) {
	return s.compiler.Explain(q.Node(), args...)
}

// Compile binds q once for repeated execution with positional arguments.
func (s *session) Compile(q *builder.Query) (*Compiled, error) {
	cq, err := s.compiler.Compile(q.Node())
	if err != nil {
		return nil, err
	}
	return &Compiled{s: s, q: cq}, nil
}

func (s *session) run(ctx context.Context, e *compiler.Execution) (*executor.Enumerator, error) {
	if !e.Plan.IsQuery() {
		return nil, compiler.ErrNotAQuery.New(e.Plan.Tree.Kind())
	}
	h, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	return executor.Query(h, e, s.options())
}

func (s *session) exec(ctx context.Context, e *compiler.Execution) (int64, error) {
	if e.Plan.IsQuery() {
		return 0, executor.ErrNotAStatement.New(e.Plan.Key)
	}
	h, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}
	return executor.Exec(ctx, h, e)
}

// Compiled is a query compiled once by a client or transaction.
type Compiled struct {
	s *session
	q *compiler.Compiled
}

// Query runs the compiled query with args.
func (c *Compiled) Query(ctx context.Context, args ...any) (*executor.Enumerator, error) {
	e, err := c.q.Prepare(args...)
	if err != nil {
		return nil, err
	}
	return c.s.run(ctx, e)
}

// Exec runs the compiled statement with args.
func (c *Compiled) Exec(ctx context.Context, args ...any) (int64, error) {
	e, err := c.q.Prepare(args...)
	if err != nil {
		return 0, err
	}
	return c.s.exec(ctx, e)
}

// Explain describes the compiled query run with args.
func (c *Compiled) Explain(args ...any) (*compiler.Explanation, error) {
	e, err := c.q.Prepare(args...)
	if err != nil {
		return nil, err
	}
	return e.Explain(), nil
}
