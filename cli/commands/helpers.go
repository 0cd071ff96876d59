package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/satishbabariya/objql/cli/internal/dsl"
	"github.com/satishbabariya/objql/internal/config"
	"github.com/satishbabariya/objql/internal/debug"
	"github.com/satishbabariya/objql/internal/demo"
	"github.com/satishbabariya/objql/query/compiler"
	"github.com/satishbabariya/objql/query/sqlgen"
	"github.com/satishbabariya/objql/runtime/client"
)

var demoDatabases atomic.Int32

// readPipelineFile returns the pipeline stored in file. Lines starting
// with # are comments.
func readPipelineFile(file string) (string, error) {
	data, err := afero.ReadFile(config.AppFs, file)
	if err != nil {
		return "", fmt.Errorf("failed to read pipeline: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "#") {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, " "), nil
}

// pipeline parses the pipeline given either by file or as the first
// argument. The remaining arguments fill its $n parameters.
func (a *app) pipeline(args []string, file string) (*dsl.Pipeline, []any, error) {
	var text string
	if file != "" {
		var err error
		if text, err = readPipelineFile(file); err != nil {
			return nil, nil, err
		}
	} else {
		if len(args) == 0 {
			return nil, nil, errors.New("a pipeline or --file is required")
		}
		text, args = args[0], args[1:]
	}
	p, err := dsl.Parse(a.model, text)
	if err != nil {
		return nil, nil, err
	}
	values, err := p.Args(args)
	if err != nil {
		return nil, nil, err
	}
	return p, values, nil
}

// compiler returns a compiler for the configured provider. Nothing is
// connected.
func (a *app) compiler() (*compiler.Compiler, error) {
	d, err := sqlgen.NewDialect(a.cfg.Provider, a.cfg.ServerVersion)
	if err != nil {
		return nil, err
	}
	return compiler.New(compiler.Options{
		Model:              a.model,
		Dialect:            d,
		PlanCacheSize:      a.cfg.Cache.Plans,
		StatementCacheSize: a.cfg.Cache.Statements,
		MaxIterations:      a.cfg.Optimizer.MaxIterations,
	})
}

// open connects to the configured database, or to a seeded in-memory
// demo database when useDemo is set or no database is configured.
func (a *app) open(ctx context.Context, useDemo bool) (*client.Client, error) {
	opts := a.cfg.ClientOptions(a.model)
	useDemo = useDemo || a.cfg.DatabaseURL == ""
	if useDemo {
		opts.Provider = "sqlite"
		opts.ServerVersion = ""
		opts.URL = fmt.Sprintf("file:objql_demo_%d?mode=memory&cache=shared", demoDatabases.Add(1))
	} else if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := client.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	if a.cfg.Debug {
		c.Use(client.LoggingMiddleware(debug.Logger()))
	}
	if useDemo {
		for _, stmt := range []string{demo.Schema, demo.Seed} {
			if _, err := c.DB().ExecContext(ctx, stmt); err != nil {
				c.Close()
				return nil, fmt.Errorf("failed to seed demo database: %w", err)
			}
		}
	}
	return c, nil
}
