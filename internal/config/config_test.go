package config

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/objql/internal/demo"
)

func memFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	old := AppFs
	AppFs = fs
	t.Cleanup(func() { AppFs = old })
	return fs
}

func TestLoadFile(t *testing.T) {
	fs := memFs(t)
	require.NoError(t, afero.WriteFile(fs, "/work/objql.yaml", []byte(`
provider: mysql
database_url: "user:pw@tcp(localhost:3306)/shop"
server_version: "8.0.22"
cache:
  plans: 32
  statements: 64
optimizer:
  max_iterations: 5
debug: true
`), 0o644))

	cfg, err := Load("/work/objql.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/work/objql.yaml", cfg.File)
	assert.Equal(t, "mysql", cfg.Provider)
	assert.Equal(t, 32, cfg.Cache.Plans)
	assert.Equal(t, 5, cfg.Optimizer.MaxIterations)
	assert.True(t, cfg.Debug)
	require.NoError(t, cfg.Validate())

	opts := cfg.ClientOptions(demo.Model())
	assert.Equal(t, "8.0.22", opts.ServerVersion)
	assert.Equal(t, 64, opts.StatementCacheSize)
	assert.NotNil(t, opts.Model)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	memFs(t)
	_, err := Load("/work/missing.yaml")
	assert.ErrorContains(t, err, "failed to read config")
}

func TestEnvironmentOverrides(t *testing.T) {
	fs := memFs(t)
	require.NoError(t, afero.WriteFile(fs, "/work/objql.yaml", []byte("provider: postgres\ncache:\n  plans: 8\n"), 0o644))
	t.Setenv("OBJQL_CACHE_PLANS", "128")
	t.Setenv("OBJQL_DATABASE_URL", "postgres://u:p@localhost/shop?sslmode=disable")

	cfg, err := Load("/work/objql.yaml")
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Cache.Plans)
	assert.Equal(t, "postgres://u:p@localhost/shop?sslmode=disable", cfg.DatabaseURL)
	assert.NoError(t, cfg.Validate())
}

func TestDotEnv(t *testing.T) {
	fs := memFs(t)
	require.NoError(t, afero.WriteFile(fs, ".env", []byte("OBJQL_TEST_A=env\nOBJQL_TEST_B=env\nOBJQL_TEST_C=env\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, ".env.local", []byte("OBJQL_TEST_B=local\nOBJQL_TEST_C=local\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/objql.yaml", []byte("provider: sqlite\n"), 0o644))
	t.Setenv("OBJQL_TEST_C", "process")
	for _, k := range []string{"OBJQL_TEST_A", "OBJQL_TEST_B"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	_, err := Load("/work/objql.yaml")
	require.NoError(t, err)
	assert.Equal(t, "env", os.Getenv("OBJQL_TEST_A"))
	assert.Equal(t, "local", os.Getenv("OBJQL_TEST_B"))
	assert.Equal(t, "process", os.Getenv("OBJQL_TEST_C"))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		provider, url, err string
	}{
		{"sqlite", "file:demo.db", ""},
		{"postgresql", "host=localhost dbname=shop", ""},
		{"postgres", "postgres://%zz", "invalid postgres url"},
		{"mysql", "not a dsn", "invalid mysql dsn"},
		{"oracle", "x", "unsupported provider"},
		{"sqlite", "", "database_url is not set"},
	}
	for _, tc := range cases {
		t.Run(tc.provider+"/"+tc.url, func(t *testing.T) {
			err := (&Config{Provider: tc.provider, DatabaseURL: tc.url}).Validate()
			if tc.err == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	memFs(t)
	in := &Config{Provider: "postgresql", DatabaseURL: "postgres://localhost/shop", Debug: true}
	in.Cache.Plans = 10
	in.Optimizer.MaxIterations = 3
	require.NoError(t, Save(in, "/work/conf/objql.yaml"))

	out, err := Load("/work/conf/objql.yaml")
	require.NoError(t, err)
	out.File = ""
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}
