// Package config loads objql settings from .objql.yaml, the environment
// and .env files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/objql/query/mapping"
	"github.com/satishbabariya/objql/runtime/client"
)

// AppFs is the filesystem configuration and .env files are read from.
var AppFs = afero.NewOsFs()

const (
	fileName  = ".objql"
	envPrefix = "OBJQL"
)

// Config holds the application configuration
type Config struct {
	Provider      string `mapstructure:"provider"`
	DatabaseURL   string `mapstructure:"database_url"`
	ServerVersion string `mapstructure:"server_version"`
	Cache         struct {
		Plans      int `mapstructure:"plans"`
		Statements int `mapstructure:"statements"`
	} `mapstructure:"cache"`
	Optimizer struct {
		MaxIterations int `mapstructure:"max_iterations"`
	} `mapstructure:"optimizer"`
	Debug bool `mapstructure:"debug"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-"`
}

// Load reads configuration from the first .objql.yaml found in the working
// directory, $HOME or $HOME/.config/objql, then applies OBJQL_* environment
// variables. .env and .env.local are loaded into the environment first;
// .env.local wins over .env, and neither overrides variables already set.
// An explicit path replaces the search.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(AppFs)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "objql"))
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{File: v.ConfigFileUsed()}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "sqlite")
	v.SetDefault("database_url", "")
	v.SetDefault("server_version", "")
	v.SetDefault("cache.plans", 0)
	v.SetDefault("cache.statements", 0)
	v.SetDefault("optimizer.max_iterations", 0)
	v.SetDefault("debug", false)
}

// loadDotEnv applies .env and then .env.local. Keys present in the process
// environment before loading are left alone.
func loadDotEnv() error {
	preset := map[string]bool{}
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		preset[k] = true
	}
	for _, name := range []string{".env", ".env.local"} {
		data, err := afero.ReadFile(AppFs, name)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		vars, err := godotenv.Parse(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", name, err)
		}
		for k, val := range vars {
			if preset[k] {
				continue
			}
			if err := os.Setenv(k, val); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks that the provider is known and that the database URL
// parses for it.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is not set")
	}
	switch strings.ToLower(c.Provider) {
	case "postgresql", "postgres":
		if strings.Contains(c.DatabaseURL, "://") {
			if _, err := pq.ParseURL(c.DatabaseURL); err != nil {
				return fmt.Errorf("invalid postgres url: %w", err)
			}
		}
	case "mysql", "mariadb":
		if _, err := mysql.ParseDSN(c.DatabaseURL); err != nil {
			return fmt.Errorf("invalid mysql dsn: %w", err)
		}
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}
	return nil
}

// ClientOptions returns client options for model.
func (c *Config) ClientOptions(model *mapping.Model) client.Options {
	return client.Options{
		Provider:           c.Provider,
		URL:                c.DatabaseURL,
		ServerVersion:      c.ServerVersion,
		Model:              model,
		PlanCacheSize:      c.Cache.Plans,
		StatementCacheSize: c.Cache.Statements,
		MaxIterations:      c.Optimizer.MaxIterations,
	}
}

// Save writes c as YAML to path.
func Save(c *Config, path string) error {
	v := viper.New()
	v.SetFs(AppFs)
	v.Set("provider", c.Provider)
	v.Set("database_url", c.DatabaseURL)
	v.Set("server_version", c.ServerVersion)
	v.Set("cache.plans", c.Cache.Plans)
	v.Set("cache.statements", c.Cache.Statements)
	v.Set("optimizer.max_iterations", c.Optimizer.MaxIterations)
	v.Set("debug", c.Debug)

	if dir := filepath.Dir(path); dir != "." {
		if err := AppFs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return v.WriteConfigAs(path)
}

// DefaultPath is where init writes the configuration.
func DefaultPath() string { return fileName + ".yaml" }
