// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Statement timeout
	StatementTimeout time.Duration
}

// LoadPostgresConfig loads PostgreSQL configuration from environment
// variables. A DATABASE_URL, when present, overrides the individual
// POSTGRES_* variables.
func LoadPostgresConfig() (*PostgresConfig, error) {
	cfg := &PostgresConfig{
		MaxOpenConns:     getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 10),
		MaxIdleConns:     getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_LIFETIME_SECONDS", 1800)) * time.Second,
		ConnMaxIdleTime:  time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_TIME_SECONDS", 600)) * time.Second,
		StatementTimeout: time.Duration(getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 600)) * time.Second,
	}

	if dsn := getEnv("DATABASE_URL", ""); dsn != "" {
		if err := cfg.applyURL(dsn); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	user := getEnv("POSTGRES_USER", "")
	if user == "" {
		return nil, errors.New("POSTGRES_USER environment variable is required")
	}

	password := getEnv("POSTGRES_PASSWORD", "")
	if password == "" {
		return nil, errors.New("POSTGRES_PASSWORD environment variable is required")
	}

	database := getEnv("POSTGRES_DB", "")
	if database == "" {
		return nil, errors.New("POSTGRES_DB environment variable is required")
	}

	cfg.Host = getEnv("POSTGRES_HOST", "localhost")
	cfg.Port = getEnvAsInt("POSTGRES_PORT", 5432)
	cfg.User = user
	cfg.Password = password
	cfg.Database = database
	cfg.SSLMode = getEnv("POSTGRES_SSLMODE", "disable")

	return cfg, nil
}

// applyURL fills connection fields from a postgres:// URL.
func (c *PostgresConfig) applyURL(dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme %q is not postgres", u.Scheme)
	}

	c.Host = u.Hostname()
	c.Port = 5432
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("parsing DATABASE_URL port: %w", err)
		}
		c.Port = port
	}
	if u.User != nil {
		c.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if len(u.Path) > 1 {
		c.Database = u.Path[1:]
	}
	c.SSLMode = u.Query().Get("sslmode")
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}

	if c.User == "" || c.Database == "" {
		return errors.New("DATABASE_URL must carry a user and database name")
	}
	return nil
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
