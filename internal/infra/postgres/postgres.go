package postgres

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sifan077/quotalink/config"
)

const defaultDialTimeout = 5 * time.Second

// NewPool creates the pgx pool used by the readiness probe and verifies connectivity.
func NewPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	connString := ConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	settings, err := parsePoolSettings(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if settings.maxLifetime > 0 {
		poolCfg.MaxConnLifetime = settings.maxLifetime
	}
	if settings.maxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = settings.maxIdleTime
	}
	if settings.healthCheck > 0 {
		poolCfg.HealthCheckPeriod = settings.healthCheck
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return pool, nil
}

type poolSettings struct {
	maxLifetime time.Duration
	maxIdleTime time.Duration
	healthCheck time.Duration
}

// parsePoolSettings rejects malformed durations instead of ignoring them.
func parsePoolSettings(cfg config.PostgresConfig) (poolSettings, error) {
	var (
		s   poolSettings
		err error
	)
	if s.maxLifetime, err = parseDuration("max_conn_lifetime", cfg.MaxConnLifetime); err != nil {
		return s, err
	}
	if s.maxIdleTime, err = parseDuration("max_conn_idle_time", cfg.MaxConnIdleTime); err != nil {
		return s, err
	}
	if s.healthCheck, err = parseDuration("health_check_period", cfg.HealthCheckPeriod); err != nil {
		return s, err
	}
	return s, nil
}

func parseDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("postgres: invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}

type connParts struct {
	host     string
	port     int
	user     string
	password string
	database string
	sslMode  string
}

// ConnString builds a postgres:// URL with defaults applied.
func ConnString(cfg config.PostgresConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return buildConnString(connParts{
		host:     host,
		port:     port,
		user:     cfg.User,
		password: cfg.Password,
		database: cfg.Database,
		sslMode:  sslMode,
	})
}

func buildConnString(parts connParts) string {
	user := url.PathEscape(parts.user)
	password := url.PathEscape(parts.password)
	database := url.PathEscape(parts.database)

	credentials := user
	if password != "" {
		credentials = fmt.Sprintf("%s:%s", user, password)
	}

	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		credentials,
		parts.host,
		parts.port,
		database,
		parts.sslMode,
	)
}
