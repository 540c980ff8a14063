package postgres

import (
	"testing"
	"time"

	"github.com/sifan077/quotalink/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.PostgresConfig
		want string
	}{
		{
			name: "defaults",
			cfg:  config.PostgresConfig{User: "app", Database: "quotalink"},
			want: "postgres://app@localhost:5432/quotalink?sslmode=disable",
		},
		{
			name: "password is escaped",
			cfg: config.PostgresConfig{
				Host: "db", Port: 5433, User: "app", Password: "p@ss/word",
				Database: "links", SSLMode: "require",
			},
			want: "postgres://app:p@ss%2Fword@db:5433/links?sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConnString(tt.cfg))
		})
	}
}

func TestParsePoolSettings(t *testing.T) {
	s, err := parsePoolSettings(config.PostgresConfig{
		MaxConnLifetime:   "1h",
		MaxConnIdleTime:   "30m",
		HealthCheckPeriod: "",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, s.maxLifetime)
	assert.Equal(t, 30*time.Minute, s.maxIdleTime)
	assert.Zero(t, s.healthCheck)

	_, err = parsePoolSettings(config.PostgresConfig{HealthCheckPeriod: "soon"})
	assert.ErrorContains(t, err, "health_check_period")
}
