package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	// URL is the complete database URL and takes precedence over the parts below
	URL string `env:"DATABASE_URL" yaml:"url"`

	Host     string `env:"DB_HOST" yaml:"host" default:"localhost"`
	Port     int    `env:"DB_PORT" yaml:"port" default:"5432"`
	Database string `env:"DB_NAME" yaml:"database" default:"organizer"`
	Username string `env:"DB_USER" yaml:"username" default:"postgres"`
	Password string `env:"DB_PASSWORD" yaml:"password" default:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" yaml:"sslmode" default:"disable"`

	MaxConnections int           `env:"DB_MAX_CONNECTIONS" yaml:"max_connections" default:"10"`
	MinConnections int           `env:"DB_MIN_CONNECTIONS" yaml:"min_connections" default:"1"`
	MaxIdleTime    time.Duration `env:"DB_MAX_IDLE_TIME" yaml:"max_idle_time" default:"5m"`
	MaxLifetime    time.Duration `env:"DB_MAX_LIFETIME" yaml:"max_lifetime" default:"30m"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" yaml:"connect_timeout" default:"10s"`
}

// GetConnectionString returns the database connection string
func (d DatabaseConfig) GetConnectionString() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Username, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// GetConnectionConfig returns the connection string with pgxpool settings appended.
func (d DatabaseConfig) GetConnectionConfig() (string, error) {
	u, err := url.Parse(d.GetConnectionString())
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	q := u.Query()
	q.Set("pool_max_conns", fmt.Sprint(d.MaxConnections))
	q.Set("pool_min_conns", fmt.Sprint(d.MinConnections))
	q.Set("pool_max_conn_idle_time", d.MaxIdleTime.String())
	q.Set("pool_max_conn_lifetime", d.MaxLifetime.String())
	if d.ConnectTimeout > 0 {
		q.Set("connect_timeout", fmt.Sprint(int(d.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Validate checks DatabaseConfig for valid settings
func (d DatabaseConfig) Validate() error {
	var result error

	if d.URL == "" {
		if d.Host == "" {
			result = multierror.Append(result, fmt.Errorf("database host is required"))
		}
		if d.Port < 1 || d.Port > 65535 {
			result = multierror.Append(result, fmt.Errorf("database port must be between 1-65535, got %d", d.Port))
		}
		if d.Database == "" {
			result = multierror.Append(result, fmt.Errorf("database name is required"))
		}
	}
	if d.MaxConnections < 1 {
		result = multierror.Append(result, fmt.Errorf("max_connections must be positive, got %d", d.MaxConnections))
	}
	if d.MinConnections < 0 || d.MinConnections > d.MaxConnections {
		result = multierror.Append(result, fmt.Errorf("min_connections must be between 0 and max_connections (%d), got %d", d.MaxConnections, d.MinConnections))
	}
	return result
}
