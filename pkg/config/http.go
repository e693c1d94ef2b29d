package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// HTTPServerConfig configures the API listener. It has no write timeout;
// chat turns and the voice websocket outlive any fixed bound.
type HTTPServerConfig struct {
	Port              int           `env:"HTTP_PORT" yaml:"port" default:"8080"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" yaml:"read_header_timeout" default:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" yaml:"read_timeout" default:"15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" yaml:"idle_timeout" default:"60s"`
	// ShutdownTimeout bounds graceful shutdown, including in-flight turns.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" default:"30s"`
	MaxHeaderBytes  int           `env:"HTTP_MAX_HEADER_BYTES" yaml:"max_header_bytes" default:"65536"`
}

func (h HTTPServerConfig) Validate() error {
	var result error
	if h.Port < 1 || h.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("http port must be between 1-65535, got %d", h.Port))
	}
	if h.ReadHeaderTimeout <= 0 || h.ReadTimeout <= 0 || h.IdleTimeout <= 0 || h.ShutdownTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("http read_header_timeout, read_timeout, idle_timeout and shutdown_timeout must be greater than 0"))
	}
	if h.MaxHeaderBytes <= 0 {
		result = multierror.Append(result, fmt.Errorf("http max_header_bytes must be greater than 0"))
	}
	return result
}
