package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// CommonConfig identifies the running service and configures its logging.
type CommonConfig struct {
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"organizer"`
	Environment string `env:"ENVIRONMENT" yaml:"environment" default:"development"`

	// LogLevel is one of debug, info, warn, error (case-insensitive).
	LogLevel string `env:"LOG_LEVEL" yaml:"log_level" default:"info"`
	// LogFormat is json or text.
	LogFormat string `env:"LOG_FORMAT" yaml:"log_format" default:"json"`
}

var logLevels = []string{"debug", "info", "warn", "error"}

func (c CommonConfig) Validate() error {
	var result error
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		result = multierror.Append(result, fmt.Errorf("log_level must be one of [%s], got %q", strings.Join(logLevels, ", "), c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		result = multierror.Append(result, fmt.Errorf("log_format must be either 'json' or 'text', got %q", c.LogFormat))
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		result = multierror.Append(result, fmt.Errorf("service_name is required"))
	}
	return result
}

// IsProduction reports whether Environment is production.
func (c CommonConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
