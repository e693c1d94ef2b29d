// Package httpmiddleware assembles the chi middleware stack used by the assistant server.
package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lewisedginton/organizer/pkg/logger"
	"github.com/unrolled/secure"
)

// Config selects which middleware ApplyToRouter and Buffered install.
type Config struct {
	Logger         logger.Logger
	Metrics        func(http.Handler) http.Handler
	CORS           *CORSConfig
	Security       *secure.Options
	Timeout        time.Duration
	MaxRequestSize int64

	EnableLogging     bool
	EnableRecovery    bool
	EnableCORS        bool
	EnableSecurity    bool
	EnableRealIP      bool
	EnableHeartbeat   bool
	EnableTimeout     bool
	EnableCompression bool
}

// DefaultConfig enables everything except logging, which needs a Logger.
func DefaultConfig() Config {
	corsConfig := DefaultCORSConfig()
	return Config{
		CORS:              &corsConfig,
		Timeout:           60 * time.Second,
		MaxRequestSize:    1 << 20,
		EnableRecovery:    true,
		EnableCORS:        true,
		EnableSecurity:    true,
		EnableRealIP:      true,
		EnableHeartbeat:   true,
		EnableTimeout:     true,
		EnableCompression: true,
	}
}

// ApplyToRouter installs the stream-safe middleware on router, outermost first:
// RealIP, logging (with correlation IDs), metrics, recovery, security headers,
// CORS, heartbeat on /ping. Every wrapper keeps http.Hijacker, so websocket
// routes can be mounted on the same router.
func ApplyToRouter(router chi.Router, config Config) {
	if config.EnableRealIP {
		router.Use(middleware.RealIP)
	}
	if config.EnableLogging && config.Logger != nil {
		router.Use(config.Logger.HTTPMiddleware)
	}
	if config.Metrics != nil {
		router.Use(config.Metrics)
	}
	if config.EnableRecovery {
		router.Use(middleware.Recoverer)
	}
	if config.EnableSecurity {
		router.Use(Security(config.Security))
	}
	if config.EnableCORS && config.CORS != nil {
		router.Use(CORS(*config.CORS))
	}
	if config.EnableHeartbeat {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// Buffered returns the middleware that must not wrap long-lived connections:
// request size limit, timeout and compression. Apply it to a route group.
func Buffered(config Config) []func(http.Handler) http.Handler {
	var mws []func(http.Handler) http.Handler
	if config.MaxRequestSize > 0 {
		mws = append(mws, middleware.RequestSize(config.MaxRequestSize))
	}
	if config.EnableTimeout && config.Timeout > 0 {
		mws = append(mws, middleware.Timeout(config.Timeout))
	}
	if config.EnableCompression {
		mws = append(mws, middleware.Compress(5, "application/json", "text/plain"))
	}
	return mws
}
