package httpmiddleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/unrolled/secure"
)

// CORSConfig represents CORS configuration options
type CORSConfig struct {
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowedOrigins   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig allows the headers the assistant API reads credentials from.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Origin", "Content-Type", "Authorization",
			"X-Refresh-Token", "X-User-Email", "X-Correlation-ID",
		},
		AllowedOrigins: []string{"https://*", "http://*"},
		ExposedHeaders: []string{"X-Correlation-ID"},
		MaxAge:         300,
	}
}

// CORS middleware configures Cross-Origin Resource Sharing
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		AllowedOrigins:   config.AllowedOrigins,
		ExposedHeaders:   config.ExposedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	})
}

// Security adds security headers. A nil opts uses a baseline that suits a JSON API.
func Security(opts *secure.Options) func(http.Handler) http.Handler {
	if opts == nil {
		opts = &secure.Options{
			FrameDeny:          true,
			ContentTypeNosniff: true,
			ReferrerPolicy:     "no-referrer",
		}
	}
	return secure.New(*opts).Handler
}
