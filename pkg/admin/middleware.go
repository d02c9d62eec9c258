package admin

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ykagano/wiremock-jp/pkg/metrics"
)

// LoggingMiddleware logs one line per request with method, path, status
// and duration.
type LoggingMiddleware struct {
	handler http.Handler
	log     *slog.Logger
}

// NewLoggingMiddleware wraps handler.
func NewLoggingMiddleware(handler http.Handler, log *slog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{handler: handler, log: log}
}

func (m *LoggingMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	m.handler.ServeHTTP(lrw, r)

	level := slog.LevelInfo
	if lrw.statusCode >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	m.log.Log(r.Context(), level, "request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", lrw.statusCode,
		"duration", time.Since(start),
	)
}

// MetricsMiddleware counts requests by method, matched route and status.
type MetricsMiddleware struct {
	handler http.Handler
	metrics *metrics.Set
}

// NewMetricsMiddleware wraps handler. It must sit outside the ServeMux so
// the matched pattern is visible once the request is served.
func NewMetricsMiddleware(handler http.Handler, m *metrics.Set) *MetricsMiddleware {
	return &MetricsMiddleware{handler: handler, metrics: m}
}

func (m *MetricsMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	m.handler.ServeHTTP(lrw, r)
	m.metrics.ObserveRequest(r.Method, r.Pattern, lrw.statusCode, time.Since(start))
}

// loggingResponseWriter captures the status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	if !lrw.wrote {
		lrw.statusCode = code
		lrw.wrote = true
	}
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	lrw.wrote = true
	return lrw.ResponseWriter.Write(b)
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

// CORSConfig holds the configuration for CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to call the API. Empty or "*"
	// allows every origin.
	AllowedOrigins []string
	// AllowCredentials echoes the caller's origin instead of "*" and sets
	// Access-Control-Allow-Credentials.
	AllowCredentials bool
	// MaxAge is how long, in seconds, a preflight answer may be cached.
	MaxAge int
}

// DefaultCORSConfig reflects any origin with credentials, which is what the
// web UI served from another port expects.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{AllowCredentials: true, MaxAge: 86400}
}

func (c *CORSConfig) allowOrigin(origin string) string {
	allowed := len(c.AllowedOrigins) == 0 || slices.Contains(c.AllowedOrigins, "*") ||
		slices.Contains(c.AllowedOrigins, origin)
	switch {
	case !allowed:
		return ""
	case c.AllowCredentials:
		return origin
	default:
		return "*"
	}
}

// CORSMiddleware adds CORS headers to responses and answers preflights.
type CORSMiddleware struct {
	handler http.Handler
	config  CORSConfig
}

// NewCORSMiddleware wraps handler.
func NewCORSMiddleware(handler http.Handler, config CORSConfig) *CORSMiddleware {
	return &CORSMiddleware{handler: handler, config: config}
}

func (m *CORSMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	w.Header().Add("Vary", "Origin")

	allow := ""
	if origin != "" {
		allow = m.config.allowOrigin(origin)
	}
	if allow == "" {
		m.handler.ServeHTTP(w, r)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", allow)
	w.Header().Set("Access-Control-Allow-Methods", strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", "))
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	if m.config.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(m.config.MaxAge))
	}
	if m.config.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	m.handler.ServeHTTP(w, r)
}
