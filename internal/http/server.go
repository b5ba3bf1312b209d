package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"roiboard/internal/auth"
	"roiboard/internal/cache"
	"roiboard/internal/core"
	applog "roiboard/internal/log"
	"roiboard/internal/services"
)

// Options carries the HTTP-layer knobs that come from configuration.
type Options struct {
	DefaultPageSize    int
	MaxPageSize        int
	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	entries     *services.EntryService
	requests    *services.RequestService
	authz       *auth.Authorizer
	identity    IdentityProvider
	rateLimiter *rateLimiter
	proxies     *proxyTrust

	defaultPageSize int
	maxPageSize     int

	// Read caches for entry documents. The request queue is deliberately
	// never cached: approval state must be read fresh at every decision
	// point or the consume race loses its meaning.
	entryCache *cache.LRUCache[core.Entry]
	listCache  *cache.LRUCache[[]core.Entry]

	metrics securityMetrics

	cacheManager *cache.Manager
	shutdownOnce sync.Once
}

// NewServer configures routes and caches, returning a ready-to-run http.Server.
func NewServer(addr string, entries *services.EntryService, requests *services.RequestService, authz *auth.Authorizer, identity IdentityProvider, opts Options) *Server {
	if opts.DefaultPageSize < 1 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}

	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr: addr,
		},
		entries:         entries,
		requests:        requests,
		authz:           authz,
		identity:        identity,
		rateLimiter:     newRateLimiter(opts.RateLimitPerMinute),
		proxies:         newProxyTrust(opts.TrustedProxies),
		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
		entryCache:      cache.NewLRUCache[core.Entry](200, 5*time.Minute),
		listCache:       cache.NewLRUCache[[]core.Entry](50, time.Minute),
		cacheManager:    cache.NewManager(),
	}

	s.cacheManager.Register(s.entryCache)
	s.cacheManager.Register(s.listCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/roi", s.withSecurity(s.withIdentity(s.handleCreateEntry)))
	mux.HandleFunc("GET /api/roi", s.withSecurity(s.withIdentity(s.handleListEntries)))
	mux.HandleFunc("GET /api/roi/{id}", s.withSecurity(s.withIdentity(s.handleGetEntry)))
	mux.HandleFunc("PUT /api/roi/{id}", s.withSecurity(s.withIdentity(s.handleReplaceEntry)))
	mux.HandleFunc("PATCH /api/roi/{id}/staff-update", s.withSecurity(s.withIdentity(s.handleStaffUpdate)))

	mux.HandleFunc("POST /api/roi/edit-request", s.withSecurity(s.withIdentity(s.handleCreateRequest)))
	mux.HandleFunc("GET /api/roi/edit-requests", s.withSecurity(s.withIdentity(s.handleListRequests)))
	mux.HandleFunc("GET /api/roi/edit-requests/pending-count", s.withSecurity(s.withIdentity(s.handlePendingCount)))
	mux.HandleFunc("PATCH /api/roi/edit-request/{id}", s.withSecurity(s.withIdentity(s.handleDecideRequest)))

	// Every request flows through the logging middleware chain: a request
	// logger goes into the context first, then gets tagged with the request
	// ID so each handler log line carries it.
	httpLogger := applog.New(applog.Config{
		Component: applog.ComponentHTTP,
		Handler:   slog.Default().Handler(),
	})
	s.Server.Handler = applog.Middleware(httpLogger)(
		applog.RequestIDMiddleware(resolveRequestID)(mux))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	// Ensure shutdown logic runs only once
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()

		// Stop rate limiter cleanup goroutine
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}

		// Shutdown HTTP server
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurity adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		clientIP := s.proxies.clientIP(r)
		logger := applog.FromContext(ctx)
		structured := applog.NewStructuredLogger(logger)

		structured.LogHTTPStart(ctx, r, clientIP)

		if detectSuspiciousRequest(r, &s.metrics) {
			logger.WarnContext(ctx, "Suspicious request pattern",
				applog.FieldClientIP, clientIP,
				applog.FieldPath, r.URL.Path)
		}

		// Rate limit mutating requests only
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			if !s.rateLimiter.allow(clientIP, &s.metrics) {
				logger.WarnContext(ctx, "Rate limit exceeded",
					applog.FieldClientIP, clientIP,
					applog.FieldMethod, r.Method,
					applog.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded, try again later", Code: "RATE_LIMITED"})
				return
			}
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		// Capture status code for the completion log line
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// withIdentity resolves the acting identity and stores it in the context.
// Requests with no usable identity stop here with 401.
func (s *Server) withIdentity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.identity.Identify(r)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %v", errNoIdentity, err))
			return
		}
		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// resolveRequestID honors an upstream X-Request-Id and mints one otherwise.
func resolveRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return generateRequestID()
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// invalidateEntry drops an entry and every cached listing that may contain it.
func (s *Server) invalidateEntry(id string) {
	s.entryCache.Delete(id)
	s.listCache.Purge()
}
