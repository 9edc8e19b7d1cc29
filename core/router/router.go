package router

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alltuner/vibetuner/core/logger"
)

type options struct {
	logger      *slog.Logger
	logRequests bool
	slow        time.Duration
	middlewares []func(http.Handler) http.Handler
}

// Option configures a router during creation.
type Option func(*options)

// WithLogger sets the logger used for recovered panics and request logs.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithRequestLogging enables per-request logging. Requests slower than slow
// are logged at warn level; zero selects the default of five seconds.
func WithRequestLogging(slow time.Duration) Option {
	return func(o *options) {
		o.logRequests = true
		o.slow = slow
	}
}

// WithMiddleware adds middleware after the built-in panic recovery.
func WithMiddleware(middlewares ...func(http.Handler) http.Handler) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, middlewares...)
	}
}

// New creates a chi router. Every router assigns request IDs and recovers
// panics; request logging is opt-in.
func New(opts ...Option) *chi.Mux {
	o := &options{logger: logger.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	if o.logRequests {
		r.Use(Logging(o.logger, o.slow))
	}
	r.Use(Recover(o.logger))
	r.Use(o.middlewares...)
	return r
}

// Group is a sub-router mounted under a path prefix. Routes registered on it
// are relative to the prefix.
type Group struct {
	chi.Router
	prefix string
}

// NewGroup mounts a new sub-router on parent at prefix.
func NewGroup(parent chi.Router, prefix string) *Group {
	prefix = "/" + strings.Trim(prefix, "/")
	sub := chi.NewRouter()
	parent.Mount(prefix, sub)
	return &Group{Router: sub, prefix: prefix}
}

// Prefix returns the path prefix the group is mounted at.
func (g *Group) Prefix() string { return g.prefix }

// Route is a registered method and pattern.
type Route struct {
	Method  string
	Pattern string
}

// Routes lists every route reachable from r, including mounted sub-routers.
func Routes(r chi.Routes) []Route {
	var routes []Route
	_ = chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, Route{Method: method, Pattern: route})
		return nil
	})
	return routes
}
