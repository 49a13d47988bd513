package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/closetline/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	metrics     http.Handler

	users    []RouteRegistrar
	products []RouteRegistrar
	cart     []RouteRegistrar
	orders   []RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the storefront route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrars []RouteRegistrar, name string) {
			api.Route(path, func(group chi.Router) {
				if len(registrars) == 0 {
					registerNotImplemented(group, name)
					return
				}
				for _, registrar := range registrars {
					if registrar != nil {
						registrar(group)
					}
				}
			})
		}

		mount("/user", cfg.users, "user")
		mount("/product", cfg.products, "product")
		mount("/cart", cfg.cart, "cart")
		mount("/order", cfg.orders, "order")
	})

	return r
}

// WithBasePath overrides the prefix the API groups are mounted under.
func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.basePath = path
		}
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithMetricsHandler exposes the Prometheus scrape endpoint at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.metrics = h
	}
}

// WithUserRoutes adds registrars for the /user group.
func WithUserRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.users = append(cfg.users, reg...)
	}
}

// WithProductRoutes adds registrars for the /product group.
func WithProductRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.products = append(cfg.products, reg...)
	}
}

// WithCartRoutes adds registrars for the /cart group.
func WithCartRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cart = append(cfg.cart, reg...)
	}
}

// WithOrderRoutes adds registrars for the /order group. Several registrars may share the group,
// so each must scope its middleware with Group.
func WithOrderRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = append(cfg.orders, reg...)
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
