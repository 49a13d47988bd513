package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/closetline/api/internal/platform/config"
	"github.com/closetline/api/internal/platform/observability"
	"github.com/closetline/api/internal/repositories"
	"github.com/closetline/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Users    services.UserService
	Catalog  services.CatalogService
	Cart     services.CartService
	Orders   services.OrderService
	Checkout services.CheckoutService
	Webhooks services.PaymentWebhookService
	System   services.SystemService
}

// Infrastructure carries the adapters built outside the repository layer. Nil members are
// optional unless the owning service requires them.
type Infrastructure struct {
	Tokens   services.TokenIssuer
	Gateway  services.PaymentGateway
	Uploader services.ImageUploader
	Events   services.OrderEventPublisher
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Build    services.BuildInfo
	Clock    func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries.
func NewContainer(cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients and caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pricer := services.NewCartPricingEngine(services.DefaultPricingRules())

	// A nil *Metrics inside a non-nil interface still records nothing.
	var (
		cartMetrics    services.CartMetrics
		orderMetrics   services.OrderMetrics
		webhookMetrics services.WebhookMetrics
	)
	if infra.Metrics != nil {
		cartMetrics = infra.Metrics
		orderMetrics = infra.Metrics
		webhookMetrics = infra.Metrics
	}

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:  reg.Users(),
		Tokens: infra.Tokens,
		Admin: services.AdminCredentials{
			Email:    cfg.Admin.Email,
			Password: cfg.Admin.Password,
		},
		Clock:  clock,
		Logger: observability.ServiceLogger(logger.Named("users")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Uploader: infra.Uploader,
		Clock:    clock,
		Logger:   observability.ServiceLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Users:    reg.Users(),
		Pricer:   pricer,
		Metrics:  cartMetrics,
		Clock:    clock,
		Logger:   observability.ServiceLogger(logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders(),
		Events: infra.Events,
		Clock:  clock,
		Logger: observability.ServiceLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:      reg.Carts(),
		Users:      reg.Users(),
		Cart:       cartSvc,
		Orders:     orderSvc,
		Pricer:     pricer,
		Gateway:    infra.Gateway,
		Metrics:    orderMetrics,
		SuccessURL: cfg.PSP.SuccessURL,
		CancelURL:  cfg.PSP.CancelURL,
		Clock:      clock,
		Logger:     observability.ServiceLogger(logger.Named("checkout")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	webhookSvc, err := services.NewPaymentWebhookService(services.PaymentWebhookServiceDeps{
		Gateway: infra.Gateway,
		Orders:  orderSvc,
		Events:  reg.WebhookEvents(),
		Metrics: webhookMetrics,
		Clock:   clock,
		Logger:  observability.ServiceLogger(logger.Named("webhooks")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment webhook service: %w", err)
	}
	svc.Webhooks = webhookSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			Health:       healthRepo,
			Build:        infra.Build,
			CardPayments: infra.Gateway != nil,
			Clock:        clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
