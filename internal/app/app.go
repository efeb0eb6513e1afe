package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/account"
	"github.com/xenking/shop-core/internal/domain/auth"
	"github.com/xenking/shop-core/internal/domain/cart"
	"github.com/xenking/shop-core/internal/domain/checkout"
	"github.com/xenking/shop-core/internal/domain/coupon"
	"github.com/xenking/shop-core/internal/domain/event"
	"github.com/xenking/shop-core/internal/domain/inventory"
	"github.com/xenking/shop-core/internal/domain/order"
	"github.com/xenking/shop-core/internal/domain/payment"
	"github.com/xenking/shop-core/internal/domain/product"
	"github.com/xenking/shop-core/internal/gateway"
	"github.com/xenking/shop-core/internal/handler"
	"github.com/xenking/shop-core/internal/messaging"
	"github.com/xenking/shop-core/pkg/health"
	"github.com/xenking/shop-core/pkg/httpmiddleware"
)

// Telemetry provides the OpenTelemetry providers. *app.Telemetry from
// go-faster/sdk implements it.
type Telemetry interface {
	MeterProvider() metric.MeterProvider
	TracerProvider() trace.TracerProvider
}

var _ Telemetry = (*app.Telemetry)(nil)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	store, err := OpenStorage(ctx, cfg, lg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer store.Close()

	// Health check service.
	healthSvc := health.New()
	if store.Pinger != nil {
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(store.Pinger))
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Events go to Kafka when brokers are configured, otherwise to the log.
	var events event.Publisher = messaging.NewLogPublisher(lg.Named("events"))
	if len(cfg.Kafka.Brokers) > 0 {
		kp := messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg.Named("events"))
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Error("Close event publisher", zap.Error(err))
			}
		}()
		events = kp
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL:        cfg.Payment.BaseURL,
		KeyID:          cfg.Payment.KeyID,
		KeySecret:      cfg.Payment.KeySecret,
		Timeout:        cfg.Payment.Timeout,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	}, lg.Named("gateway"))
	if err != nil {
		return errors.Wrap(err, "create gateway client")
	}

	charges, err := cfg.Charges.Parse()
	if err != nil {
		return errors.Wrap(err, "parse charges")
	}

	// Domain services.
	carts := cart.NewService(store.Carts, store.Products, lg.Named("cart"))
	accounts := account.NewService(store.Profiles, lg.Named("account"))
	orders := order.NewService(store.Orders, store.Tx, events, lg.Named("order"))
	checkoutSvc := checkout.NewService(checkout.Deps{
		Carts:    carts,
		Accounts: accounts,
		Coupons:  coupon.NewRepoValidator(store.Coupons),
		Builder:  order.NewBuilder(store.Products, store.Orders, cfg.Currency, lg.Named("builder")),
		Orders:   store.Orders,
		Gateway:  gw,
		Tx:       store.Tx,
		Events:   events,
	}, charges, cfg.Payment.KeyID, lg.Named("checkout"))
	adjuster := inventory.NewAdjuster(store.Products, store.Orders, store.Tx, lg.Named("inventory"))
	payments, err := payment.NewService(
		[]byte(cfg.Payment.WebhookSecret),
		store.Orders,
		store.Payments,
		adjuster,
		carts,
		store.Tx,
		events,
		lg.Named("payment"),
		payment.WithMeterProvider(m.MeterProvider()),
		payment.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create payment service")
	}

	// HTTP handlers.
	h := handler.New(handler.Deps{
		Carts:    carts,
		Accounts: accounts,
		Variants: product.NewVariantService(store.Products, lg.Named("variants")),
		Orders:   orders,
		Checkout: checkoutSvc,
		Payments: payments,
		Auth:     auth.NewAuthenticator(store.APIKeys, []byte(cfg.APIKeyPepper)),
	}, lg)

	// Router: health endpoints + API routes on one server.
	r := h.Router()
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	routeFinder := httpmiddleware.MakeRouteFinder(r)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("shop-api", routeFinder, m.MeterProvider(), m.TracerProvider()),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
