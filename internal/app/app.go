package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradecart/marketplace/internal/cache"
	"github.com/tradecart/marketplace/internal/dispatch"
	"github.com/tradecart/marketplace/internal/domain/cart"
	"github.com/tradecart/marketplace/internal/domain/order"
	"github.com/tradecart/marketplace/internal/domain/pricing"
	"github.com/tradecart/marketplace/internal/gateway"
	"github.com/tradecart/marketplace/internal/handler"
	"github.com/tradecart/marketplace/internal/notify"
	"github.com/tradecart/marketplace/internal/storage/postgres"
	"github.com/tradecart/marketplace/pkg/health"
	"github.com/tradecart/marketplace/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Catalog cache: Redis when configured, noop otherwise.
	var catalog cache.Catalog = cache.Noop{}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		catalog = cache.NewRedisCatalog(rdb)
	}

	// Health probes.
	healthSvc := health.New()
	healthSvc.AddReadiness("postgres", 5*time.Second, health.PingCheck(pool))
	if rdb != nil {
		healthSvc.AddReadiness("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	healthSvc.AddLiveness("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	productRepo := cache.NewProducts(postgres.NewProductRepository(pool), catalog)
	vendorRepo := postgres.NewVendorRepository(pool)
	campaignRepo := postgres.NewCampaignRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	addressRepo := postgres.NewAddressRepository(pool)
	txStore := postgres.NewTxStore(pool)

	// Domain services.
	engine := pricing.NewEngine(productRepo, campaignRepo, couponRepo, settingsRepo, settingsRepo)
	cartSvc := cart.NewService(cartRepo, productRepo, couponRepo, engine)

	var dispatcher order.Dispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		kd := dispatch.NewKafkaDispatcher(orderRepo, cfg.Kafka.ShipmentTopic, cfg.Kafka.Brokers...)
		defer kd.Close()
		dispatcher = kd
	} else {
		dispatcher = dispatch.NewSync(orderRepo)
	}

	meter := m.MeterProvider().Meter("marketplace")
	finalizedCounter, err := meter.Int64Counter("orders_finalized_total")
	if err != nil {
		return errors.Wrap(err, "create finalized counter")
	}

	finalizer := order.NewFinalizer(txStore, dispatcher, notify.NewLogNotifier(), cartSvc, finalizedCounter)
	checkout := order.NewCheckout(cartSvc, cartRepo, addressRepo, paymentRepo, gateway.NewSandbox(), orderRepo, finalizer, cfg.Currency)

	// HTTP surface.
	h := handler.New(cartSvc, checkout, orderRepo, productRepo, vendorRepo)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{"Content-Type", "Authorization", "Idempotency-Key"},
				MaxAge:       86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("marketplace-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	healthSvc.SetReady(true)

	// Graceful shutdown: stop reporting ready, drain, then stop.
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
