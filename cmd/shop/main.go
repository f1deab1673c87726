package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/config"
	"github.com/fjod/go_shop/internal/consumer"
	"github.com/fjod/go_shop/internal/credential"
	h "github.com/fjod/go_shop/internal/http"
	"github.com/fjod/go_shop/internal/logging"
	"github.com/fjod/go_shop/internal/metrics"
	"github.com/fjod/go_shop/internal/reconciler"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/fjod/go_shop/internal/repository/memory"
	s "github.com/fjod/go_shop/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type stores struct {
	users     repository.UserRepository
	products  repository.ProductRepository
	payments  repository.PaymentRepository
	checkouts repository.CheckoutRepository
	close     func(ctx context.Context)
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		mem := memory.NewStore()
		if cfg.CatalogFile != "" {
			products, err := config.LoadCatalog(cfg.CatalogFile)
			if err != nil {
				return nil, err
			}
			for _, p := range products {
				mem.PutProduct(p)
			}
			logger.Info("catalog loaded", zap.Int("products", len(products)))
		}
		return &stores{
			users:     mem.Users(),
			products:  mem.Products(),
			payments:  mem.Payments(),
			checkouts: mem.Checkouts(),
			close:     func(context.Context) {},
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	db, err := repository.ConnectMongoDB(connectCtx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, err
	}
	if err := repository.CreateIndexes(connectCtx, db); err != nil {
		return nil, err
	}
	logger.Info("connected to MongoDB", zap.String("database", cfg.MongoDBName))

	return &stores{
		users:     repository.NewUserRepository(db),
		products:  repository.NewProductRepository(db),
		payments:  repository.NewPaymentRepository(db),
		checkouts: repository.NewCheckoutRepository(db),
		close: func(ctx context.Context) {
			if err := db.Client().Disconnect(ctx); err != nil {
				logger.Warn("failed to disconnect from MongoDB", zap.Error(err))
			}
		},
	}, nil
}

func openCartCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.CartCache, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("cart cache disabled")
		return nil, func() {}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Redis connection failed", zap.Error(err))
	}
	logger.Info("Redis ping succeeded", zap.String("addr", cfg.RedisAddr))

	return cache.NewRedisCache(redisClient, cfg.CartCacheTTL), func() { _ = redisClient.Close() }
}

func main() {
	cfg := config.Load()

	logger := logging.MustNewLogger(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}

	cartCache, closeCache := openCartCache(ctx, cfg, logger)
	defer closeCache()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	issuer, err := credential.NewJWTIssuer(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		logger.Fatal("invalid token configuration", zap.Error(err))
	}
	creds := credential.NewStore(st.users, issuer, cfg.BcryptCost)

	var verifier credential.ProfileVerifier
	if cfg.FirebaseProjectID != "" {
		fv, err := credential.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID)
		if err != nil {
			logger.Fatal("failed to init firebase", zap.Error(err))
		}
		verifier = fv
	}

	inventory := s.NewInventoryUpdater(st.products, m)
	carts := s.NewCartService(st.users, st.products, cartCache, m)
	checkouts := s.NewCheckoutService(st.users, st.payments, st.checkouts, inventory, carts, m)
	accounts := s.NewAccountService(st.users, creds, verifier)

	var writer reconciler.MessageWriter
	if len(cfg.KafkaBrokers) > 0 {
		kw := reconciler.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer func() { _ = kw.Close() }()
		writer = kw
	} else {
		logger.Info("checkout event publishing disabled, no Kafka brokers configured")
	}
	rec := reconciler.New(
		reconciler.Config{Interval: cfg.ReconcileInterval, Grace: cfg.ReconcileGrace},
		st.checkouts, st.users, st.payments, inventory, writer, m, logger.Named("reconciler"),
	)
	go rec.Run(ctx)

	if len(cfg.KafkaBrokers) > 0 && cartCache != nil {
		evictor := consumer.NewCartEvictor(cartCache, logger.Named("cart-evictor"), cfg.KafkaTopic, cfg.ServiceName+"-cart-evictor", cfg.KafkaBrokers...)
		defer evictor.Close()
		go evictor.Run(ctx)
	}

	router := h.NewRouter(
		h.RouterConfig{
			Logger:         logger,
			Metrics:        m,
			MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			RequestTimeout: cfg.RequestTimeout,
			AllowedOrigins: cfg.AllowedOrigins,
		},
		h.NewAuthGate(creds),
		h.NewAccountHandler(accounts, cfg.RequestTimeout, cfg.MaxRequestBodySize, cfg.TokenTTL),
		h.NewCartHandler(carts, cfg.RequestTimeout, cfg.MaxRequestBodySize),
		h.NewCheckoutHandler(checkouts, cfg.RequestTimeout, cfg.MaxRequestBodySize),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("shop service starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	st.close(shutdownCtx)

	logger.Info("server exited")
}
