package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/allosh/allosh-market-service/config"
	"github.com/allosh/allosh-market-service/internal/apperror"
	"github.com/allosh/allosh-market-service/internal/httpx"
	"github.com/allosh/allosh-market-service/internal/returns"
	"github.com/allosh/allosh-market-service/internal/server"
	"github.com/allosh/allosh-market-service/pkg/broker"
	"github.com/allosh/allosh-market-service/pkg/cache"
	"github.com/allosh/allosh-market-service/pkg/i18n"
	"github.com/allosh/allosh-market-service/pkg/logger"
	"github.com/allosh/allosh-market-service/pkg/postgres"
	"github.com/allosh/allosh-market-service/pkg/search"

	branchH "github.com/allosh/allosh-market-service/internal/branch/handler"
	branchRepoPkg "github.com/allosh/allosh-market-service/internal/branch/repository"
	branchUCPkg "github.com/allosh/allosh-market-service/internal/branch/usecase"

	invH "github.com/allosh/allosh-market-service/internal/inventory/handler"
	invListenerPkg "github.com/allosh/allosh-market-service/internal/inventory/listener"
	invRepoPkg "github.com/allosh/allosh-market-service/internal/inventory/repository"
	invUCPkg "github.com/allosh/allosh-market-service/internal/inventory/usecase"

	loyaltyH "github.com/allosh/allosh-market-service/internal/loyalty/handler"
	loyaltyRepoPkg "github.com/allosh/allosh-market-service/internal/loyalty/repository"
	loyaltyUCPkg "github.com/allosh/allosh-market-service/internal/loyalty/usecase"

	returnH "github.com/allosh/allosh-market-service/internal/returns/handler"
	returnRepoPkg "github.com/allosh/allosh-market-service/internal/returns/repository"
	returnUCPkg "github.com/allosh/allosh-market-service/internal/returns/usecase"

	couponH "github.com/allosh/allosh-market-service/internal/coupon/handler"
	couponRepoPkg "github.com/allosh/allosh-market-service/internal/coupon/repository"
	couponUCPkg "github.com/allosh/allosh-market-service/internal/coupon/usecase"

	prodH "github.com/allosh/allosh-market-service/internal/product/handler"
	prodRepoPkg "github.com/allosh/allosh-market-service/internal/product/repository"
	prodUCPkg "github.com/allosh/allosh-market-service/internal/product/usecase"
)

const reconcileInterval = time.Minute

// cacheBackend is what Redis and the in-process fallback both provide.
type cacheBackend interface {
	cache.Store
	cache.Locker
}

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "dev" || cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}
	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	tr, err := i18n.New()
	if err != nil {
		appLogger.Fatal("Could not load translations", zap.Error(err))
	}

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Redis, falling back to an in-process cache
	var store cacheBackend
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Redis, using in-process cache", zap.Error(err))
		store = cache.NewMemory()
	} else {
		defer redisClient.Close()
		store = redisClient
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// 5. Initialize Elasticsearch
	var searcher prodUCPkg.Searcher
	esClient, err := search.NewClient(&search.Config{
		Addresses: cfg.Elastic.Addresses,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Elasticsearch, product search uses Postgres", zap.Error(err))
	} else {
		searcher = esClient
		if err := prodUCPkg.EnsureIndex(context.Background(), esClient); err != nil {
			appLogger.Warn("Could not create product index", zap.Error(err))
		}
		appLogger.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
	}

	// 6. Initialize UseCases
	retry := apperror.RetryPolicy{
		Attempts: cfg.Store.RetryAttempts,
		BaseWait: cfg.Store.RetryBaseWait,
		Timeout:  cfg.Store.Timeout,
	}

	branchUC := branchUCPkg.NewBranchUseCase(branchRepoPkg.NewPGRepository(db), store, cfg.Cache.BranchTTL, retry, appLogger)
	invUC := invUCPkg.NewInventoryUseCase(invRepoPkg.NewPGRepository(db), store, retry, appLogger)
	loyaltyUC := loyaltyUCPkg.NewLoyaltyUseCase(loyaltyRepoPkg.NewPGRepository(db), retry, appLogger)
	returnUC := returnUCPkg.NewReturnUseCase(returnRepoPkg.NewPGRepository(db), invUC, loyaltyUC, returnUCPkg.Config{
		LoyaltyPointsPerEGP: cfg.Loyalty.PointsPerEGP,
		Retry:               retry,
	}, appLogger)
	couponUC := couponUCPkg.NewCouponUseCase(couponRepoPkg.NewPGRepository(db), retry, appLogger)
	prodUC := prodUCPkg.NewProductUseCase(prodRepoPkg.NewPGRepository(db), store, cfg.Cache.ProductListTTL, searcher, retry, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 7. Background workers
	if cfg.Kafka.Enabled {
		kafkaConsumer := broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer kafkaConsumer.Close()
		appLogger.Info("Connected to Kafka Consumer", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))

		invListener := invListenerPkg.NewInventoryListener(kafkaConsumer, invUC, store, appLogger)
		go invListener.Start(ctx)
	}
	go reconcileReturns(ctx, returnUC, appLogger)

	// 8. HTTP server
	resp := httpx.NewResponder(tr, appLogger)
	router := server.NewRouter(server.Handlers{
		Branch:    branchH.NewBranchHandler(branchUC, resp, appLogger),
		Inventory: invH.NewInventoryHandler(invUC, resp, appLogger),
		Returns:   returnH.NewReturnHandler(returnUC, resp, appLogger),
		Coupon:    couponH.NewCouponHandler(couponUC, resp, appLogger),
		Product:   prodH.NewProductHandler(prodUC, resp, appLogger),
		Loyalty:   loyaltyH.NewLoyaltyHandler(loyaltyUC, resp, appLogger),
	}, resp, db, appLogger)

	httpServer := &http.Server{
		Addr:         normalizePort(cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("failed to serve http", zap.Error(err))
		}
	}()

	// 9. gRPC health endpoint for the orchestrator
	lis, err := net.Listen("tcp", normalizePort(cfg.Server.GRPCPort))
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	go func() {
		appLogger.Info("Starting gRPC health server", zap.String("port", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve grpc", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	appLogger.Info("Server stopped")
}

// reconcileReturns retries restock and loyalty side effects that failed
// after an approval.
func reconcileReturns(ctx context.Context, uc returns.UseCase, log logger.ZapLogger) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := uc.ReconcilePending(ctx)
			if err != nil {
				log.Warn("return reconciliation incomplete", zap.Int("reconciled", n), zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("reconciled pending returns", zap.Int("count", n))
			}
		}
	}
}

func normalizePort(port string) string {
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
