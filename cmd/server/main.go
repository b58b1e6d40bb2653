package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"inventory-service/config"
	"inventory-service/internal/api"
	"inventory-service/internal/broker"
	"inventory-service/internal/notify"
	"inventory-service/internal/redisclient"
	"inventory-service/internal/service"
	"inventory-service/internal/store"
	"inventory-service/internal/util"
	"inventory-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting inventory service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Database.Driver))

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(util.TracerConfig{
			Endpoint:    cfg.Observ.JaegerEndpoint,
			Environment: cfg.Server.Env,
			SampleRatio: cfg.Observ.TraceSampleRatio,
		})
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close()

	// the hub feeds SSE streams directly; redis and kafka get events through
	// the dispatcher so a slow broker never holds up a request
	hub := notify.NewHub()
	var (
		external    notify.Multi
		idempotency api.IdempotencyStore
	)

	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

		external = append(external, redisClient)
		idempotency = redisClient
	}

	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

		external = append(external, broker.NewEventPublisher(producer))
	}

	var dispatcher *notify.Dispatcher
	sink := notify.Multi{hub}
	if len(external) > 0 {
		dispatcher = notify.NewDispatcher(external, cfg.Business.NotifyBuffer)
		sink = append(sink, dispatcher)
	}

	ledgerService := service.NewLedgerService(st, sink)
	handler := api.NewHandler(api.Services{
		Products: service.NewProductService(st, sink, cfg.Business.DefaultReorderLevel),
		Ledger:   ledgerService,
		Invoices: service.NewInvoiceService(st, ledgerService, sink),
		Alerts:   service.NewAlertService(st, sink),
		Reports:  service.NewReportService(st),
		Hub:      hub,
		Store:    st,
	})
	if idempotency != nil {
		handler.WithIdempotency(idempotency, cfg.Redis.IdempotencyTTL)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	if dispatcher != nil {
		g.Go(func() error {
			return dispatcher.Run(gctx)
		})
	}

	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCommands, cfg.Kafka.ConsumerGroup)
		stockWorker := worker.NewStockWorker(consumer, ledgerService)
		g.Go(func() error {
			err := stockWorker.Start(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			return stockWorker.Stop()
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		// end SSE streams first so Shutdown is not held open by them
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		return
	}
	logger.Info("Server exited")
}

// openStore picks the storage backend
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	case config.DriverPostgres:
		pg, err := store.NewPostgresStore(cfg.URL, cfg.MaxOpen)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, err
			}
		}
		util.GetLogger().Info("Database connected")
		return pg, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
