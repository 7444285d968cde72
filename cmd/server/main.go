package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"warranty-proxy-service/internal/config"
	"warranty-proxy-service/internal/controller"
	"warranty-proxy-service/internal/logger"
	"warranty-proxy-service/internal/middleware"
	"warranty-proxy-service/internal/rabbit"
	"warranty-proxy-service/internal/repository"
	"warranty-proxy-service/internal/service"
	"warranty-proxy-service/internal/shopify"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("warranty service stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("warranty service stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store := shopify.NewClient(cfg, log)
	var opts []service.Option

	// Audit trail in MongoDB
	if cfg.AuditEnabled() {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		repo := repository.NewMongoAuditRepository(client.Database(cfg.MongoDBName))
		if err := repo.EnsureIndexes(connectCtx); err != nil {
			log.Warn("audit indexes not created", zap.Error(err))
		}
		opts = append(opts, service.WithAudit(repo))
		log.Info("audit trail enabled", zap.String("database", cfg.MongoDBName))
	}

	// Events out through RabbitMQ
	var ch *amqp091.Channel
	if cfg.MessagingEnabled() {
		conn, err := amqp091.Dial(cfg.RabbitURL)
		if err != nil {
			return err
		}
		defer conn.Close()

		ch, err = conn.Channel()
		if err != nil {
			return err
		}
		defer ch.Close()

		if err := rabbit.DeclareEventsExchange(ch); err != nil {
			return err
		}
		opts = append(opts, service.WithEvents(rabbit.NewPublisher(ch, log)))
	}

	warrantyService := service.NewWarrantyService(store, log, opts...)

	g, gctx := errgroup.WithContext(ctx)

	// Orders in through RabbitMQ
	var consumerDone <-chan struct{}
	if ch != nil {
		done, err := rabbit.SetupConsumers(gctx, ch, warrantyService, log)
		if err != nil {
			return err
		}
		consumerDone = done
	}

	ctrl := controller.NewWarrantyController(warrantyService)

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(log),
		middleware.Instrument(),
		middleware.ContentSecurityPolicy(),
		middleware.CORS(cfg.AllowedOrigins),
	)

	r.POST("/proxy", ctrl.Register)
	r.POST("/delete", ctrl.Delete)
	r.GET("/warranties/:customerId", ctrl.List)
	r.GET("/warranties/:customerId/history", ctrl.History)
	r.GET("/healthz", ctrl.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	g.Go(func() error {
		log.Info("warranty proxy listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if consumerDone != nil {
		<-consumerDone
	}
	return err
}
