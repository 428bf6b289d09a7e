package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/pitchside/tacticsroom/config"
	httpDelivery "github.com/pitchside/tacticsroom/internal/delivery/http"
	"github.com/pitchside/tacticsroom/internal/delivery/kafka/consumer"
	"github.com/pitchside/tacticsroom/internal/delivery/kafka/producer"
	"github.com/pitchside/tacticsroom/internal/delivery/ws"
	repo "github.com/pitchside/tacticsroom/internal/repository/redis"
	"github.com/pitchside/tacticsroom/internal/service"
	"github.com/pitchside/tacticsroom/internal/store"
	pkgKafka "github.com/pitchside/tacticsroom/pkg/kafka"
	pkgLog "github.com/pitchside/tacticsroom/pkg/logger"
	pkgRedis "github.com/pitchside/tacticsroom/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	redisCli, err := pkgRedis.Connect(ctx, cfg.Redis)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
	}
	defer pkgRedis.Disconnect(redisCli)

	formRepo := repo.NewRedisFormationRepository(redisCli, cfg.Collab.HistoryLimit, l)

	// Kafka is optional in local setups; the engine runs with publishes
	// disabled and no formation-deleted feed.
	prod := producer.NewNoopProducer()
	if cfg.Kafka.Enabled {
		kafkaSyncProd, err := pkgKafka.NewProducer(cfg.Kafka)
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		prod = producer.NewProducer(kafkaSyncProd, l)
	}
	defer prod.Close()

	sessionStore := store.New()
	hub := ws.NewHub(l)

	collabSvc := service.NewCollabService(sessionStore, formRepo, hub, prod, cfg.Collab, l)
	hub.Bind(collabSvc)

	sched := service.NewScheduler(sessionStore, formRepo, hub, prod, cfg.Collab, l)
	if err := sched.Start(ctx); err != nil {
		l.Fatalf(ctx, "Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	var cons *consumer.Consumer
	if cfg.Kafka.Enabled {
		kafkaConsGr, err := pkgKafka.NewConsumerGroup(cfg.Kafka)
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka consumer: %v", err)
		}
		cons = consumer.NewConsumer(kafkaConsGr, collabSvc, l)
		if err := cons.Start(ctx); err != nil {
			l.Fatalf(ctx, "Failed to start Kafka consumer: %v", err)
		}
		defer cons.Close()
	}

	handler := httpDelivery.NewCollabHandler(collabSvc, sched, l)
	router := httpDelivery.NewRouter(handler, hub, httpDelivery.AuthMiddleware(cfg.JWT))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Infof(ctx, "HTTP server listening on port %d", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		l.Info(ctx, "Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Errorf(ctx, "Server error: %v", err)
	}

	l.Info(ctx, "Server exited")
}
