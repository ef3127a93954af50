package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/university-lending/internal/directory"
	"github.com/dmehra2102/university-lending/internal/notification/application"
	notifhttp "github.com/dmehra2102/university-lending/internal/notification/infrastructure/http"
	notifkafka "github.com/dmehra2102/university-lending/internal/notification/infrastructure/kafka"
	"github.com/dmehra2102/university-lending/pkg/config"
	"github.com/dmehra2102/university-lending/pkg/idempotency"
	"github.com/dmehra2102/university-lending/pkg/logging"
	"github.com/dmehra2102/university-lending/pkg/shutdown"
	"github.com/dmehra2102/university-lending/pkg/tracing"
)

func main() {
	log := logging.New("notification-service")

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	kafkaBrokers := strings.Split(config.Env("KAFKA_ADDR", "localhost:9092"), ",")
	redisAddr := config.Env("REDIS_ADDR", "localhost:6379")
	otlp := config.Env("OTLP_ENDPOINT", "")
	httpAddr := config.Env("HTTP_ADDR", ":8004")
	studentURL := config.Env("STUDENT_SERVICE_URL", "http://localhost:8002")
	topic := config.Env("IN_TOPIC", "loan.events")
	group := config.Env("CONSUMER_GROUP", "notification-service")
	callTimeout := config.EnvDuration("CALL_TIMEOUT", 3*time.Second)

	tp, err := tracing.Init(ctx, "notification-service", otlp, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		return
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, 24*time.Hour)

	students := directory.NewClient(log, studentURL, callTimeout, 1)
	svc := application.NewService(log, students, application.LogSender{Log: log})

	consumer := notifkafka.NewConsumer(log, notifkafka.NewReader(kafkaBrokers, topic, group), svc, idem)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	r := chi.NewRouter()
	r.Mount("/", notifhttp.NewHandler(log, svc).Routes())
	srv := &http.Server{
		Addr:         httpAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("notification-service shutdown complete")
}
