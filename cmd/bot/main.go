package main

import (
	"context"
	"net/http"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/marshallcc/purchase-bot/internal/config"
	"github.com/marshallcc/purchase-bot/internal/gateway/telegram"
	"github.com/marshallcc/purchase-bot/internal/ops"
	"github.com/marshallcc/purchase-bot/internal/order/application"
	orderkafka "github.com/marshallcc/purchase-bot/internal/order/infrastructure/kafka"
	orderpg "github.com/marshallcc/purchase-bot/internal/order/infrastructure/postgres"
	"github.com/marshallcc/purchase-bot/internal/provisioning"
	"github.com/marshallcc/purchase-bot/internal/session"
	"github.com/marshallcc/purchase-bot/pkg/idempotency"
	"github.com/marshallcc/purchase-bot/pkg/logging"
	"github.com/marshallcc/purchase-bot/pkg/outbox"
	"github.com/marshallcc/purchase-bot/pkg/shutdown"
	"github.com/marshallcc/purchase-bot/pkg/tracing"
)

func main() {
	log := logging.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "purchase-bot", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// Postgres
	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis (decision callback dedupe)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()
	dedupe := idempotency.NewStore(rdb, 24*time.Hour)

	// Kafka audit stream via the transactional outbox
	writer := orderkafka.NewWriter([]string{cfg.KafkaAddr})
	defer writer.Close()

	store := orderpg.NewStore(log, pool)
	outboxStore := orderpg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
	relay := outbox.NewRelay(log, outboxStore, dispatch, "purchase-bot-relay")

	// Core services
	prov := provisioning.New(log, cfg.ProvisionerURL, cfg.ProvisionerMock)
	orders := application.NewService(log, store, prov, cfg.AdminChatID)
	sessions := session.NewManager(log, orders)

	// Telegram gateway
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Error("telegram connect failed", "err", err)
		os.Exit(1)
	}
	bot := telegram.New(log, api, telegram.Config{
		AdminChatID:      cfg.AdminChatID,
		PaymentDetailsUK: cfg.PaymentDetailsUK,
		PaymentDetailsDE: cfg.PaymentDetailsDE,
	}, sessions, orders, dedupe)

	// Ops HTTP
	handler := ops.NewHandler(log, store)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	go func() {
		if err := bot.Run(ctx); err != nil {
			log.Error("telegram gateway stopped with error", "err", err)
			cancel()
		}
	}()

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("purchase-bot shutdown complete")
}
