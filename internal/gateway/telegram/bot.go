// Package telegram adapts Telegram updates to the order lifecycle: commands
// and photos drive the buyer flow, inline keyboard callbacks drive region
// choice and admin decisions.
package telegram

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/marshallcc/purchase-bot/internal/order/application"
	"github.com/marshallcc/purchase-bot/internal/order/domain"
	"github.com/marshallcc/purchase-bot/internal/session"
	"github.com/marshallcc/purchase-bot/pkg/idempotency"
)

type Config struct {
	AdminChatID      int64
	PaymentDetailsUK string
	PaymentDetailsDE string
}

type Bot struct {
	log      *slog.Logger
	api      *tgbotapi.BotAPI
	cfg      Config
	sessions *session.Manager
	orders   *application.Service
	dedupe   *idempotency.Store
	tracer   trace.Tracer
}

func New(log *slog.Logger, api *tgbotapi.BotAPI, cfg Config, sessions *session.Manager, orders *application.Service, dedupe *idempotency.Store) *Bot {
	return &Bot{
		log:      log,
		api:      api,
		cfg:      cfg,
		sessions: sessions,
		orders:   orders,
		dedupe:   dedupe,
		tracer:   otel.Tracer("telegram-gateway"),
	}
}

// Run consumes updates via long polling until the context is cancelled.
// Updates for different buyers are handled sequentially here; ordering per
// buyer and per order is enforced below this layer, so this loop could be
// fanned out without changing the core.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.log.Info("telegram gateway polling", "bot", b.api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.handle(ctx, upd)
		}
	}
}

func (b *Bot) handle(ctx context.Context, upd tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch {
	case upd.CallbackQuery != nil:
		b.recordBuyer(ctx, upd.CallbackQuery.From)
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.From != nil:
		b.recordBuyer(ctx, upd.Message.From)
		b.handleMessage(ctx, upd.Message)
	}
}

func (b *Bot) recordBuyer(ctx context.Context, u *tgbotapi.User) {
	if u == nil {
		return
	}
	buyer := domain.Buyer{
		ID:        u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
	if err := b.orders.RecordBuyer(ctx, buyer); err != nil {
		b.log.Error("buyer upsert failed", "buyer_id", u.ID, "err", err)
	}
}

func (b *Bot) send(c tgbotapi.Chattable) error {
	_, err := b.api.Send(c)
	return err
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Error("send failed", "chat_id", chatID, "err", err)
	}
}
