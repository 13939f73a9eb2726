package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/marshallcc/purchase-bot/internal/order/application"
	"github.com/marshallcc/purchase-bot/internal/order/domain"
	"github.com/marshallcc/purchase-bot/internal/session"
)

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	ctx, span := b.tracer.Start(ctx, "HandleCallback")
	defer span.End()

	// Ack the button press so the client stops its spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		b.log.Warn("callback ack failed", "callback_id", cq.ID, "err", err)
	}

	kind, arg := splitCallback(cq.Data)
	switch kind {
	case "region":
		b.handleRegionChoice(ctx, cq, arg)
	case "approve", "reject":
		b.handleDecision(ctx, cq, kind, arg)
	}
}

func (b *Bot) handleRegionChoice(ctx context.Context, cq *tgbotapi.CallbackQuery, token string) {
	o, err := b.sessions.ChooseRegion(ctx, cq.From.ID, token)
	if errors.Is(err, session.ErrNoPurchaseInProgress) {
		b.reply(cq.Message.Chat.ID, "That purchase has expired. Start over with /buy.")
		return
	}
	if errors.Is(err, domain.ErrUnknownRegion) {
		b.log.Warn("invalid region token", "buyer_id", cq.From.ID, "token", token)
		return
	}
	if err != nil {
		b.log.Error("region choice failed", "buyer_id", cq.From.ID, "err", err)
		b.reply(cq.Message.Chat.ID, "Something went wrong, please try again with /buy.")
		return
	}

	text := fmt.Sprintf(
		"You chose *%s*.\n\nPlease send payment to:\n\n%s\n\nWhen done, upload a clear *screenshot* of your payment here.",
		o.Region, b.paymentDetails(o.Region),
	)
	edit := tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if err := b.send(edit); err != nil {
		b.log.Error("edit failed", "chat_id", cq.Message.Chat.ID, "err", err)
	}
}

func (b *Bot) handleDecision(ctx context.Context, cq *tgbotapi.CallbackQuery, action, arg string) {
	// Telegram redelivers callbacks and admins double-tap; the core would
	// treat the duplicate as a finalized no-op, but dropping it here keeps
	// the admin chat quiet.
	seen, err := b.dedupe.Seen(ctx, b.dedupe.Key("decision", cq.ID))
	if err != nil {
		b.log.Error("decision dedupe check failed", "callback_id", cq.ID, "err", err)
	} else if seen {
		b.log.Info("duplicate decision callback skipped", "callback_id", cq.ID)
		return
	}

	decision, err := domain.ParseDecision(action)
	if err != nil {
		b.editCaption(cq, "Unknown action.")
		return
	}
	orderID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		b.editCaption(cq, "Unknown action.")
		return
	}

	res, err := b.orders.Decide(ctx, cq.From.ID, decision, orderID)
	switch {
	case errors.Is(err, application.ErrNotAuthorized):
		b.editCaption(cq, "Not authorized.")
		return
	case errors.Is(err, domain.ErrOrderNotFound):
		b.editCaption(cq, "Order not found.")
		return
	case err != nil:
		b.log.Error("decision failed", "order_id", orderID, "err", err)
		b.editCaption(cq, fmt.Sprintf("Order %d: decision failed, try again.", orderID))
		return
	}

	switch res.Outcome {
	case application.OutcomeAlreadyFinal:
		b.editCaption(cq, fmt.Sprintf("Order %d is already finalized (%s).", res.Order.ID, res.Order.Status))
	case application.OutcomeApproved:
		b.deliverApproval(ctx, cq, res)
	case application.OutcomeRejected:
		if err := b.send(tgbotapi.NewMessage(res.Order.BuyerID, rejectedText)); err != nil {
			b.log.Error("rejection notice failed", "order_id", res.Order.ID, "err", err)
			b.editCaption(cq, fmt.Sprintf("Order %d: Rejected, but the buyer could not be reached.", res.Order.ID))
			return
		}
		b.editCaption(cq, fmt.Sprintf("Order %d: Rejected.", res.Order.ID))
	}
}

func (b *Bot) deliverApproval(ctx context.Context, cq *tgbotapi.CallbackQuery, res application.DecideResult) {
	if res.Warning != nil {
		b.editCaption(cq, fmt.Sprintf("Order %d: Approved, but %v.", res.Order.ID, res.Warning))
		return
	}

	creds := res.Credentials
	text := fmt.Sprintf(
		"✅ Your payment is approved!\n\n**Server:** %s\n**Username:** `%s`\n**Password:** `%s`\n\nPlease change your password on first login if supported.",
		creds.Region, creds.Handle, creds.Secret,
	)
	m := tgbotapi.NewMessage(res.Order.BuyerID, text)
	m.ParseMode = tgbotapi.ModeMarkdown
	if err := b.send(m); err != nil {
		// Approval and provisioning already happened; surface the delivery
		// failure to the admin instead of rolling anything back.
		b.log.Error("credentials notice failed", "order_id", res.Order.ID, "err", err)
		b.editCaption(cq, fmt.Sprintf("Order %d: Approved, but the buyer could not be reached.", res.Order.ID))
		return
	}
	b.editCaption(cq, fmt.Sprintf("Order %d: Approved and credentials sent.", res.Order.ID))
}

func (b *Bot) editCaption(cq *tgbotapi.CallbackQuery, caption string) {
	edit := tgbotapi.NewEditMessageCaption(cq.Message.Chat.ID, cq.Message.MessageID, caption)
	if err := b.send(edit); err != nil {
		b.log.Error("caption edit failed", "chat_id", cq.Message.Chat.ID, "err", err)
	}
}

func splitCallback(data string) (kind, arg string) {
	kind, arg, _ = strings.Cut(data, ":")
	return kind, arg
}
