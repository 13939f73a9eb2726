package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/marshallcc/purchase-bot/internal/order/application"
	"github.com/marshallcc/purchase-bot/internal/order/domain"
	"github.com/marshallcc/purchase-bot/internal/session"
)

const (
	startText = "Hello! I'm your assistant for private login.\n\n" +
		"Use the command /buy to get started quickly.\n\n" +
		"Select UK or Germany, view payment info, make payment and upload your payment screenshot.\n\n" +
		"Once approved by the admin, your login details will be sent to you."

	helpText = "Hello! I'm your assistant for private login.\n\n" +
		"Use the command /buy to get started quickly.\n\n" +
		"How it works:\n" +
		"1) Select UK or Germany.\n" +
		"2) View payment info.\n" +
		"3) Make payment & upload your screenshot.\n" +
		"4) Wait for admin approval.\n" +
		"5) Receive your login details."

	supportText = "Message our bot support @techafresh_bot or @marshallcc_bot " +
		"for all enquiries & purchases."

	chooseRegionText = "Choose your server location (required before payment):"

	cancelledText = "Cancelled. If you change your mind, type /buy."

	screenshotOnlyText = "Please upload a *screenshot* image (not other file types)."

	pendingReviewText = "Thanks! Your payment is pending admin review. You'll get a reply here when it's approved."

	adminUnreachableText = "Thanks! I couldn't reach the admin - please try again later."

	strayPhotoText = "If you're trying to buy, use /buy and then send the screenshot when asked."

	rejectedText = "❌ Your payment was not approved. If you think this is a mistake, reply with /buy to try again."
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	ctx, span := b.tracer.Start(ctx, "HandleMessage")
	defer span.End()

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg)
		return
	}
	if b.sessions.Step(msg.From.ID) == session.StepAwaitingScreenshot {
		m := tgbotapi.NewMessage(msg.Chat.ID, screenshotOnlyText)
		m.ParseMode = tgbotapi.ModeMarkdown
		if err := b.send(m); err != nil {
			b.log.Error("send failed", "chat_id", msg.Chat.ID, "err", err)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg.Chat.ID, startText)
	case "help":
		b.reply(msg.Chat.ID, helpText)
	case "support":
		b.reply(msg.Chat.ID, supportText)
	case "buy":
		b.sessions.Begin(msg.From.ID)
		m := tgbotapi.NewMessage(msg.Chat.ID, chooseRegionText)
		m.ReplyMarkup = regionKeyboard()
		if err := b.send(m); err != nil {
			b.log.Error("send failed", "chat_id", msg.Chat.ID, "err", err)
		}
	case "cancel":
		b.sessions.Cancel(msg.From.ID)
		b.reply(msg.Chat.ID, cancelledText)
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	// Highest resolution variant is last.
	proofRef := msg.Photo[len(msg.Photo)-1].FileID

	o, review, err := b.sessions.SubmitScreenshot(ctx, msg.From.ID, proofRef)
	if errors.Is(err, session.ErrNoPurchaseInProgress) {
		b.reply(msg.Chat.ID, strayPhotoText)
		return
	}
	if err != nil {
		b.log.Error("screenshot submission failed", "buyer_id", msg.From.ID, "err", err)
		b.reply(msg.Chat.ID, "Something went wrong, please try again.")
		return
	}

	// The order is already PENDING_APPROVAL; a failed admin notification is
	// reported, never rolled back.
	if err := b.sendReview(review); err != nil {
		b.log.Error("failed to notify admin", "order_id", o.ID, "err", err)
		b.reply(msg.Chat.ID, adminUnreachableText)
		return
	}
	b.reply(msg.Chat.ID, pendingReviewText)
}

func (b *Bot) sendReview(review application.ReviewRequest) error {
	photo := tgbotapi.NewPhoto(b.cfg.AdminChatID, tgbotapi.FileID(review.ProofRef))
	photo.Caption = fmt.Sprintf(
		"Payment screenshot from %s\nOrder ID: %d\nRegion: %s\nApprove?",
		review.BuyerTag, review.OrderID, review.Region,
	)
	photo.ReplyMarkup = decisionKeyboard(review.OrderID)
	return b.send(photo)
}

func (b *Bot) paymentDetails(region domain.Region) string {
	if region == domain.RegionDE {
		return b.cfg.PaymentDetailsDE
	}
	return b.cfg.PaymentDetailsUK
}

func regionKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("\U0001F1EC\U0001F1E7 UK", "region:UK"),
			tgbotapi.NewInlineKeyboardButtonData("\U0001F1E9\U0001F1EA Germany", "region:DE"),
		),
	)
}

func decisionKeyboard(orderID int64) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", fmt.Sprintf("approve:%d", orderID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", fmt.Sprintf("reject:%d", orderID)),
		),
	)
	return &kb
}
