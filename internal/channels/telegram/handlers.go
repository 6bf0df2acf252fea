package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// parseCallback splits button callback data into (action, request id).
// Request ids are hyphenated UUIDs, so the first underscore is always the
// separator.
func parseCallback(data string) (action, id string) {
	action, id, ok := strings.Cut(data, "_")
	if !ok {
		return "", ""
	}
	return action, id
}

func (b *Bot) handleCallbackQuery(ctx context.Context, q *telego.CallbackQuery) {
	if q.Message == nil || q.Message.GetChat().ID != b.adminChatID {
		b.answer(ctx, q.ID, "Not authorized.")
		return
	}

	action, id := parseCallback(q.Data)
	if id == "" {
		b.answer(ctx, q.ID, "Malformed action.")
		return
	}

	req, known := b.resolver.Meta(id)
	switch action {
	case "approve":
		if b.resolver.Resolve(id, true) {
			b.answer(ctx, q.ID, "Approved.")
			b.concludePrompt(ctx, q, fmt.Sprintf("✅ Approved reply to %s.", req.BuyerName))
		} else {
			b.answer(ctx, q.ID, "Already handled or expired.")
		}
	case "decline":
		if b.resolver.Resolve(id, false) {
			b.answer(ctx, q.ID, "Declined.")
			b.concludePrompt(ctx, q, fmt.Sprintf("❌ Declined reply to %s.", req.BuyerName))
		} else {
			b.answer(ctx, q.ID, "Already handled or expired.")
		}
	case "custom":
		if !known {
			b.answer(ctx, q.ID, "Already handled or expired.")
			return
		}
		b.mu.Lock()
		b.pendingCustom = id
		b.mu.Unlock()
		b.answer(ctx, q.ID, "Waiting for your reply text.")
		b.send(ctx, fmt.Sprintf("Type the reply to send to %s:", req.BuyerName))
	default:
		b.answer(ctx, q.ID, "Unknown action.")
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.Chat.ID != b.adminChatID {
		slog.Debug("message from non-admin chat ignored", "chat", msg.Chat.ID)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, text)
		return
	}

	// Non-command text while a custom reply is pending is that reply.
	b.mu.Lock()
	id := b.pendingCustom
	b.pendingCustom = ""
	b.mu.Unlock()

	if id == "" {
		b.send(ctx, "No pending action. Use the buttons on an approval prompt.")
		return
	}
	if b.resolver.ResolveCustom(id, text) {
		b.send(ctx, "Custom reply queued.")
	} else {
		b.send(ctx, "That request already resolved or expired; nothing sent.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, text string) {
	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/start":
		b.send(ctx, "stallbot online. You'll get approval prompts and meetup notes here.")
	case "/avail":
		if arg == "" {
			snap := b.products.Snapshot()
			item := snap.ActiveItem()
			b.send(ctx, fmt.Sprintf("Active item: %s ($%.0f, bottom $%.0f)\nLocation: %s\nAvailability: %s",
				item.Name, item.ListedPrice, item.BottomPrice, snap.Location, snap.AvailabilityNote))
			return
		}
		if err := b.products.SetAvailability(arg); err != nil {
			b.send(ctx, "Could not update availability: "+err.Error())
			return
		}
		b.send(ctx, "Availability updated: "+arg)
	case "/reload":
		if err := b.products.Reload(); err != nil {
			b.send(ctx, "Reload failed: "+err.Error())
			return
		}
		b.send(ctx, "Product config reloaded.")
	default:
		b.send(ctx, "Commands: /avail [note], /reload")
	}
}

func (b *Bot) answer(ctx context.Context, queryID, text string) {
	err := b.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
	})
	if err != nil {
		slog.Warn("answer callback query", "error", err)
	}
}

// concludePrompt rewrites the prompt message so the buttons disappear and
// the chosen outcome stays visible in the chat history.
func (b *Bot) concludePrompt(ctx context.Context, q *telego.CallbackQuery, outcome string) {
	if q.Message == nil {
		return
	}
	_, err := b.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(q.Message.GetChat().ID),
		MessageID: q.Message.GetMessageID(),
		Text:      outcome,
	})
	if err != nil {
		slog.Debug("edit prompt message", "error", err)
	}
}

func (b *Bot) send(ctx context.Context, text string) {
	if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(b.adminChatID), text)); err != nil {
		slog.Warn("telegram send failed", "error", err)
	}
}
