// Package telegram is the owner-facing control surface: approval prompts
// with inline buttons, custom-reply capture, admin commands, and owner
// notifications. It connects via the Bot API using long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/ducth/stallbot/internal/approval"
	"github.com/ducth/stallbot/internal/config"
)

// Resolver is the approval coordinator surface the bot drives.
type Resolver interface {
	Resolve(id string, approved bool) bool
	ResolveCustom(id, text string) bool
	Meta(id string) (approval.Request, bool)
}

// Bot is the Telegram control channel. One admin chat is honored; updates
// from anywhere else are dropped.
type Bot struct {
	bot         *telego.Bot
	adminChatID int64
	resolver    Resolver
	products    *config.Products

	mu            sync.Mutex
	pendingCustom string // request id awaiting a typed custom reply, "" if none

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates the bot from config. The token comes from the environment.
func New(cfg config.TelegramConfig, resolver Resolver, products *config.Products) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token not set (STALLBOT_TELEGRAM_TOKEN)")
	}
	if cfg.AdminChatID == 0 {
		return nil, errors.New("telegram admin_chat_id not configured")
	}
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Bot{
		bot:         bot,
		adminChatID: cfg.AdminChatID,
		resolver:    resolver,
		products:    products,
	}, nil
}

// Start begins long polling for updates.
func (b *Bot) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	b.pollCancel = cancel
	b.pollDone = make(chan struct{})

	updates, err := b.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}
	slog.Info("telegram bot connected", "username", b.bot.Username())

	go func() {
		defer close(b.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				switch {
				case update.CallbackQuery != nil:
					b.handleCallbackQuery(pollCtx, update.CallbackQuery)
				case update.Message != nil:
					b.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()
	return nil
}

// Stop cancels polling and waits for the update goroutine to exit, so
// Telegram releases the getUpdates lock before a new instance starts.
func (b *Bot) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	if b.pollCancel != nil {
		b.pollCancel()
	}
	if b.pollDone != nil {
		select {
		case <-b.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Notify sends a plain message to the admin chat.
func (b *Bot) Notify(ctx context.Context, text string) error {
	_, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(b.adminChatID), text))
	if err != nil {
		return fmt.Errorf("notify admin: %w", err)
	}
	return nil
}

// Present posts one approval prompt with Approve / Decline / Custom buttons.
func (b *Bot) Present(ctx context.Context, req approval.Request) error {
	var text string
	if req.MeetupTimeText != "" {
		text = fmt.Sprintf("Meetup request from %s\nTime: %s\nIntent: %s\n\nIf approved, I reply:\n%s\n\nIf declined, I reply:\n%s",
			req.BuyerName, req.MeetupTimeText, req.IntentSummary, req.AcceptText, req.DeclineText)
	} else {
		text = fmt.Sprintf("Approval needed for %s\nIntent: %s\n\nIf approved, I reply:\n%s\n\nIf declined, I reply:\n%s",
			req.BuyerName, req.IntentSummary, req.AcceptText, req.DeclineText)
	}

	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("✅ Approve").WithCallbackData("approve_"+req.ID),
			tu.InlineKeyboardButton("❌ Decline").WithCallbackData("decline_"+req.ID),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("✍️ Custom reply").WithCallbackData("custom_"+req.ID),
		),
	)

	msg := tu.Message(tu.ID(b.adminChatID), text).WithReplyMarkup(keyboard)
	if _, err := b.bot.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("present approval prompt: %w", err)
	}
	return nil
}
