// Package notify delivers operator alerts about failed or oversized
// generation stages.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends a short Markdown alert to whoever operates the service.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop drops every alert.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts alerts to a single admin chat.
type Telegram struct {
	api    sender
	chatID int64
}

// SendTimeout bounds every Bot API call. tgbotapi takes no context.
const SendTimeout = 10 * time.Second

// NewTelegram connects to the Bot API with token.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	return NewTelegramWithClient(token, chatID, tgbotapi.APIEndpoint, &http.Client{Timeout: SendTimeout})
}

// NewTelegramWithClient is NewTelegram against a custom endpoint format
// (see tgbotapi.APIEndpoint) and HTTP client.
func NewTelegramWithClient(token string, chatID int64, endpoint string, client *http.Client) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	return &Telegram{api: bot, chatID: chatID}, nil
}

// Notify sends text to the admin chat.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send admin alert: %w", err)
	}
	return nil
}

// StageFailure formats the alert for a stage that exhausted its attempts.
func StageFailure(stage string, attempts int, reason string) string {
	return fmt.Sprintf("❌ *Stage Failure*\nStage: %s\nAttempts: %d\n```\n%s\n```", stage, attempts, safe(reason))
}

// ContextBloat formats the alert for a prompt above the token threshold.
func ContextBloat(stage, model string, promptTokens int) string {
	return fmt.Sprintf("⚠️ *Context Bloat Alert*\nStage: %s\nModel: %s\nPrompt Tokens: %d", stage, model, promptTokens)
}

func safe(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}
