package alerts

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polyedge/internal/types"
)

// ─── Console ──────────────────────────────────────────────────────────────────

// ConsoleChannel writes alerts to the structured log.
type ConsoleChannel struct {
	minPriority types.Priority
}

// NewConsoleChannel creates a console sink.
func NewConsoleChannel(minPriority types.Priority) *ConsoleChannel {
	return &ConsoleChannel{minPriority: minPriority}
}

func (c *ConsoleChannel) Name() string                { return "console" }
func (c *ConsoleChannel) MinPriority() types.Priority { return c.minPriority }

func (c *ConsoleChannel) Send(alert types.Alert) error {
	log.Info().
		Str("source", string(alert.Source)).
		Str("priority", alert.Priority.String()).
		Str("body", alert.Body).
		Msg(alert.Title)
	return nil
}

// ─── File ─────────────────────────────────────────────────────────────────────

// FileChannel appends one JSON line per alert.
type FileChannel struct {
	path        string
	minPriority types.Priority
	mu          sync.Mutex
}

// NewFileChannel creates a file sink at path.
func NewFileChannel(path string, minPriority types.Priority) *FileChannel {
	return &FileChannel{path: path, minPriority: minPriority}
}

func (c *FileChannel) Name() string                { return "file" }
func (c *FileChannel) MinPriority() types.Priority { return c.minPriority }

func (c *FileChannel) Send(alert types.Alert) error {
	line, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open alert file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write alert: %w", err)
	}
	return nil
}

// ─── Webhook ──────────────────────────────────────────────────────────────────

// WebhookChannel POSTs alerts as JSON, at most once per alert with a
// small retry budget.
type WebhookChannel struct {
	url         string
	minPriority types.Priority
	client      *resty.Client
}

// NewWebhookChannel creates a webhook sink.
func NewWebhookChannel(url string, minPriority types.Priority) *WebhookChannel {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &WebhookChannel{url: url, minPriority: minPriority, client: client}
}

func (c *WebhookChannel) Name() string                { return "webhook" }
func (c *WebhookChannel) MinPriority() types.Priority { return c.minPriority }

func (c *WebhookChannel) Send(alert types.Alert) error {
	resp, err := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(alert).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook post: status %d", resp.StatusCode())
	}
	return nil
}

// ─── Telegram ─────────────────────────────────────────────────────────────────

// TelegramChannel sends alerts to one chat.
type TelegramChannel struct {
	api         *tgbotapi.BotAPI
	chatID      int64
	minPriority types.Priority
}

// NewTelegramChannel authenticates the bot and returns the sink.
func NewTelegramChannel(token string, chatID int64, minPriority types.Priority) (*TelegramChannel, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("📱 Telegram channel ready")
	return &TelegramChannel{api: api, chatID: chatID, minPriority: minPriority}, nil
}

func (c *TelegramChannel) Name() string                { return "telegram" }
func (c *TelegramChannel) MinPriority() types.Priority { return c.minPriority }

func (c *TelegramChannel) Send(alert types.Alert) error {
	text := fmt.Sprintf("%s\n\n%s", alert.Title, alert.Body)
	msg := tgbotapi.NewMessage(c.chatID, text)
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
