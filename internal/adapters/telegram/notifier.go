package telegram

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"signalwatch/internal/alerts"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

// Config contains Telegram notifier configuration
type Config struct {
	Token       string
	ChatID      int64
	RatePerSec  float64
	HTTPTimeout time.Duration
	Endpoint    string // defaults to tgbotapi.APIEndpoint
}

// Notifier delivers alert notifications to a single Telegram chat
type Notifier struct {
	api         *tgbotapi.BotAPI
	chatID      int64
	rateLimiter *rate.Limiter
	log         *logger.Logger
}

// NewNotifier creates a Telegram notifier. Without a token or chat id the
// notifier is disabled and Notify returns ErrSinkDisabled.
func NewNotifier(cfg Config) (*Notifier, error) {
	n := &Notifier{
		chatID: cfg.ChatID,
		log:    logger.Get().With("component", "telegram_notifier"),
	}
	if cfg.Token == "" || cfg.ChatID == 0 {
		return n, nil
	}

	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}

	n.api = api
	n.rateLimiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	n.log.Infof("Authorized on account %s", api.Self.UserName)
	return n, nil
}

// Enabled reports whether the notifier has a bot behind it
func (n *Notifier) Enabled() bool {
	return n.api != nil
}

// Notify sends n as an HTML message
func (n *Notifier) Notify(ctx context.Context, notification alerts.Notification) error {
	if !n.Enabled() {
		return errors.ErrSinkDisabled
	}

	if err := n.rateLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait failed")
	}

	msg := tgbotapi.NewMessage(n.chatID, FormatNotification(notification))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	start := time.Now()
	if _, err := n.api.Send(msg); err != nil {
		return errors.Wrap(err, "failed to send telegram message")
	}

	n.log.Debug("Sent alert",
		"notification_id", notification.ID,
		"count", notification.Count,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// FormatNotification renders the bold title, one subject per line and the overflow summary
func FormatNotification(n alerts.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>", html.EscapeString(n.Title))
	if n.FeedID != "" {
		fmt.Fprintf(&b, " <i>(%s)</i>", html.EscapeString(n.FeedID))
	}
	b.WriteString("\n")

	for _, subject := range n.Preview {
		fmt.Fprintf(&b, "\n• %s", html.EscapeString(subject))
	}
	if n.Summary != "" {
		fmt.Fprintf(&b, "\n%s", html.EscapeString(n.Summary))
	}
	return b.String()
}
