// Package telegram adapts the Bot API client from telegram-bot-api to
// context-aware calls covering long polling, messages with keyboards and
// callback answers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const DefaultBaseURL = "https://api.telegram.org"

var allowedUpdates = []string{"message", "callback_query"}

type Client struct {
	token    string
	endpoint string
	http     *http.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.endpoint = endpoint(u) }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func endpoint(base string) string {
	return strings.TrimRight(base, "/") + "/bot%s/%s"
}

// New never touches the network; call GetMe to verify the token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:    token,
		endpoint: endpoint(DefaultBaseURL),
		http:     &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doer binds a request context to the library's context-free calls.
type doer struct {
	ctx   context.Context
	http  *http.Client
	token string
}

func (d doer) Do(req *http.Request) (*http.Response, error) {
	res, err := d.http.Do(req.WithContext(d.ctx))
	if err != nil {
		// The URL carries the token; keep it out of logs.
		return nil, redact(err, d.token)
	}
	return res, nil
}

func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}

func (c *Client) api(ctx context.Context) *tgbotapi.BotAPI {
	b := &tgbotapi.BotAPI{
		Token:  c.token,
		Buffer: 100,
		Client: doer{ctx: ctx, http: c.http, token: c.token},
	}
	b.SetAPIEndpoint(c.endpoint)
	return b
}

func (c *Client) GetMe(ctx context.Context) (tgbotapi.User, error) {
	u, err := c.api(ctx).GetMe()
	if err != nil {
		return tgbotapi.User{}, fmt.Errorf("telegram getMe: %w", err)
	}
	return u, nil
}

// GetUpdates long-polls for updates with id >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = int(timeout / time.Second)
	cfg.AllowedUpdates = allowedUpdates
	updates, err := c.api(ctx).GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}
	return updates, nil
}

func (c *Client) SendMessage(ctx context.Context, msg tgbotapi.MessageConfig) (tgbotapi.Message, error) {
	m, err := c.api(ctx).Send(msg)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("telegram sendMessage: %w", err)
	}
	return m, nil
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	if _, err := c.api(ctx).Request(tgbotapi.NewCallback(id, text)); err != nil {
		return fmt.Errorf("telegram answerCallbackQuery: %w", err)
	}
	return nil
}

// APIError returns the Bot API error carried by err, if any.
func APIError(err error) (*tgbotapi.Error, bool) {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ChatID returns the chat the update belongs to, or 0.
func ChatID(u tgbotapi.Update) int64 {
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return u.Message.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat != nil:
		return u.CallbackQuery.Message.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		return u.CallbackQuery.From.ID
	}
	return 0
}

// Sender returns the user who produced the update.
func Sender(u tgbotapi.Update) *tgbotapi.User {
	switch {
	case u.Message != nil:
		return u.Message.From
	case u.CallbackQuery != nil:
		return u.CallbackQuery.From
	}
	return nil
}

// Notifier sends admin notifications as direct messages. Admin ids are
// Telegram user ids, which double as private chat ids.
type Notifier struct {
	Client *Client
}

func (n Notifier) Notify(ctx context.Context, adminID, message string) error {
	chatID, err := strconv.ParseInt(adminID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid admin id %q: %w", adminID, err)
	}
	_, err = n.Client.SendMessage(ctx, tgbotapi.NewMessage(chatID, message))
	return err
}
