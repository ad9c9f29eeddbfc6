// Package bot connects the conversation router to the Telegram Bot API.
package bot

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/conversation"
	"github.com/julianstephens/salonbot/internal/dialog"
	"github.com/julianstephens/salonbot/internal/logger"
	"github.com/julianstephens/salonbot/internal/ratelimit"
	"github.com/julianstephens/salonbot/internal/telegram"
)

type API interface {
	GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]tgbotapi.Update, error)
	SendMessage(ctx context.Context, msg tgbotapi.MessageConfig) (tgbotapi.Message, error)
	AnswerCallbackQuery(ctx context.Context, id, text string) error
}

type Handler interface {
	Handle(ctx context.Context, c conversation.Caller, in dialog.Input) []dialog.Prompt
}

type Bot struct {
	api      API
	handler  Handler
	limiter  ratelimit.Limiter
	pollWait time.Duration
	backoff  time.Duration
	workers  *dispatcher
}

type Option func(*Bot)

func WithLimiter(l ratelimit.Limiter) Option {
	return func(b *Bot) {
		if l != nil {
			b.limiter = l
		}
	}
}

func WithPollWait(d time.Duration) Option {
	return func(b *Bot) { b.pollWait = d }
}

func New(api API, handler Handler, opts ...Option) *Bot {
	b := &Bot{
		api:      api,
		handler:  handler,
		limiter:  ratelimit.Unlimited{},
		pollWait: constants.DefaultPollWait,
		backoff:  3 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.workers = newDispatcher(constants.WorkerInbox, constants.WorkerIdle, b.handleUpdate)
	return b
}

// Run long-polls until ctx is cancelled, then waits for in-flight updates.
func (b *Bot) Run(ctx context.Context) error {
	logger.Info("Bot polling started")
	defer func() {
		b.workers.close()
		b.workers.wait()
	}()

	var offset int
	for {
		if ctx.Err() != nil {
			logger.Info("Bot polling stopped")
			return nil
		}

		updates, err := b.api.GetUpdates(ctx, offset, b.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := b.backoff
			if apiErr, ok := telegram.APIError(err); ok {
				if apiErr.Code == 401 || apiErr.Code == 404 {
					return err
				}
				if apiErr.RetryAfter > 0 {
					wait = time.Duration(apiErr.RetryAfter) * time.Second
				}
			}
			logger.Warn("Failed to fetch updates", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			chatID := telegram.ChatID(u)
			if chatID == 0 || telegram.Sender(u) == nil {
				continue
			}
			b.workers.submit(ctx, chatID, u)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, u tgbotapi.Update) {
	sender := telegram.Sender(u)
	caller := conversation.Caller{ID: strconv.FormatInt(sender.ID, 10), Name: sender.FirstName}
	chatID := telegram.ChatID(u)

	if cq := u.CallbackQuery; cq != nil {
		if err := b.api.AnswerCallbackQuery(ctx, cq.ID, ""); err != nil {
			logger.Debug("Failed to answer callback", "client", caller.ID, "error", err)
		}
	}

	if !b.limiter.Allow(ctx, caller.ID) {
		logger.Debug("Rate limited", "client", caller.ID)
		return
	}

	in, ok := toInput(u)
	if !ok {
		return
	}

	for _, p := range b.handler.Handle(ctx, caller, in) {
		if p.Body() == "" {
			continue
		}
		if _, err := b.api.SendMessage(ctx, Render(chatID, p)); err != nil {
			logger.Warn("Failed to send message", "client", caller.ID, "error", err)
		}
	}
}

func toInput(u tgbotapi.Update) (dialog.Input, bool) {
	switch {
	case u.CallbackQuery != nil:
		return dialog.Choose(u.CallbackQuery.Data), u.CallbackQuery.Data != ""
	case u.Message != nil && u.Message.Contact != nil:
		return dialog.Contact(u.Message.Contact.PhoneNumber), true
	case u.Message != nil && u.Message.Text != "":
		return dialog.ParseText(u.Message.Text), true
	}
	return dialog.Input{}, false
}

// Render converts a prompt to a sendMessage call. Choices become an inline
// keyboard; a contact request becomes a one-time reply keyboard.
func Render(chatID int64, p dialog.Prompt) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, p.Body())

	switch {
	case p.RequestContact:
		kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonContact("📱 Share contact"),
		))
		kb.OneTimeKeyboard = true
		msg.ReplyMarkup = kb
	case len(p.Choices) > 0:
		cols := p.Columns
		if cols <= 0 {
			cols = 1
		}
		var rows [][]tgbotapi.InlineKeyboardButton
		var row []tgbotapi.InlineKeyboardButton
		for _, c := range p.Choices {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Value))
			if len(row) == cols {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	default:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}
	return msg
}
