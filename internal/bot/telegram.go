package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageRunes is the Telegram limit for one text message.
const maxMessageRunes = 4096

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Options struct {
	ParseMode     string
	PollTimeout   int
	RetryDelay    time.Duration
	RemoveWebhook bool
}

type Bot struct {
	api    API
	engine Engine
	opts   Options
	offset int
}

func New(api API, engine Engine, opts Options) *Bot {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	return &Bot{api: api, engine: engine, opts: opts}
}

var ErrNoToken = errors.New("telegram token is required (set BOT_TOKEN)")

// Connect authenticates against the Bot API with token.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoToken
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	return api, nil
}

// Dial calls connect until it succeeds, waiting delay after each failure.
// A missing token is not retried. Dial returns ctx.Err() once ctx is done.
func Dial(ctx context.Context, connect func() (API, error), delay time.Duration) (API, error) {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	for {
		api, err := connect()
		if err == nil {
			return api, nil
		}
		if errors.Is(err, ErrNoToken) {
			return nil, err
		}
		log.Printf("telegram connect failed, retrying in %s: %v", delay, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Run long-polls for updates until ctx is cancelled. Any polling failure is
// logged and retried after the fixed RetryDelay; Run never gives up on its own.
func (b *Bot) Run(ctx context.Context) error {
	if b.opts.RemoveWebhook {
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.Printf("remove webhook: %v", err)
		}
	}
	log.Printf("bot polling started")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := b.poll(ctx); err != nil {
			log.Printf("polling error: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.opts.RetryDelay):
			}
		}
	}
}

type pollResult struct {
	updates []tgbotapi.Update
	err     error
}

// poll fetches one batch. GetUpdates takes no context, so the request runs in
// its own goroutine and is abandoned on cancellation; updates it returns are
// never confirmed and Telegram delivers them again on the next start.
func (b *Bot) poll(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(b.offset)
	cfg.Timeout = b.opts.PollTimeout
	done := make(chan pollResult, 1)
	go func() {
		updates, err := b.api.GetUpdates(cfg)
		done <- pollResult{updates: updates, err: err}
	}()
	var res pollResult
	select {
	case <-ctx.Done():
		return nil
	case res = <-done:
	}
	if res.err != nil {
		return res.err
	}
	for _, u := range res.updates {
		if u.UpdateID >= b.offset {
			b.offset = u.UpdateID + 1
		}
		b.handleUpdate(ctx, u)
	}
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, u tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic handling update %d: %v", u.UpdateID, r)
		}
	}()
	msg := u.Message
	if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	for _, r := range Handle(ctx, b.engine, msg.Text) {
		for _, part := range splitMessage(r.Text, maxMessageRunes) {
			out := tgbotapi.NewMessage(msg.Chat.ID, part)
			out.ParseMode = b.opts.ParseMode
			if r.Quote {
				out.ReplyToMessageID = msg.MessageID
			}
			if r.Menu {
				out.ReplyMarkup = MainMenu()
			}
			b.send(out)
		}
	}
}

// send delivers out, retrying once without formatting when Telegram rejects
// the markup of a stored text.
func (b *Bot) send(out tgbotapi.MessageConfig) {
	if _, err := b.api.Send(out); err != nil {
		if out.ParseMode == "" {
			log.Printf("send to chat %d: %v", out.ChatID, err)
			return
		}
		out.ParseMode = ""
		if _, err2 := b.api.Send(out); err2 != nil {
			log.Printf("send to chat %d: %v (plain retry: %v)", out.ChatID, err, err2)
		}
	}
}

func MainMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonAdd),
			tgbotapi.NewKeyboardButton(ButtonDelete),
			tgbotapi.NewKeyboardButton(ButtonEdit),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// splitMessage cuts text into chunks of at most limit runes, preferring line
// breaks as cut points.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
