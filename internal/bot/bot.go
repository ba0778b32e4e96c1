package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"

	"crop_notify/internal/config"
	"crop_notify/internal/filter"
	"crop_notify/internal/session"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that handles user commands and sends reminders.
type Bot struct {
	api   telegramAPI
	sess  *session.Session
	cfg   *config.Config
	clock clockwork.Clock
	log   *slog.Logger

	mu       sync.Mutex
	criteria map[int64]filter.Criteria
}

// New creates a Bot with the given Telegram token and config. A session
// must be attached with SetSession before Run.
func New(token string, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:      api,
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		log:      log,
		criteria: make(map[int64]filter.Criteria),
	}, nil
}

// SetSession attaches the session commands operate on.
func (b *Bot) SetSession(s *session.Session) {
	b.sess = s
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if update.CallbackQuery.From == nil || !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) location() *time.Location {
	if b.cfg != nil && b.cfg.Reminder.Location != nil {
		return b.cfg.Reminder.Location
	}
	return time.Local
}

func (b *Bot) setCriteria(chatID int64, c filter.Criteria) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.criteria[chatID] = c
}

func (b *Bot) criteriaFor(chatID int64) filter.Criteria {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.criteria[chatID]; ok {
		return c
	}
	return filter.Criteria{View: filter.ViewAll}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "events":
		b.handleEvents(chatID)
	case "refresh":
		b.handleRefresh(ctx, chatID)
	case "timer":
		b.handleTimer(chatID, args)
	case "select":
		b.handleSelect(chatID, args)
	case "next":
		b.handleNext(chatID, args)
	case "pause":
		b.handlePause(chatID, args)
	case "resume":
		b.handleResume(chatID, args)
	case "clear":
		b.handleClear(chatID, args)
	case cmdFeed:
		b.handleFeed(ctx, chatID, args)
	case cmdRead:
		b.handleRead(ctx, chatID, args)
	case "unread":
		b.handleUnread(ctx, chatID, args)
	case cmdReadAll:
		b.handleReadAll(ctx, chatID)
	case "clearreads":
		b.handleClearReads(ctx, chatID)
	case "history":
		b.handleHistory(ctx, chatID, args)
	case "mute":
		b.handleMute(chatID)
	case "unmute":
		b.handleUnmute(chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
