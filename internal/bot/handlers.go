package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"crop_notify/internal/aggregator"
	"crop_notify/internal/alert"
	"crop_notify/internal/countdown"
	"crop_notify/internal/model"
	"crop_notify/internal/readstate"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Crop Notify!

Get reminders for fertilizer applications and adviser appointments, and read your messages, files and predictions in one feed.

Quick start:
1. /events - upcoming events
2. /timer - live countdowns
3. /feed - latest notifications

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Reminders:
/events - list upcoming events
/refresh - reload events and send due reminders
/history [n] - recently sent reminders
/mute - stop reminder alerts in this chat
/unmute - send reminder alerts again

Countdowns (fert | appt, default both):
/timer [fert|appt] - show countdowns
/select <event_id> - count down to an event
/next [fert|appt] - count down to the soonest event
/pause [fert|appt] - pause a countdown
/resume [fert|appt] - resume a countdown
/clear [fert|appt] - drop a countdown

Notifications:
/feed [page] [view] [terms] - show notifications
/read <kind> <id> - mark one as read
/unread <kind> <id> - mark one as unread
/readall - mark everything as read
/clearreads - forget local read marks

Views: all, unread, messages, files, predictions
Kinds: message, file, prediction
Terms: word, -word, re:pattern, -re:pattern`)
}

func (b *Bot) handleEvents(chatID int64) {
	b.reply(chatID, FormatEvents(b.sess.Events(), b.clock.Now(), b.location()))
}

func (b *Bot) handleRefresh(ctx context.Context, chatID int64) {
	n, err := b.sess.RefreshEvents(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Refresh failed: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Loaded %d event(s).", n))
}

func (b *Bot) handleTimer(chatID int64, args string) {
	kinds, err := ParseFamilies(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	var out []string
	for _, kind := range kinds {
		ctl, err := b.sess.Countdown(kind)
		if err != nil {
			continue
		}
		st, ok := ctl.State()
		out = append(out, FormatCountdown(kind, st, ok))
	}
	b.reply(chatID, strings.Join(out, "\n\n"))
}

func (b *Bot) handleSelect(chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.reply(chatID, "Usage: /select <event_id>")
		return
	}
	id := fields[0]

	var (
		ev    model.ReminderEvent
		found bool
	)
	for _, e := range b.sess.Events() {
		if e.ID == id {
			ev, found = e, true
			break
		}
	}
	if !found {
		b.reply(chatID, fmt.Sprintf("Event %s not found.", id))
		return
	}

	ctl, err := b.sess.Countdown(ev.Kind)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	st, err := ctl.Select(ev)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatCountdown(ev.Kind, st, true))
}

// eachCountdown applies op to every requested family and replies with the
// resulting states.
func (b *Bot) eachCountdown(chatID int64, args string, op func(*countdown.Controller) (countdown.State, error)) {
	kinds, err := ParseFamilies(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	var out []string
	for _, kind := range kinds {
		ctl, err := b.sess.Countdown(kind)
		if err != nil {
			continue
		}
		st, err := op(ctl)
		switch {
		case errors.Is(err, countdown.ErrNoSelection):
			out = append(out, FormatCountdown(kind, st, false))
		case err != nil:
			out = append(out, fmt.Sprintf("%s: %v", familyLabel(kind), err))
		default:
			out = append(out, FormatCountdown(kind, st, true))
		}
	}
	b.reply(chatID, strings.Join(out, "\n\n"))
}

func (b *Bot) handleNext(chatID int64, args string) {
	b.eachCountdown(chatID, args, (*countdown.Controller).SelectNext)
}

func (b *Bot) handlePause(chatID int64, args string) {
	b.eachCountdown(chatID, args, (*countdown.Controller).Pause)
}

func (b *Bot) handleResume(chatID int64, args string) {
	b.eachCountdown(chatID, args, (*countdown.Controller).Resume)
}

func (b *Bot) handleClear(chatID int64, args string) {
	kinds, err := ParseFamilies(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	for _, kind := range kinds {
		if ctl, err := b.sess.Countdown(kind); err == nil {
			ctl.Clear()
		}
	}
	b.reply(chatID, "Countdown cleared.")
}

func (b *Bot) handleFeed(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseFeedArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.setCriteria(chatID, parsed.Criteria)

	if _, err := b.sess.RefreshFeed(ctx); err != nil {
		if errors.Is(err, aggregator.ErrStale) {
			// A newer /feed is already rendering.
			return
		}
		b.reply(chatID, fmt.Sprintf("Failed to load notifications: %v", err))
		return
	}
	b.sendFeedPage(ctx, chatID, parsed.Page)
}

func (b *Bot) sendFeedPage(ctx context.Context, chatID int64, page int) {
	p := b.sess.FeedPage(ctx, page, b.criteriaFor(chatID))

	msg := tgbotapi.NewMessage(chatID, FormatFeedPage(p, b.location()))
	msg.DisableWebPagePreview = true
	if kb := feedKeyboard(p.Page, p.HasMore, p.Unread); kb != nil {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send feed page", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) findItem(chatID int64, args, usage string) (model.NotificationItem, bool) {
	src, id, err := ParseItemArgs(args)
	if err != nil {
		b.reply(chatID, usage)
		return model.NotificationItem{}, false
	}
	item, ok := b.sess.Find(src, id)
	if !ok {
		b.reply(chatID, fmt.Sprintf("%s #%s not found. Use /feed to load notifications.", sourceLabel(src), id))
		return model.NotificationItem{}, false
	}
	return item, true
}

func (b *Bot) handleRead(ctx context.Context, chatID int64, args string) {
	item, ok := b.findItem(chatID, args, "Usage: /read <message|file|prediction> <id>")
	if !ok {
		return
	}
	if err := b.sess.MarkRead(ctx, item); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Marked %s #%s as read.", sourceLabel(item.Source), item.ID))
}

func (b *Bot) handleUnread(ctx context.Context, chatID int64, args string) {
	item, ok := b.findItem(chatID, args, "Usage: /unread <message|file|prediction> <id>")
	if !ok {
		return
	}
	err := b.sess.MarkUnread(ctx, item)
	switch {
	case errors.Is(err, readstate.ErrServerAuthoritative):
		b.reply(chatID, fmt.Sprintf("%s #%s was read on the server and stays read.", sourceLabel(item.Source), item.ID))
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
	default:
		b.reply(chatID, fmt.Sprintf("Marked %s #%s as unread.", sourceLabel(item.Source), item.ID))
	}
}

func (b *Bot) handleReadAll(ctx context.Context, chatID int64) {
	n, err := b.sess.MarkAllRead(ctx)
	if err != nil {
		b.log.Warn("mark all read", "error", err)
	}
	b.reply(chatID, fmt.Sprintf("Marked %d notification(s) as read.", n))
}

func (b *Bot) handleClearReads(ctx context.Context, chatID int64) {
	n, err := b.sess.ClearLocalReads(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Cleared %d local read mark(s).", n))
}

func (b *Bot) handleMute(chatID int64) {
	if err := b.sess.MuteAlerts(); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, "Reminder alerts muted. Reminders are still recorded, see /history.")
}

func (b *Bot) handleUnmute(chatID int64) {
	perm, err := b.sess.UnmuteAlerts()
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if perm != alert.PermissionGranted {
		b.reply(chatID, "No alert chat is configured, reminders stay in /history.")
		return
	}
	b.reply(chatID, "Reminder alerts unmuted.")
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64, args string) {
	limit, err := ParseLimit(args, 10, 50)
	if err != nil {
		b.reply(chatID, "Usage: /history [n]")
		return
	}
	items, err := b.sess.History(ctx, limit)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatHistory(items, b.location()))
}
