package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdFeed    = "feed"
	cmdRead    = "read"
	cmdReadAll = "readall"
	cbMore     = "more"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, arg, ok := strings.Cut(data, ":")
	if !ok {
		return
	}

	attrs := []any{"action", action, "arg", arg, "chat_id", chatID}
	if cb.From != nil {
		attrs = append(attrs, "user_id", cb.From.ID, "username", cb.From.UserName)
	}
	b.log.Info("callback", attrs...)

	switch action {
	case cbMore:
		page, err := strconv.Atoi(arg)
		if err != nil || page < 1 || page > MaxFeedPage {
			return
		}
		b.sendFeedPage(ctx, chatID, page)
	case cmdRead:
		// arg is "<kind>:<id>"
		kind, id, ok := strings.Cut(arg, ":")
		if !ok {
			return
		}
		b.handleRead(ctx, chatID, kind+" "+id)
	case cmdReadAll:
		b.handleReadAll(ctx, chatID)
	}
}

// feedKeyboard offers paging and bulk actions under a feed page.
func feedKeyboard(page int, hasMore bool, unread int) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if hasMore {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Show more", fmt.Sprintf("%s:%d", cbMore, page+1)))
	}
	if unread > 0 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Mark all read", cmdReadAll+":0"))
	}
	if len(row) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}
