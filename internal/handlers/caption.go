package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"chanqueue-bot/internal/locales"
	"chanqueue-bot/internal/queue"
	"chanqueue-bot/internal/settings"
	"chanqueue-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// HandleTitle sets the default signature and applies it to every queued post.
// "label # url" is expanded into a link.
func (h *MessageHandler) HandleTitle(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	args := commandArgs(message.Text)
	if args == "" {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgTitleUsage", nil, nil))
	}

	sig := settings.ParseSignature(args)
	if _, err := h.settings.Update(ctx, func(s *settings.Settings) error {
		s.DefaultSignature = &sig
		return nil
	}); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	n, err := h.queue.SetCaption(ctx, sig)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}

	logAction(message, ActionSetSignature).Int("updated", n).Msg("signature changed")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgTitleSet", map[string]interface{}{
		"Signature": sig,
		"Count":     n,
	}))
}

// HandleSetTitle replaces the caption of one queued post: /settitle N text.
func (h *MessageHandler) HandleSetTitle(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	usage := locales.GetMessage(localizer, "MsgSetTitleUsage", nil, nil)

	fields := strings.SplitN(commandArgs(message.Text), " ", 2)
	if len(fields) != 2 || strings.TrimSpace(fields[1]) == "" {
		return h.sendSuccess(ctx, bot, message.Chat.ID, usage)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return h.sendSuccess(ctx, bot, message.Chat.ID, usage)
	}

	caption := settings.ParseSignature(strings.TrimSpace(fields[1]))
	err = h.queue.SetCaptionAt(ctx, n-1, caption)
	switch {
	case errors.Is(err, queue.ErrIndexOutOfRange):
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgRemoveOutOfRange", map[string]interface{}{"N": n}))
	case err != nil:
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	logAction(message, ActionSetItemCaption).Int("position", n).Msg("post caption changed")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgSetTitleDone", map[string]interface{}{
		"N":       n,
		"Caption": caption,
	}))
}
