package handlers

import (
	"context"

	"chanqueue-bot/internal/locales"
	"chanqueue-bot/internal/publisher"
	"chanqueue-bot/internal/settings"
	"chanqueue-bot/pkg/telegoapi"

	"github.com/dustin/go-humanize"
	"github.com/mymmrac/telego"
)

// HandleSetChannel switches the target channel after checking the bot can reach it.
func (h *MessageHandler) HandleSetChannel(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	target, err := publisher.ParseTarget(commandArgs(message.Text))
	if err != nil {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgChannelUsage", nil, nil))
	}

	info, err := h.publisher.ChannelInfo(ctx, target.String())
	if err != nil {
		logAction(message, ActionSetChannel).Err(err).Str("target", target.String()).Msg("channel unreachable")
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgChannelUnreachable", map[string]interface{}{
			"Target": escape(target.String()),
			"Error":  escape(err.Error()),
		}))
	}

	if _, err := h.settings.Update(ctx, func(s *settings.Settings) error {
		s.ChannelTarget = target.String()
		return nil
	}); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.scheduler.Wake()
	logAction(message, ActionSetChannel).Str("target", target.String()).Int64("channel_id", info.ID).Msg("channel changed")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgChannelSet", map[string]interface{}{
		"Title": escape(info.Title),
	}))
}

// HandleChannel shows what the bot knows about the target channel.
func (h *MessageHandler) HandleChannel(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	logAction(message, ActionCommandChannel).Send()
	localizer := h.getLocalizer(message.From)
	target := h.settings.Snapshot().ChannelTarget
	if target == "" {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgChannelNotSet", nil, nil))
	}

	info, err := h.publisher.ChannelInfo(ctx, target)
	if err != nil {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgChannelUnreachable", map[string]interface{}{
			"Target": escape(target),
			"Error":  escape(err.Error()),
		}))
	}
	username := locales.GetMessage(localizer, "ValueNotSet", nil, nil)
	if info.Username != "" {
		username = "@" + escape(info.Username)
	}
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgChannelInfo", map[string]interface{}{
		"Title":    escape(info.Title),
		"ID":       info.ID,
		"Username": username,
		"Members":  humanize.Comma(int64(info.Members)),
	}))
}
