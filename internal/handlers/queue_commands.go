package handlers

import (
	"context"
	"errors"
	"strconv"

	"chanqueue-bot/internal/locales"
	"chanqueue-bot/internal/queue"
	"chanqueue-bot/internal/scheduler"
	"chanqueue-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// HandleClear empties the queue.
func (h *MessageHandler) HandleClear(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	n, err := h.queue.Clear(ctx)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	logAction(message, ActionClearQueue).Int("removed", n).Msg("queue cleared")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(h.getLocalizer(message.From), "MsgCleared", map[string]interface{}{
		"Count": n,
	}))
}

// HandleRemove deletes the post at a 1-based position.
func (h *MessageHandler) HandleRemove(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	n, err := strconv.Atoi(commandArgs(message.Text))
	if err != nil || n < 1 {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgRemoveUsage", nil, nil))
	}

	removed, err := h.queue.RemoveAt(ctx, n-1)
	switch {
	case errors.Is(err, queue.ErrIndexOutOfRange):
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgRemoveOutOfRange", map[string]interface{}{"N": n}))
	case err != nil:
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	logAction(message, ActionRemoveItem).Int("position", n).Str("item_id", removed.ID).Msg("queue item removed")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgRemoved", map[string]interface{}{"N": n}))
}

// HandleRandom shuffles the queue.
func (h *MessageHandler) HandleRandom(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	shuffled, err := h.queue.Shuffle(ctx)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	if !shuffled {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgShuffleNothing", nil, nil))
	}
	logAction(message, ActionShuffleQueue).Msg("queue shuffled")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgShuffled", nil, nil))
}

// HandlePostNow publishes the head of the queue immediately.
func (h *MessageHandler) HandlePostNow(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	item, err := h.scheduler.PublishNow(ctx)
	if err != nil {
		logAction(message, ActionPublishNow).Err(err).Msg("forced publish failed")
		return h.sendSuccess(ctx, bot, message.Chat.ID, publishFailure(localizer, err))
	}
	logAction(message, ActionPublishNow).Str("item_id", item.ID).Msg("forced publish")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgPostNowDone", nil, nil))
}

// HandlePostFile publishes the post at a 1-based position. A failed post keeps its position.
func (h *MessageHandler) HandlePostFile(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	n, err := strconv.Atoi(commandArgs(message.Text))
	if err != nil || n < 1 {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgPostFileUsage", nil, nil))
	}

	item, err := h.scheduler.PublishAt(ctx, n-1)
	switch {
	case errors.Is(err, queue.ErrIndexOutOfRange):
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgRemoveOutOfRange", map[string]interface{}{"N": n}))
	case err != nil:
		logAction(message, ActionPublishAt).Int("position", n).Err(err).Msg("publish by position failed")
		return h.sendSuccess(ctx, bot, message.Chat.ID, publishFailure(localizer, err))
	}
	logAction(message, ActionPublishAt).Int("position", n).Str("item_id", item.ID).Msg("published by position")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgPostFileDone", map[string]interface{}{"N": n}))
}

// HandlePostAll publishes the whole queue.
func (h *MessageHandler) HandlePostAll(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	total := h.queue.Len()
	n, err := h.scheduler.PublishAll(ctx)
	switch {
	case err == nil:
		logAction(message, ActionPublishAll).Int("published", n).Msg("queue published")
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgPostAllDone", map[string]interface{}{"Count": n}))
	case n > 0:
		logAction(message, ActionPublishAll).Int("published", n).Err(err).Msg("queue publish interrupted")
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgPostAllPartial", map[string]interface{}{
			"Count": n,
			"Total": total,
			"Error": escape(err.Error()),
		}))
	default:
		logAction(message, ActionPublishAll).Err(err).Msg("queue publish failed")
		return h.sendSuccess(ctx, bot, message.Chat.ID, publishFailure(localizer, err))
	}
}

// HandlePost arms a one-off direct publish: the sender's next single media goes straight to the
// channel without entering the queue.
func (h *MessageHandler) HandlePost(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	if h.settings.Snapshot().ChannelTarget == "" {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgChannelNotSet", nil, nil))
	}
	if message.From == nil {
		return nil
	}
	h.directPost.Store(message.From.ID, struct{}{})
	logAction(message, ActionArmDirectPost).Msg("direct publish armed")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgPostArmed", nil, nil))
}

// publishFailure renders the reply for a failed publish command.
func publishFailure(localizer *i18n.Localizer, err error) string {
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		return locales.GetMessage(localizer, "MsgPostNowBusy", nil, nil)
	case errors.Is(err, scheduler.ErrQueueEmpty):
		return locales.GetMessage(localizer, "MsgQueueEmpty", nil, nil)
	case errors.Is(err, scheduler.ErrNoChannel):
		return locales.GetMessage(localizer, "MsgChannelNotSet", nil, nil)
	}
	return locales.Msg(localizer, "MsgPostNowFailed", map[string]interface{}{"Error": escape(err.Error())})
}

// HandleRetryFailed moves quarantined posts back to the end of the queue.
func (h *MessageHandler) HandleRetryFailed(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	n, err := h.queue.RequeueQuarantined(ctx)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	if n == 0 {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgRetryNothing", nil, nil))
	}
	h.scheduler.Wake()
	logAction(message, ActionRetryFailed).Int("count", n).Msg("failed posts requeued")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgRetryFailed", map[string]interface{}{"Count": n}))
}
