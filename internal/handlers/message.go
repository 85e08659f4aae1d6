package handlers

import (
	"context"
	"fmt"
	"strings"

	"chanqueue-bot/internal/locales"
	"chanqueue-bot/internal/mediagroups"
	"chanqueue-bot/internal/queue"
	"chanqueue-bot/internal/scheduler"
	"chanqueue-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog/log"
)

// DetectMedia extracts the publishable attachment of a message. Photos use the largest size;
// animations and GIF documents become gifs.
func DetectMedia(message telego.Message) (queue.Attachment, bool) {
	switch {
	case len(message.Photo) > 0:
		best := message.Photo[0]
		for _, p := range message.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return queue.Attachment{FileID: best.FileID, Kind: queue.KindPhoto}, true
	case message.Animation != nil:
		return queue.Attachment{FileID: message.Animation.FileID, Kind: queue.KindGIF}, true
	case message.Video != nil:
		return queue.Attachment{FileID: message.Video.FileID, Kind: queue.KindVideo}, true
	case message.Document != nil:
		kind := queue.KindDocument
		if strings.EqualFold(message.Document.MimeType, "image/gif") {
			kind = queue.KindGIF
		}
		return queue.Attachment{FileID: message.Document.FileID, Kind: kind}, true
	}
	return queue.Attachment{}, false
}

// HandleMedia queues a media message. Album parts are buffered until the album is complete.
// A single media sent after /post is published directly instead.
func (h *MessageHandler) HandleMedia(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	attachment, ok := DetectMedia(message)
	if !ok {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(h.getLocalizer(message.From), "MsgUnsupportedMedia", nil, nil))
	}
	var senderID int64
	if message.From != nil {
		senderID = message.From.ID
	}
	caption := escape(strings.TrimSpace(message.Caption))

	if message.MediaGroupID != "" {
		h.mediaGroups.Add(message.MediaGroupID, mediagroups.Part{
			MessageID:  message.MessageID,
			SenderID:   senderID,
			ChatID:     message.Chat.ID,
			Attachment: attachment,
			Caption:    caption,
		})
		return nil
	}

	item := queue.NewSingle(attachment, caption, senderID)
	if _, armed := h.directPost.LoadAndDelete(senderID); armed {
		return h.publishDirect(ctx, bot, message, item)
	}
	res, err := h.scheduler.Submit(ctx, item)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("queue media: %w", err))
	}
	logAction(message, ActionSubmitMedia).Str("kind", string(attachment.Kind)).Int("position", res.Position+1).Msg("media queued")
	return h.sendSuccess(ctx, bot, message.Chat.ID, h.submitReply(h.getLocalizer(message.From), res))
}

func (h *MessageHandler) publishDirect(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, item queue.Item) error {
	localizer := h.getLocalizer(message.From)
	if err := h.scheduler.PublishDirect(ctx, item); err != nil {
		logAction(message, ActionPublishDirect).Err(err).Msg("direct publish failed")
		return h.sendSuccess(ctx, bot, message.Chat.ID, publishFailure(localizer, err))
	}
	logAction(message, ActionPublishDirect).Str("kind", item.TypeName()).Msg("media published directly")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgPublishedDirect", nil, nil))
}

// ProcessMediaGroup folds a completed album into queue items and reports the outcome to the sender.
func (h *MessageHandler) ProcessMediaGroup(ctx context.Context, groupID string, parts []mediagroups.Part) error {
	if len(parts) == 0 {
		return nil
	}
	chatID := parts[0].ChatID
	items, err := mediagroups.Fold(parts, h.settings.Snapshot().Signature())
	if err != nil {
		return h.sendError(ctx, h.bot, chatID, fmt.Errorf("fold media group %s: %w", groupID, err))
	}
	res, err := h.scheduler.Submit(ctx, items...)
	if err != nil {
		return h.sendError(ctx, h.bot, chatID, fmt.Errorf("queue media group %s: %w", groupID, err))
	}
	log.Info().
		Str("action", ActionSubmitMediaGroup).
		Str("group_id", groupID).
		Int("parts", len(parts)).
		Int("items", len(items)).
		Int("position", res.Position+1).
		Msg("media group queued")
	return h.sendSuccess(ctx, h.bot, chatID, h.submitReply(locales.Default(), res))
}

// submitReply tells the submitter where the new posts landed and when they are expected.
func (h *MessageHandler) submitReply(localizer *i18n.Localizer, res scheduler.SubmitResult) string {
	var b strings.Builder
	switch {
	case res.Published:
		b.WriteString(locales.GetMessage(localizer, "MsgPublishedInstantly", nil, nil))
	case res.PublishErr != nil:
		b.WriteString(locales.Msg(localizer, "MsgPostNowFailed", map[string]interface{}{"Error": escape(res.PublishErr.Error())}))
	default:
		first, last, ok := h.scheduler.Forecast(res.Position, res.Count)
		switch {
		case !ok:
			b.WriteString(locales.Msg(localizer, "MsgQueuedUnscheduled", map[string]interface{}{"Position": res.Position + 1}))
		case res.Count > 1:
			b.WriteString(locales.Msg(localizer, "MsgQueuedBatch", map[string]interface{}{
				"Count":    res.Count,
				"First":    res.Position + 1,
				"Last":     res.Position + res.Count,
				"FirstETA": h.formatTime(first),
				"LastETA":  h.formatTime(last),
			}))
		default:
			b.WriteString(locales.Msg(localizer, "MsgQueued", map[string]interface{}{
				"Position": res.Position + 1,
				"ETA":      h.formatTime(first),
			}))
		}
	}
	if res.InFlight && !res.Published {
		b.WriteString("\n")
		b.WriteString(locales.GetMessage(localizer, "MsgPublishInFlight", nil, nil))
	}
	return b.String()
}
