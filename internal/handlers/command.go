package handlers

import (
	"context"
	"fmt"
	"strings"

	"chanqueue-bot/internal/locales"
	"chanqueue-bot/internal/schedule"
	"chanqueue-bot/internal/scheduler"
	"chanqueue-bot/pkg/telegoapi"

	"github.com/dustin/go-humanize"
	"github.com/mymmrac/telego"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog/log"
)

// queueListLimit caps the number of entries printed by /queue.
const queueListLimit = 10

// HandleStart registers the command menu and greets the operator.
func (h *MessageHandler) HandleStart(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if err := h.setupCommands(ctx, bot); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("failed to set up commands: %w", err))
	}
	logAction(message, ActionCommandStart).Msg("operator started the bot")

	localizer := h.getLocalizer(message.From)
	interval := locales.GetMessage(localizer, "ValueNotSet", nil, nil)
	if d := h.settings.Snapshot().Interval(); d > 0 {
		interval = formatDuration(localizer, d)
	}
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgStart", map[string]interface{}{
		"Queue":    h.queue.Len(),
		"Interval": interval,
	}))
}

// HandleHelp lists the commands.
func (h *MessageHandler) HandleHelp(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	logAction(message, ActionCommandHelp).Send()
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(h.getLocalizer(message.From), "MsgHelp", nil, nil))
}

// HandleStatus reports every setting together with the queue and scheduler state.
func (h *MessageHandler) HandleStatus(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	logAction(message, ActionCommandStatus).Send()
	localizer := h.getLocalizer(message.From)
	snap := h.settings.Snapshot()
	notSet := locales.GetMessage(localizer, "ValueNotSet", nil, nil)

	channel, interval, window, signature := notSet, notSet, notSet, notSet
	if snap.ChannelTarget != "" {
		channel = escape(snap.ChannelTarget)
	}
	if d := snap.Interval(); d > 0 {
		interval = formatDuration(localizer, d)
	}
	if w, ok := snap.Window(); ok {
		window = w.String()
	}
	if sig := snap.Signature(); sig != "" {
		signature = sig
	}
	lastPost := locales.GetMessage(localizer, "ValueNever", nil, nil)
	if !snap.LastPublishAt.IsZero() {
		lastPost = fmt.Sprintf("%s (%s)", h.formatTime(snap.LastPublishAt), humanize.Time(snap.LastPublishAt))
	}
	nextPost := notSet
	if at, ok := h.scheduler.NextPublish(); ok {
		nextPost = h.formatTime(at)
	}

	var b strings.Builder
	b.WriteString(locales.Msg(localizer, "MsgStatus", map[string]interface{}{
		"Posting":     onOff(localizer, snap.PostingEnabled),
		"State":       stateName(localizer, h.scheduler.State()),
		"Channel":     channel,
		"Interval":    interval,
		"Exact":       onOff(localizer, snap.ExactTimingEnabled),
		"Window":      window,
		"WindowState": onOff(localizer, snap.TimeWindowEnabled),
		"Days":        formatWeekdays(localizer, snap.AllowedWeekdays),
		"DaysState":   onOff(localizer, snap.WeekdaysEnabled),
		"Notify":      onOff(localizer, snap.NotificationsEnabled),
		"Signature":   signature,
		"Queue":       h.queue.Len(),
		"Failed":      len(h.queue.Quarantined()),
		"LastPost":    lastPost,
		"NextPost":    nextPost,
	}))
	if now := h.now(); snap.DelayedStartPending(now) {
		b.WriteString("\n")
		b.WriteString(locales.Msg(localizer, "MsgStatusDelayed", map[string]interface{}{
			"At": h.formatTime(*snap.DelayedStartAt),
			"In": formatDuration(localizer, snap.DelayedStartAt.Sub(now)),
		}))
	}
	return h.sendSuccess(ctx, bot, message.Chat.ID, b.String())
}

// HandleQueue shows queue statistics and the first entries.
func (h *MessageHandler) HandleQueue(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	logAction(message, ActionCommandQueue).Send()
	localizer := h.getLocalizer(message.From)
	items := h.queue.Items()
	if len(items) == 0 {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgQueueEmpty", nil, nil))
	}

	st := h.queue.Stats()
	var b strings.Builder
	b.WriteString(locales.Msg(localizer, "MsgQueueStats", map[string]interface{}{
		"Posts":     st.Posts,
		"Media":     st.Media,
		"Photos":    st.Photos,
		"Videos":    st.Videos,
		"GIFs":      st.GIFs,
		"Documents": st.Documents,
		"Groups":    st.Groups,
	}))
	b.WriteString("\n")
	for i, it := range items {
		if i == queueListLimit {
			b.WriteString("\n…")
			break
		}
		b.WriteString("\n")
		b.WriteString(locales.Msg(localizer, "MsgQueueLine", map[string]interface{}{
			"N":       i + 1,
			"Type":    it.TypeName(),
			"Caption": escape(truncate(it.Caption(), 40)),
		}))
	}
	return h.sendSuccess(ctx, bot, message.Chat.ID, b.String())
}

// HandleSchedule shows today's slots (or the plain interval) and when the queue will drain.
func (h *MessageHandler) HandleSchedule(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	logAction(message, ActionCommandSchedule).Send()
	localizer := h.getLocalizer(message.From)
	snap := h.settings.Snapshot()
	if snap.Interval() <= 0 {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgScheduleNoInterval", nil, nil))
	}

	var b strings.Builder
	if snap.ExactTimingEnabled {
		slots := h.settings.PolicyFor(snap).DailySlots()
		names := make([]string, len(slots))
		for i, c := range slots {
			names[i] = c.String()
		}
		b.WriteString(locales.Msg(localizer, "MsgScheduleSlots", map[string]interface{}{
			"Count": len(slots),
			"Slots": strings.Join(names, ", "),
		}))
	} else {
		b.WriteString(locales.Msg(localizer, "MsgScheduleInterval", map[string]interface{}{
			"Interval": formatDuration(localizer, snap.Interval()),
		}))
	}

	if n := h.queue.Len(); n > 0 {
		if first, last, ok := h.scheduler.Forecast(0, n); ok {
			b.WriteString("\n\n")
			b.WriteString(locales.Msg(localizer, "MsgScheduleForecast", map[string]interface{}{
				"First": h.formatTime(first),
				"Last":  h.formatTime(last),
			}))
		}
	}
	return h.sendSuccess(ctx, bot, message.Chat.ID, b.String())
}

// HandleCheckTime shows the current local time and whether the weekday and window gates allow
// publishing right now.
func (h *MessageHandler) HandleCheckTime(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	logAction(message, ActionCommandCheckTime).Send()
	localizer := h.getLocalizer(message.From)
	snap := h.settings.Snapshot()
	p := h.settings.PolicyFor(snap)
	now := h.now().In(h.settings.Location())

	window := locales.GetMessage(localizer, "ValueNotSet", nil, nil)
	if w, ok := snap.Window(); ok {
		window = w.String()
	}
	verdict := locales.GetMessage(localizer, "CheckAllowed", nil, nil)
	if allowed, reason := p.Allowed(now); !allowed {
		key := "CheckBlockedWindow"
		if reason == schedule.ReasonWeekday {
			key = "CheckBlockedWeekday"
		}
		verdict = locales.Msg(localizer, key, map[string]interface{}{"Next": h.formatTime(p.NextAllowed(now))})
	}

	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgCheckTime", map[string]interface{}{
		"Now":         now.Format("02.01.2006 15:04:05"),
		"Zone":        now.Location().String(),
		"Weekday":     locales.WeekdayName(localizer, now.Weekday()),
		"Window":      window,
		"WindowState": onOff(localizer, snap.TimeWindowEnabled),
		"Days":        formatWeekdays(localizer, snap.AllowedWeekdays),
		"DaysState":   onOff(localizer, snap.WeekdaysEnabled),
		"Verdict":     verdict,
	}))
}

func stateName(localizer *i18n.Localizer, st scheduler.State) string {
	switch st {
	case scheduler.WaitingForSlot:
		return locales.GetMessage(localizer, "SchedulerWaiting", nil, nil)
	case scheduler.Publishing:
		return locales.GetMessage(localizer, "SchedulerPublishing", nil, nil)
	}
	return locales.GetMessage(localizer, "SchedulerIdle", nil, nil)
}

// setupCommands publishes the command menu with descriptions in the default language.
func (h *MessageHandler) setupCommands(ctx context.Context, bot telegoapi.BotAPI) error {
	if len(h.commands) == 0 {
		return nil
	}
	localizer := locales.Default()
	commands := make([]telego.BotCommand, 0, len(h.commands))
	for _, cmd := range h.commands {
		commands = append(commands, telego.BotCommand{
			Command:     cmd.Command,
			Description: locales.GetMessage(localizer, cmd.Description, nil, nil),
		})
	}
	if err := bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	log.Info().Int("count", len(commands)).Msg("bot commands registered")
	return nil
}

// HandleCommand dispatches a command message to its handler.
func (h *MessageHandler) HandleCommand(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	handler := h.GetCommandHandler(commandName(message.Text))
	if handler == nil {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(h.getLocalizer(message.From), "MsgUnknownCommand", nil, nil))
	}
	return handler(ctx, bot, message)
}

// HandleDenied answers a user who is not on the allow-list.
func (h *MessageHandler) HandleDenied(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	ev := log.Warn().Int64("chat_id", message.Chat.ID)
	if message.From != nil {
		ev = ev.Int64("user_id", message.From.ID).Str("username", message.From.Username)
	}
	ev.Msg("access denied")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(h.getLocalizer(message.From), "MsgAccessDenied", nil, nil))
}

// IsCommand reports whether text starts with a bot command.
func IsCommand(text string) bool {
	return commandName(text) != ""
}
