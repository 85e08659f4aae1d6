package handlers

import (
	"context"
	"strconv"
	"strings"

	"chanqueue-bot/internal/locales"
	"chanqueue-bot/internal/schedule"
	"chanqueue-bot/internal/settings"
	"chanqueue-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// HandleInterval sets the posting interval from free-form duration text.
func (h *MessageHandler) HandleInterval(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	d, ok := schedule.ParseDuration(commandArgs(message.Text))
	if !ok {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgIntervalUsage", nil, nil))
	}
	if _, err := h.settings.Update(ctx, func(s *settings.Settings) error {
		s.PostInterval = &d
		return nil
	}); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.scheduler.Wake()
	logAction(message, ActionSetInterval).Dur("interval", d).Msg("interval changed")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgIntervalSet", map[string]interface{}{
		"Interval": formatDuration(localizer, d),
	}))
}

// HandleSetTime sets the daily posting window and switches the window gate on.
func (h *MessageHandler) HandleSetTime(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	fields := strings.Fields(strings.ReplaceAll(commandArgs(message.Text), "-", " "))
	if len(fields) != 2 {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgSetTimeUsage", nil, nil))
	}
	start, err := schedule.ParseClock(fields[0])
	if err != nil {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgSetTimeUsage", nil, nil))
	}
	end, err := schedule.ParseClock(fields[1])
	if err != nil {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgSetTimeUsage", nil, nil))
	}

	if _, err := h.settings.Update(ctx, func(s *settings.Settings) error {
		s.WindowStart, s.WindowEnd = &start, &end
		s.TimeWindowEnabled = true
		return nil
	}); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.scheduler.Wake()
	w := schedule.Window{Start: start, End: end}
	logAction(message, ActionSetWindow).Str("window", w.String()).Msg("posting window changed")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgSetTimeSet", map[string]interface{}{
		"Window": w.String(),
	}))
}

// HandleDays sets the allowed weekdays (1 = Monday .. 7 = Sunday) and switches the weekday gate on.
func (h *MessageHandler) HandleDays(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	usage := locales.GetMessage(localizer, "MsgDaysUsage", nil, nil)

	fields := strings.FieldsFunc(commandArgs(message.Text), func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	if len(fields) == 0 {
		return h.sendSuccess(ctx, bot, message.Chat.ID, usage)
	}
	days := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return h.sendSuccess(ctx, bot, message.Chat.ID, usage)
		}
		days = append(days, n)
	}
	set, err := settings.ParseWeekdayNumbers(days)
	if err != nil {
		return h.sendSuccess(ctx, bot, message.Chat.ID, usage)
	}

	if _, err := h.settings.Update(ctx, func(s *settings.Settings) error {
		s.AllowedWeekdays = &set
		s.WeekdaysEnabled = true
		return nil
	}); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.scheduler.Wake()
	logAction(message, ActionSetWeekdays).Ints("days", days).Msg("weekdays changed")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgDaysSet", map[string]interface{}{
		"Days": formatWeekdays(localizer, &set),
	}))
}

// HandleStartDate postpones publishing until a future moment.
func (h *MessageHandler) HandleStartDate(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)
	at, err := settings.ParseDelayedStart(commandArgs(message.Text), h.settings.Location())
	if err != nil {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgStartDateUsage", nil, nil))
	}
	now := h.now()
	if !at.After(now) {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgStartDatePast", nil, nil))
	}

	if _, err := h.settings.Update(ctx, func(s *settings.Settings) error {
		s.DelayedStartEnabled = true
		s.DelayedStartAt = &at
		return nil
	}); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.scheduler.Wake()
	logAction(message, ActionSetDelayedStart).Time("at", at).Msg("delayed start set")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.Msg(localizer, "MsgStartDateSet", map[string]interface{}{
		"At": h.formatTime(at),
		"In": formatDuration(localizer, at.Sub(now)),
	}))
}

// HandleClearStart removes the delayed start.
func (h *MessageHandler) HandleClearStart(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if _, err := h.settings.Update(ctx, func(s *settings.Settings) error {
		s.DelayedStartEnabled = false
		s.DelayedStartAt = nil
		return nil
	}); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.scheduler.Wake()
	logAction(message, ActionClearStart).Msg("delayed start cleared")
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(h.getLocalizer(message.From), "MsgStartDateCleared", nil, nil))
}

// toggle flips one boolean setting and replies with the matching on/off message.
func (h *MessageHandler) toggle(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, name, onKey, offKey string, field func(*settings.Settings) *bool) error {
	var enabled bool
	if _, err := h.settings.Update(ctx, func(s *settings.Settings) error {
		p := field(s)
		*p = !*p
		enabled = *p
		return nil
	}); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.scheduler.Wake()
	logAction(message, ActionToggle).Str("setting", name).Bool("enabled", enabled).Msg("setting toggled")

	key := offKey
	if enabled {
		key = onKey
	}
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(h.getLocalizer(message.From), key, nil, nil))
}

// HandleTogglePosting pauses or resumes automatic publishing.
func (h *MessageHandler) HandleTogglePosting(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.toggle(ctx, bot, message, "posting", "MsgPostingOn", "MsgPostingOff",
		func(s *settings.Settings) *bool { return &s.PostingEnabled })
}

// HandleToggleWindow switches the posting window gate.
func (h *MessageHandler) HandleToggleWindow(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.toggle(ctx, bot, message, "time_window", "MsgWindowOn", "MsgWindowOff",
		func(s *settings.Settings) *bool { return &s.TimeWindowEnabled })
}

// HandleToggleDays switches the weekday gate.
func (h *MessageHandler) HandleToggleDays(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.toggle(ctx, bot, message, "weekdays", "MsgDaysOn", "MsgDaysOff",
		func(s *settings.Settings) *bool { return &s.WeekdaysEnabled })
}

// HandleToggleExact switches between exact slots and the plain interval.
func (h *MessageHandler) HandleToggleExact(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.toggle(ctx, bot, message, "exact_timing", "MsgExactOn", "MsgExactOff",
		func(s *settings.Settings) *bool { return &s.ExactTimingEnabled })
}

// HandleToggleNotify switches submitter notifications.
func (h *MessageHandler) HandleToggleNotify(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.toggle(ctx, bot, message, "notifications", "MsgNotifyOn", "MsgNotifyOff",
		func(s *settings.Settings) *bool { return &s.NotificationsEnabled })
}
