package handlers

import (
	"context"
	"html"
	"strings"
	"time"

	"chanqueue-bot/internal/locales"
	"chanqueue-bot/internal/schedule"
	"chanqueue-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const timestampLayout = "02.01.2006 15:04"

// sendSuccess sends an HTML reply. Delivery failures are logged, not returned.
func (h *MessageHandler) sendSuccess(ctx context.Context, bot telegoapi.BotAPI, chatID int64, text string) error {
	_, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeHTML))
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
	return nil
}

// sendError tells the user something went wrong and returns the original error to the update loop.
func (h *MessageHandler) sendError(ctx context.Context, bot telegoapi.BotAPI, chatID int64, originalErr error) error {
	log.Error().Err(originalErr).Int64("chat_id", chatID).Msg("command failed")

	errMsg := locales.GetMessage(locales.Default(), "MsgInternalError", nil, nil)
	if _, sendErr := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), errMsg)); sendErr != nil {
		log.Error().Err(sendErr).Int64("chat_id", chatID).Msg("failed to send error message")
	}
	return originalErr
}

// getLocalizer picks the localizer for user, falling back to the default language.
func (h *MessageHandler) getLocalizer(user *telego.User) *i18n.Localizer {
	if user != nil && user.LanguageCode != "" {
		return locales.NewLocalizer(user.LanguageCode)
	}
	return locales.Default()
}

// logAction records an operator action.
func logAction(message telego.Message, action string) *zerolog.Event {
	ev := log.Info().Str("action", action).Int64("chat_id", message.Chat.ID)
	if message.From != nil {
		ev = ev.Int64("user_id", message.From.ID)
	}
	return ev
}

// commandArgs returns the text following the command word.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, " \n\t"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return ""
}

// commandName extracts the command from "/cmd@botname args".
func commandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name)
}

func onOff(loc *i18n.Localizer, on bool) string {
	if on {
		return locales.GetMessage(loc, "StateOn", nil, nil)
	}
	return locales.GetMessage(loc, "StateOff", nil, nil)
}

func (h *MessageHandler) formatTime(t time.Time) string {
	return t.In(h.settings.Location()).Format(timestampLayout)
}

func formatDuration(loc *i18n.Localizer, d time.Duration) string {
	return schedule.FormatDuration(d, locales.DurationUnits(loc))
}

func formatWeekdays(loc *i18n.Localizer, set *schedule.WeekdaySet) string {
	if set == nil {
		return locales.GetMessage(loc, "ValueAllDays", nil, nil)
	}
	days := set.Days()
	if len(days) == 0 {
		return locales.GetMessage(loc, "ValueNoDays", nil, nil)
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = locales.WeekdayName(loc, d)
	}
	return strings.Join(names, ", ")
}

func escape(s string) string { return html.EscapeString(s) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
