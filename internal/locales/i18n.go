// Package locales loads the embedded message catalogs and localizes user-facing text.
package locales

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"chanqueue-bot/internal/schedule"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

//go:embed *.json
var localeFS embed.FS

var (
	mu              sync.RWMutex
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
)

// Init initializes the i18n bundle by loading the embedded catalogs and setting the default language.
func Init(defaultLangCode string) error {
	tag, err := language.Parse(defaultLangCode)
	if err != nil {
		log.Warn().Err(err).Str("code", defaultLangCode).Msg("invalid default language, falling back to English")
		tag = language.English
	}

	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read embedded locales: %w", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := b.LoadMessageFileFS(localeFS, entry.Name()); err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("failed to load message file")
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("no message files loaded")
	}

	mu.Lock()
	bundle, defaultLanguage = b, tag
	mu.Unlock()
	log.Debug().Int("files", loaded).Str("default", tag.String()).Msg("i18n bundle initialized")
	return nil
}

// GetDefaultLanguageTag returns the configured default language tag.
func GetDefaultLanguageTag() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLanguage
}

// NewLocalizer creates a localizer for the given language preferences, falling back to the default
// language and then English.
func NewLocalizer(langPrefs ...string) *i18n.Localizer {
	mu.RLock()
	b, def := bundle, defaultLanguage
	mu.RUnlock()
	if b == nil {
		panic("locales: NewLocalizer called before Init")
	}
	prefs := append(append([]string(nil), langPrefs...), def.String())
	return i18n.NewLocalizer(b, prefs...)
}

// Default returns a localizer for the default language.
func Default() *i18n.Localizer {
	return NewLocalizer()
}

// GetMessage retrieves and formats a message by its ID. On failure the message ID itself is returned.
func GetMessage(localizer *i18n.Localizer, msgID string, templateData map[string]interface{}, pluralCount *int) string {
	cfg := &i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: templateData,
	}
	if pluralCount != nil {
		cfg.PluralCount = *pluralCount
	}
	msg, err := localizer.Localize(cfg)
	if err != nil {
		log.Error().Err(err).Str("message_id", msgID).Msg("failed to localize message")
		return msgID
	}
	return msg
}

// Msg is GetMessage without pluralization.
func Msg(localizer *i18n.Localizer, msgID string, templateData map[string]interface{}) string {
	return GetMessage(localizer, msgID, templateData, nil)
}

// DurationUnits returns the localized unit suffixes used by schedule.FormatDuration.
func DurationUnits(localizer *i18n.Localizer) schedule.Units {
	return schedule.Units{
		Day:    Msg(localizer, "UnitDay", nil),
		Hour:   Msg(localizer, "UnitHour", nil),
		Minute: Msg(localizer, "UnitMinute", nil),
		Second: Msg(localizer, "UnitSecond", nil),
	}
}

// WeekdayName returns the localized short name of a weekday.
func WeekdayName(localizer *i18n.Localizer, d time.Weekday) string {
	return Msg(localizer, "Day"+d.String()[:3], nil)
}
