package locales

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalizeWithFallback(t *testing.T) {
	require.NoError(t, Init("ru"))

	ru := Default()
	assert.Equal(t, "Очередь пуста.", Msg(ru, "MsgQueueEmpty", nil))
	assert.Equal(t, "The queue is empty.", Msg(NewLocalizer("en"), "MsgQueueEmpty", nil))

	en := NewLocalizer("en")
	assert.Equal(t, "Removed post number 3.", Msg(en, "MsgRemoved", map[string]interface{}{"N": 3}))
	assert.Equal(t, "NoSuchMessage", Msg(en, "NoSuchMessage", nil))
}

func TestDurationUnits(t *testing.T) {
	require.NoError(t, Init("en"))
	units := DurationUnits(Default())
	assert.Equal(t, "h", units.Hour)
	assert.Equal(t, "Mon", WeekdayName(Default(), time.Monday))

	ru := DurationUnits(NewLocalizer("ru"))
	assert.Equal(t, "ч", ru.Hour)
}

func TestInitFallsBackOnBadLanguage(t *testing.T) {
	require.NoError(t, Init("???"))
	assert.Equal(t, "en", GetDefaultLanguageTag().String())
}
