package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chanqueue-bot/internal/auth"
	"chanqueue-bot/internal/locales"
	"chanqueue-bot/internal/mediagroups"
	"chanqueue-bot/internal/publisher"
	"chanqueue-bot/internal/queue"
	"chanqueue-bot/internal/schedule"
	"chanqueue-bot/internal/scheduler"
	"chanqueue-bot/internal/settings"
	"chanqueue-bot/internal/storage"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

// MockBot is a mock implementing the telegoapi.BotAPI interface.
type MockBot struct {
	mock.Mock
}

func (m *MockBot) GetMe(ctx context.Context) (*telego.User, error) {
	args := m.Called(ctx)
	if user, ok := args.Get(0).(*telego.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	return nil, args.Error(1)
}

func (m *MockBot) SendVideo(ctx context.Context, params *telego.SendVideoParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	return nil, args.Error(1)
}

func (m *MockBot) SendAnimation(ctx context.Context, params *telego.SendAnimationParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	return nil, args.Error(1)
}

func (m *MockBot) SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	return nil, args.Error(1)
}

func (m *MockBot) SendMediaGroup(ctx context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error) {
	args := m.Called(ctx, params)
	return nil, args.Error(1)
}

func (m *MockBot) GetChat(ctx context.Context, params *telego.GetChatParams) (*telego.ChatFullInfo, error) {
	args := m.Called(ctx, params)
	if chat, ok := args.Get(0).(*telego.ChatFullInfo); ok {
		return chat, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) GetChatMemberCount(ctx context.Context, params *telego.GetChatMemberCountParams) (*int, error) {
	args := m.Called(ctx, params)
	if n, ok := args.Get(0).(*int); ok {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

// replies returns the texts of every SendMessage call.
func (m *MockBot) replies() []string {
	var out []string
	for _, call := range m.Calls {
		if call.Method != "SendMessage" {
			continue
		}
		out = append(out, call.Arguments.Get(1).(*telego.SendMessageParams).Text)
	}
	return out
}

func (m *MockBot) lastReply(t *testing.T) string {
	t.Helper()
	r := m.replies()
	require.NotEmpty(t, r, "no reply sent")
	return r[len(r)-1]
}

type fakeScheduler struct {
	queue *queue.Store

	mu         sync.Mutex
	submitted  [][]queue.Item
	publishErr error
	result     scheduler.SubmitResult
	forecast   time.Time
	forecastOK bool
	wakes      int

	publishedAt []int
	drained     int
	direct      []queue.Item
}

func (f *fakeScheduler) Submit(ctx context.Context, items ...queue.Item) (scheduler.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, items)
	pos, err := f.queue.Append(ctx, items...)
	res := f.result
	res.Position, res.Count = pos, len(items)
	return res, err
}

func (f *fakeScheduler) PublishNow(context.Context) (queue.Item, error) {
	return queue.Item{ID: "head"}, f.publishErr
}

func (f *fakeScheduler) PublishAt(_ context.Context, index int) (queue.Item, error) {
	if f.publishErr != nil {
		return queue.Item{}, f.publishErr
	}
	item, ok := f.queue.At(index)
	if !ok {
		return queue.Item{}, queue.ErrIndexOutOfRange
	}
	f.publishedAt = append(f.publishedAt, index)
	return item, nil
}

func (f *fakeScheduler) PublishAll(context.Context) (int, error) {
	return f.drained, f.publishErr
}

func (f *fakeScheduler) PublishDirect(_ context.Context, item queue.Item) error {
	f.direct = append(f.direct, item)
	return f.publishErr
}

func (f *fakeScheduler) Forecast(pos, count int) (time.Time, time.Time, bool) {
	first := f.forecast.Add(time.Duration(pos) * time.Hour)
	return first, first.Add(time.Duration(count-1) * time.Hour), f.forecastOK
}

func (f *fakeScheduler) NextPublish() (time.Time, bool) { return f.forecast, f.forecastOK }
func (f *fakeScheduler) State() scheduler.State        { return scheduler.Idle }
func (f *fakeScheduler) Wake()                         { f.wakes++ }

type fakeChannel struct {
	publisher.ChannelPublisher
	info publisher.ChannelInfo
	err  error
}

func (f *fakeChannel) ChannelInfo(context.Context, string) (publisher.ChannelInfo, error) {
	return f.info, f.err
}

type fakeCollector struct {
	parts map[string][]mediagroups.Part
}

func (f *fakeCollector) Add(groupID string, part mediagroups.Part) {
	if f.parts == nil {
		f.parts = make(map[string][]mediagroups.Part)
	}
	f.parts[groupID] = append(f.parts[groupID], part)
}

func (f *fakeCollector) Shutdown(context.Context) int { return len(f.parts) }

// --- Fixture ---

const operatorID int64 = 42

var monday10 = time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	h         *MessageHandler
	bot       *MockBot
	queue     *queue.Store
	settings  *settings.Manager
	scheduler *fakeScheduler
	channel   *fakeChannel
	collector *fakeCollector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, locales.Init("en"))

	bot := &MockBot{}
	bot.On("SendMessage", mock.Anything, mock.Anything).Return(&telego.Message{}, nil)
	bot.On("SetMyCommands", mock.Anything, mock.Anything).Return(nil)

	q := queue.NewStore(storage.NewMemory())
	f := &fixture{
		bot:       bot,
		queue:     q,
		settings:  settings.NewManager(storage.NewMemory(), time.UTC, time.Minute, settings.Defaults()),
		scheduler: &fakeScheduler{queue: q, forecast: monday10.Add(time.Hour), forecastOK: true},
		channel:   &fakeChannel{info: publisher.ChannelInfo{ID: -100123, Title: "Memes", Username: "memes", Members: 12345}},
		collector: &fakeCollector{},
	}
	h, err := NewMessageHandler(Deps{
		Bot:       bot,
		Queue:     f.queue,
		Settings:  f.settings,
		Scheduler: f.scheduler,
		Publisher: f.channel,
		AllowList: auth.NewAllowList(operatorID),
	})
	require.NoError(t, err)
	h.mediaGroups = f.collector
	h.now = func() time.Time { return monday10 }
	f.h = h
	return f
}

func textMessage(text string) telego.Message {
	return telego.Message{
		MessageID: 1,
		Text:      text,
		Chat:      telego.Chat{ID: operatorID},
		From:      &telego.User{ID: operatorID, LanguageCode: "en"},
	}
}

func photoMessage(fileID, caption string) telego.Message {
	msg := textMessage("")
	msg.Photo = []telego.PhotoSize{{FileID: fileID, Width: 1280, Height: 720}}
	msg.Caption = caption
	return msg
}

func (f *fixture) command(t *testing.T, text string) string {
	t.Helper()
	require.NoError(t, f.h.HandleCommand(context.Background(), f.bot, textMessage(text)))
	return f.bot.lastReply(t)
}

// --- Tests ---

func TestNewMessageHandlerValidatesDeps(t *testing.T) {
	_, err := NewMessageHandler(Deps{})
	assert.Error(t, err)
}

func TestEveryCommandIsRegistered(t *testing.T) {
	f := newFixture(t)
	names := []string{
		"start", "help", "status", "schedule", "queue", "interval", "settime", "days", "startdate",
		"clearstart", "toggle", "toggletime", "toggledays", "toggleexact", "togglenotify",
		"setchannel", "channel", "title", "clear", "remove", "random", "postnow", "retryfailed",
		"checktime", "settitle", "postfile", "postall", "post",
	}
	for _, name := range names {
		assert.NotNil(t, f.h.GetCommandHandler(name), name)
	}
	assert.Len(t, f.h.Commands(), len(names))
	assert.Nil(t, f.h.GetCommandHandler("suggest"))
}

func TestCommandName(t *testing.T) {
	tests := map[string]string{
		"/start":               "start",
		"/Interval 2h":         "interval",
		"/queue@chanqueue_bot": "queue",
		"hello":                "",
		"":                     "",
	}
	for text, want := range tests {
		assert.Equal(t, want, commandName(text), text)
	}
	assert.Equal(t, "2h 30m", commandArgs("/interval   2h 30m "))
	assert.Equal(t, "", commandArgs("/clear"))
}

func TestHandleCommandUnknown(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Unknown command. Send /help for the list of commands.", f.command(t, "/nope"))
}

func TestHandleStartRegistersMenu(t *testing.T) {
	f := newFixture(t)
	reply := f.command(t, "/start")
	assert.Contains(t, reply, "Queue: 0 post(s)")
	assert.Contains(t, reply, "Interval: not set")

	f.bot.AssertCalled(t, "SetMyCommands", mock.Anything, mock.MatchedBy(func(p *telego.SetMyCommandsParams) bool {
		return len(p.Commands) == 28 && p.Commands[0].Command == "start" && p.Commands[0].Description == "Start the bot"
	}))
}

func TestHandleDenied(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.h.IsAllowed(&telego.User{ID: 7}))
	assert.True(t, f.h.IsAllowed(&telego.User{ID: operatorID}))
	assert.False(t, f.h.IsAllowed(nil))

	require.NoError(t, f.h.HandleDenied(context.Background(), f.bot, textMessage("/start")))
	assert.Equal(t, "Sorry, this bot is private.", f.bot.lastReply(t))
}

func TestDetectMedia(t *testing.T) {
	tests := []struct {
		name    string
		message telego.Message
		want    queue.Attachment
		ok      bool
	}{
		{
			name: "largest photo",
			message: telego.Message{Photo: []telego.PhotoSize{
				{FileID: "small", Width: 90, Height: 90},
				{FileID: "large", Width: 1280, Height: 1280},
				{FileID: "medium", Width: 320, Height: 320},
			}},
			want: queue.Attachment{FileID: "large", Kind: queue.KindPhoto},
			ok:   true,
		},
		{
			name: "animation wins over its document",
			message: telego.Message{
				Animation: &telego.Animation{FileID: "anim"},
				Document:  &telego.Document{FileID: "anim", MimeType: "video/mp4"},
			},
			want: queue.Attachment{FileID: "anim", Kind: queue.KindGIF},
			ok:   true,
		},
		{
			name:    "video",
			message: telego.Message{Video: &telego.Video{FileID: "vid"}},
			want:    queue.Attachment{FileID: "vid", Kind: queue.KindVideo},
			ok:      true,
		},
		{
			name:    "gif document",
			message: telego.Message{Document: &telego.Document{FileID: "gif", MimeType: "image/gif"}},
			want:    queue.Attachment{FileID: "gif", Kind: queue.KindGIF},
			ok:      true,
		},
		{
			name:    "plain document",
			message: telego.Message{Document: &telego.Document{FileID: "pdf", MimeType: "application/pdf"}},
			want:    queue.Attachment{FileID: "pdf", Kind: queue.KindDocument},
			ok:      true,
		},
		{
			name:    "text only",
			message: telego.Message{Text: "hi"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectMedia(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleMediaQueuesSinglePost(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.h.HandleMedia(context.Background(), f.bot, photoMessage("p1", "fish & chips")))

	require.Equal(t, 1, f.queue.Len())
	head, _ := f.queue.Head()
	assert.Equal(t, "p1", head.Single.FileID)
	assert.Equal(t, "fish &amp; chips", head.Caption())
	assert.Equal(t, []int64{operatorID}, head.Submitters)
	assert.Equal(t, "Added to the queue at position 1. Expected: 02.06.2025 11:00.", f.bot.lastReply(t))
}

func TestHandleMediaUnscheduledAndInFlight(t *testing.T) {
	f := newFixture(t)
	f.scheduler.forecastOK = false
	f.scheduler.result = scheduler.SubmitResult{InFlight: true}

	require.NoError(t, f.h.HandleMedia(context.Background(), f.bot, photoMessage("p1", "")))
	reply := f.bot.lastReply(t)
	assert.Contains(t, reply, "Posting time is not scheduled yet.")
	assert.Contains(t, reply, "A post is being published right now")
}

func TestHandleMediaPublishedInstantly(t *testing.T) {
	f := newFixture(t)
	f.scheduler.result = scheduler.SubmitResult{Published: true, InFlight: true}
	require.NoError(t, f.h.HandleMedia(context.Background(), f.bot, photoMessage("p1", "")))
	assert.Equal(t, "Published right away.", f.bot.lastReply(t))
}

func TestHandleMediaRejectsUnsupported(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.h.HandleMedia(context.Background(), f.bot, textMessage("just text")))
	assert.Equal(t, 0, f.queue.Len())
	assert.Equal(t, "Send a photo, video, GIF or document to queue it.", f.bot.lastReply(t))
}

func TestHandleMediaBuffersAlbumParts(t *testing.T) {
	f := newFixture(t)
	msg := photoMessage("p1", "look")
	msg.MediaGroupID = "album"
	msg.MessageID = 11

	require.NoError(t, f.h.HandleMedia(context.Background(), f.bot, msg))
	assert.Empty(t, f.bot.replies())
	assert.Equal(t, 0, f.queue.Len())
	require.Len(t, f.collector.parts["album"], 1)
	assert.Equal(t, mediagroups.Part{
		MessageID:  11,
		SenderID:   operatorID,
		ChatID:     operatorID,
		Attachment: queue.Attachment{FileID: "p1", Kind: queue.KindPhoto},
		Caption:    "look",
	}, f.collector.parts["album"][0])
}

func TestProcessMediaGroupQueuesAlbum(t *testing.T) {
	f := newFixture(t)
	_, err := f.settings.Update(context.Background(), func(s *settings.Settings) error {
		sig := "<b>sig</b>"
		s.DefaultSignature = &sig
		return nil
	})
	require.NoError(t, err)

	parts := []mediagroups.Part{
		{MessageID: 1, SenderID: operatorID, ChatID: operatorID, Attachment: queue.Attachment{FileID: "a", Kind: queue.KindPhoto}, Caption: "c"},
		{MessageID: 2, SenderID: operatorID, ChatID: operatorID, Attachment: queue.Attachment{FileID: "b", Kind: queue.KindVideo}},
	}
	require.NoError(t, f.h.ProcessMediaGroup(context.Background(), "album", parts))

	require.Equal(t, 1, f.queue.Len())
	head, _ := f.queue.Head()
	require.True(t, head.IsGroup())
	assert.Equal(t, "<b>sig</b>", head.Caption())
	assert.Len(t, head.Attachments(), 2)
	assert.Equal(t, "Added to the queue at position 1. Expected: 02.06.2025 11:00.", f.bot.lastReply(t))
}

func TestProcessMediaGroupSplitsUncaptionedAlbum(t *testing.T) {
	f := newFixture(t)
	parts := []mediagroups.Part{
		{MessageID: 1, ChatID: operatorID, Attachment: queue.Attachment{FileID: "a", Kind: queue.KindPhoto}},
		{MessageID: 2, ChatID: operatorID, Attachment: queue.Attachment{FileID: "b", Kind: queue.KindPhoto}},
	}
	require.NoError(t, f.h.ProcessMediaGroup(context.Background(), "album", parts))

	assert.Equal(t, 2, f.queue.Len())
	assert.Equal(t, "Added 2 posts at positions 1-2. Expected between 02.06.2025 11:00 and 02.06.2025 12:00.", f.bot.lastReply(t))
}

func TestHandleInterval(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Interval set to 2h 30m.", f.command(t, "/interval 2h 30m"))
	assert.Equal(t, 150*time.Minute, f.settings.Snapshot().Interval())
	assert.Equal(t, 1, f.scheduler.wakes)

	assert.Contains(t, f.command(t, "/interval soon"), "Usage: /interval")
	assert.Equal(t, 150*time.Minute, f.settings.Snapshot().Interval())
}

func TestHandleSetTime(t *testing.T) {
	f := newFixture(t)
	_, err := f.settings.Update(context.Background(), func(s *settings.Settings) error {
		s.TimeWindowEnabled = false
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Posting window set to 22:00-06:30.", f.command(t, "/settime 22:00 06:30"))
	snap := f.settings.Snapshot()
	assert.True(t, snap.TimeWindowEnabled)
	w, ok := snap.Window()
	require.True(t, ok)
	assert.Equal(t, "22:00-06:30", w.String())

	assert.Contains(t, f.command(t, "/settime 25:00 06:00"), "Usage: /settime")
	assert.Contains(t, f.command(t, "/settime 09:00"), "Usage: /settime")
}

func TestHandleDays(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Allowed weekdays: Mon, Wed, Fri.", f.command(t, "/days 1,3 5"))
	snap := f.settings.Snapshot()
	assert.True(t, snap.WeekdaysEnabled)
	require.NotNil(t, snap.AllowedWeekdays)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, snap.AllowedWeekdays.Days())

	assert.Contains(t, f.command(t, "/days 8"), "Usage: /days")
	assert.Contains(t, f.command(t, "/days"), "Usage: /days")
}

func TestHandleStartDate(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "The start date must be in the future.", f.command(t, "/startdate 2025-06-01 09:00"))
	assert.Contains(t, f.command(t, "/startdate tomorrow"), "Usage: /startdate")

	assert.Equal(t, "Posting will start at 03.06.2025 12:30 (in 1d 2h 30m).", f.command(t, "/startdate 03.06.2025 12:30"))
	snap := f.settings.Snapshot()
	assert.True(t, snap.DelayedStartEnabled)
	require.NotNil(t, snap.DelayedStartAt)

	assert.Equal(t, "Delayed start removed.", f.command(t, "/clearstart"))
	snap = f.settings.Snapshot()
	assert.False(t, snap.DelayedStartEnabled)
	assert.Nil(t, snap.DelayedStartAt)
}

func TestToggles(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		command string
		reply   string
		value   func(settings.Settings) bool
	}{
		{"/toggle", "Posting paused.", func(s settings.Settings) bool { return s.PostingEnabled }},
		{"/toggletime", "Posting window is off.", func(s settings.Settings) bool { return s.TimeWindowEnabled }},
		{"/toggledays", "Weekday filter is on.", func(s settings.Settings) bool { return s.WeekdaysEnabled }},
		{"/toggleexact", "Exact slots are off, posting by plain interval.", func(s settings.Settings) bool { return s.ExactTimingEnabled }},
		{"/togglenotify", "Notifications are off.", func(s settings.Settings) bool { return s.NotificationsEnabled }},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			before := tt.value(f.settings.Snapshot())
			assert.Equal(t, tt.reply, f.command(t, tt.command))
			assert.Equal(t, !before, tt.value(f.settings.Snapshot()))
		})
	}
}

func TestHandleTitleUpdatesQueue(t *testing.T) {
	f := newFixture(t)
	_, err := f.queue.Append(context.Background(),
		queue.NewSingle(queue.Attachment{FileID: "a", Kind: queue.KindPhoto}, "old"),
		queue.NewSingle(queue.Attachment{FileID: "b", Kind: queue.KindPhoto}, ""),
	)
	require.NoError(t, err)

	reply := f.command(t, "/title My channel # t.me/mychan")
	link := `<a href="https://t.me/mychan">My channel</a>`
	assert.Contains(t, reply, link)
	assert.Contains(t, reply, "Updated 2 queued post(s).")
	assert.Equal(t, link, f.settings.Snapshot().Signature())
	for _, it := range f.queue.Items() {
		assert.Equal(t, link, it.Caption())
	}

	assert.Contains(t, f.command(t, "/title"), "Usage: /title")
}

func TestHandleSetChannel(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Channel set to Memes.", f.command(t, "/setchannel @memes"))
	assert.Equal(t, "@memes", f.settings.Snapshot().ChannelTarget)

	f.channel.err = errors.New("chat not found")
	reply := f.command(t, "/setchannel -100999")
	assert.Equal(t, "Cannot reach -100999: chat not found. Make sure the bot is an admin there.", reply)
	assert.Equal(t, "@memes", f.settings.Snapshot().ChannelTarget)

	assert.Contains(t, f.command(t, "/setchannel"), "Usage: /setchannel")
}

func TestHandleChannel(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "No channel is set. Use /setchannel.", f.command(t, "/channel"))

	_, err := f.settings.Update(context.Background(), func(s *settings.Settings) error {
		s.ChannelTarget = "@memes"
		return nil
	})
	require.NoError(t, err)
	reply := f.command(t, "/channel")
	assert.Contains(t, reply, "<b>Memes</b>")
	assert.Contains(t, reply, "Username: @memes")
	assert.Contains(t, reply, "Members: 12,345")
}

func TestQueueCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Equal(t, "The queue is empty.", f.command(t, "/queue"))
	assert.Equal(t, "Nothing to shuffle.", f.command(t, "/random"))

	_, err := f.queue.Append(ctx,
		queue.NewSingle(queue.Attachment{FileID: "a", Kind: queue.KindPhoto}, "first"),
		queue.NewSingle(queue.Attachment{FileID: "b", Kind: queue.KindVideo}, ""),
		queue.NewSingle(queue.Attachment{FileID: "c", Kind: queue.KindGIF}, ""),
	)
	require.NoError(t, err)

	listing := f.command(t, "/queue")
	assert.Contains(t, listing, "3 post(s), 3 media file(s)")
	assert.Contains(t, listing, "1. photo - first")
	assert.Contains(t, listing, "2. video")

	assert.Equal(t, "The queue has been shuffled.", f.command(t, "/random"))
	assert.Equal(t, "There is no post number 5.", f.command(t, "/remove 5"))
	assert.Contains(t, f.command(t, "/remove zero"), "Usage: /remove")
	assert.Equal(t, "Removed post number 2.", f.command(t, "/remove 2"))
	assert.Equal(t, 2, f.queue.Len())

	assert.Equal(t, "Removed 2 post(s) from the queue.", f.command(t, "/clear"))
	assert.Equal(t, 0, f.queue.Len())
}

func TestHandlePostNowOutcomes(t *testing.T) {
	tests := []struct {
		err   error
		reply string
	}{
		{nil, "Published."},
		{scheduler.ErrBusy, "A publish is already in progress."},
		{scheduler.ErrQueueEmpty, "The queue is empty."},
		{scheduler.ErrNoChannel, "No channel is set. Use /setchannel."},
		{errors.New("flood <wait>"), "Publishing failed: flood &lt;wait&gt;"},
	}
	for _, tt := range tests {
		f := newFixture(t)
		f.scheduler.publishErr = tt.err
		assert.Equal(t, tt.reply, f.command(t, "/postnow"))
	}
}

func TestHandleRetryFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Equal(t, "There are no failed posts.", f.command(t, "/retryfailed"))

	item := queue.NewSingle(queue.Attachment{FileID: "a", Kind: queue.KindPhoto}, "")
	_, err := f.queue.Append(ctx, item)
	require.NoError(t, err)
	_, quarantined, err := f.queue.RecordFailure(ctx, item.ID, errors.New("boom"), 1)
	require.NoError(t, err)
	require.True(t, quarantined)

	assert.Equal(t, "Requeued 1 post(s).", f.command(t, "/retryfailed"))
	assert.Equal(t, 1, f.queue.Len())
}

func TestHandleStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.settings.Update(context.Background(), func(s *settings.Settings) error {
		d := 90 * time.Minute
		s.PostInterval = &d
		s.ChannelTarget = "@memes"
		at := monday10.Add(2 * time.Hour)
		s.DelayedStartEnabled = true
		s.DelayedStartAt = &at
		return nil
	})
	require.NoError(t, err)

	reply := f.command(t, "/status")
	assert.Contains(t, reply, "Posting: on")
	assert.Contains(t, reply, "Scheduler: ")
	assert.Contains(t, reply, "Channel: @memes")
	assert.Contains(t, reply, "Interval: 1h 30m")
	assert.Contains(t, reply, "Weekdays: every day (off)")
	assert.Contains(t, reply, "Last post: never")
	assert.Contains(t, reply, "Next post: 02.06.2025 11:00")
	assert.Contains(t, reply, "Delayed start: 02.06.2025 12:00 (in 2h)")
}

func TestHandleSchedule(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.command(t, "/schedule"), "No interval is set")

	_, err := f.settings.Update(context.Background(), func(s *settings.Settings) error {
		d := 6 * time.Hour
		s.PostInterval = &d
		s.TimeWindowEnabled = false
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "<b>Slots</b> (4 per day): 00:00, 06:00, 12:00, 18:00", f.command(t, "/schedule"))

	_, err = f.queue.Append(context.Background(), queue.NewSingle(queue.Attachment{FileID: "a", Kind: queue.KindPhoto}, ""))
	require.NoError(t, err)
	reply := f.command(t, "/schedule")
	assert.Contains(t, reply, "Next post: 02.06.2025 11:00")
}

func TestHandleCheckTime(t *testing.T) {
	f := newFixture(t)
	setWindow := func(start, end string) {
		_, err := f.settings.Update(context.Background(), func(s *settings.Settings) error {
			a, err := schedule.ParseClock(start)
			require.NoError(t, err)
			b, err := schedule.ParseClock(end)
			require.NoError(t, err)
			s.WindowStart, s.WindowEnd = &a, &b
			return nil
		})
		require.NoError(t, err)
	}

	setWindow("12:00", "18:00")
	reply := f.command(t, "/checktime")
	assert.Contains(t, reply, "Now: 02.06.2025 10:00:00 (UTC)")
	assert.Contains(t, reply, "Weekday: Mon")
	assert.Contains(t, reply, "Window: 12:00-18:00 (on)")
	assert.Contains(t, reply, "Outside the posting window. Next allowed: 02.06.2025 12:00.")

	setWindow("09:00", "18:00")
	assert.Contains(t, f.command(t, "/checktime"), "Posting is allowed right now.")

	_, err := f.settings.Update(context.Background(), func(s *settings.Settings) error {
		days := schedule.NewWeekdaySet(time.Tuesday)
		s.AllowedWeekdays = &days
		s.WeekdaysEnabled = true
		s.TimeWindowEnabled = false
		return nil
	})
	require.NoError(t, err)
	reply = f.command(t, "/checktime")
	assert.Contains(t, reply, "Weekdays: Tue (on)")
	assert.Contains(t, reply, "Posting is not allowed today. Next allowed: 03.06.2025 00:00.")
}

func TestHandleSetTitle(t *testing.T) {
	f := newFixture(t)
	_, err := f.queue.Append(context.Background(),
		queue.NewSingle(queue.Attachment{FileID: "a", Kind: queue.KindPhoto}, "keep"),
		queue.NewSingle(queue.Attachment{FileID: "b", Kind: queue.KindPhoto}, "old"),
	)
	require.NoError(t, err)

	reply := f.command(t, "/settitle 2 Fresh # t.me/mychan")
	link := `<a href="https://t.me/mychan">Fresh</a>`
	assert.Equal(t, "Caption of post number 2 set to: "+link, reply)
	items := f.queue.Items()
	assert.Equal(t, "keep", items[0].Caption())
	assert.Equal(t, link, items[1].Caption())

	assert.Equal(t, "There is no post number 3.", f.command(t, "/settitle 3 nope"))
	assert.Contains(t, f.command(t, "/settitle 2"), "Usage: /settitle")
	assert.Contains(t, f.command(t, "/settitle x text"), "Usage: /settitle")
}

func TestHandlePostFile(t *testing.T) {
	f := newFixture(t)
	_, err := f.queue.Append(context.Background(),
		queue.NewSingle(queue.Attachment{FileID: "a", Kind: queue.KindPhoto}, ""),
		queue.NewSingle(queue.Attachment{FileID: "b", Kind: queue.KindPhoto}, ""),
	)
	require.NoError(t, err)

	assert.Equal(t, "Published post number 2.", f.command(t, "/postfile 2"))
	assert.Equal(t, []int{1}, f.scheduler.publishedAt)
	assert.Equal(t, "There is no post number 9.", f.command(t, "/postfile 9"))
	assert.Contains(t, f.command(t, "/postfile"), "Usage: /postfile")

	f.scheduler.publishErr = errors.New("flood")
	assert.Equal(t, "Publishing failed: flood", f.command(t, "/postfile 1"))
}

func TestHandlePostAll(t *testing.T) {
	tests := []struct {
		drained int
		err     error
		reply   string
	}{
		{3, nil, "Published 3 post(s)."},
		{1, errors.New("bad file"), "Published 1 of 3 post(s), then publishing failed: bad file"},
		{0, scheduler.ErrNoChannel, "No channel is set. Use /setchannel."},
		{0, scheduler.ErrQueueEmpty, "The queue is empty."},
	}
	for _, tt := range tests {
		f := newFixture(t)
		for _, id := range []string{"a", "b", "c"} {
			_, err := f.queue.Append(context.Background(), queue.NewSingle(queue.Attachment{FileID: id, Kind: queue.KindPhoto}, ""))
			require.NoError(t, err)
		}
		f.scheduler.drained, f.scheduler.publishErr = tt.drained, tt.err
		assert.Equal(t, tt.reply, f.command(t, "/postall"))
	}
}

func TestHandlePostPublishesNextMediaDirectly(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "No channel is set. Use /setchannel.", f.command(t, "/post"))

	_, err := f.settings.Update(context.Background(), func(s *settings.Settings) error {
		s.ChannelTarget = "@memes"
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, f.command(t, "/post"), "skipping the queue")

	require.NoError(t, f.h.HandleMedia(context.Background(), f.bot, photoMessage("direct", "now")))
	assert.Equal(t, "Published directly, the queue was not touched.", f.bot.lastReply(t))
	require.Len(t, f.scheduler.direct, 1)
	assert.Equal(t, "direct", f.scheduler.direct[0].Single.FileID)
	assert.Equal(t, 0, f.queue.Len())

	require.NoError(t, f.h.HandleMedia(context.Background(), f.bot, photoMessage("queued", "")))
	assert.Len(t, f.scheduler.direct, 1, "the direct publish is one-off")
	assert.Equal(t, 1, f.queue.Len())
}

func TestHandlePostReportsFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.settings.Update(context.Background(), func(s *settings.Settings) error {
		s.ChannelTarget = "@memes"
		return nil
	})
	require.NoError(t, err)
	f.command(t, "/post")
	f.scheduler.publishErr = errors.New("chat not found")

	require.NoError(t, f.h.HandleMedia(context.Background(), f.bot, photoMessage("direct", "")))
	assert.Equal(t, "Publishing failed: chat not found", f.bot.lastReply(t))
	assert.Equal(t, 0, f.queue.Len())
}
