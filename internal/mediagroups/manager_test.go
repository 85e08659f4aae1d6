package mediagroups

import (
	"context"
	"sync"
	"testing"
	"time"

	"chanqueue-bot/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	calls  map[string][][]Part
	signal chan string
}

func newCollector() *collector {
	return &collector{calls: map[string][][]Part{}, signal: make(chan string, 10)}
}

func (c *collector) process(_ context.Context, groupID string, parts []Part) error {
	c.mu.Lock()
	c.calls[groupID] = append(c.calls[groupID], parts)
	c.mu.Unlock()
	c.signal <- groupID
	return nil
}

func (c *collector) count(groupID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls[groupID])
}

func part(id int, sender int64, caption string) Part {
	return Part{
		MessageID:  id,
		SenderID:   sender,
		Attachment: queue.Attachment{FileID: "f" + string(rune('0'+id)), Kind: queue.KindPhoto},
		Caption:    caption,
	}
}

func TestGroupFinalizedOnceAfterDelay(t *testing.T) {
	c := newCollector()
	m := NewManager(50*time.Millisecond, c.process)

	m.Add("g1", part(3, 1, ""))
	m.Add("g1", part(1, 1, "hello"))
	m.Add("g1", part(2, 1, ""))
	m.Add("g1", part(2, 1, ""))

	select {
	case id := <-c.signal:
		assert.Equal(t, "g1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("group was not finalized")
	}

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, c.count("g1"), "re-arrival must not arm a second timer")
	parts := c.calls["g1"][0]
	require.Len(t, parts, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{parts[0].MessageID, parts[1].MessageID, parts[2].MessageID})
	assert.Equal(t, 0, m.Pending())
}

func TestFlushIsIdempotent(t *testing.T) {
	c := newCollector()
	m := NewManager(time.Hour, c.process)
	m.Add("g", part(1, 1, ""))
	m.Add("g", part(2, 1, ""))

	assert.True(t, m.Flush(context.Background(), "g"))
	assert.False(t, m.Flush(context.Background(), "g"))
	assert.Equal(t, 1, c.count("g"))
}

func TestShutdownFinalizesPending(t *testing.T) {
	c := newCollector()
	m := NewManager(time.Hour, c.process)
	m.Add("a", part(1, 1, ""))
	m.Add("b", part(1, 2, ""))
	m.Add("", part(1, 3, ""))

	assert.Equal(t, 2, m.Shutdown(context.Background()))
	assert.Equal(t, 1, c.count("a"))
	assert.Equal(t, 1, c.count("b"))
	assert.Equal(t, 0, m.Pending())
}

func TestPartArrivingAfterTakeStartsNewBatch(t *testing.T) {
	c := newCollector()
	m := NewManager(time.Hour, c.process)
	// The buffer was handed to processing after Add looked it up but before it locked it.
	m.groups.Store("g", &groupState{done: true})

	m.Add("g", part(4, 1, ""))

	assert.Equal(t, 1, m.Pending())
	assert.True(t, m.Flush(context.Background(), "g"))
	require.Equal(t, 1, c.count("g"))
	assert.Equal(t, 4, c.calls["g"][0][0].MessageID)
}

func TestGroupSizeLimit(t *testing.T) {
	c := newCollector()
	m := NewManager(time.Hour, c.process)
	for i := 1; i <= DefaultMaxGroupSize+2; i++ {
		m.Add("g", part(i, 1, ""))
	}
	m.Flush(context.Background(), "g")
	assert.Len(t, c.calls["g"][0], DefaultMaxGroupSize)
}

func TestFoldCaptionedGroupGetsSignature(t *testing.T) {
	items, err := Fold([]Part{part(1, 10, "look"), part(2, 11, "")}, "sig")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsGroup())
	assert.Equal(t, "sig", items[0].Caption())
	assert.Len(t, items[0].Attachments(), 2)
	assert.Equal(t, []int64{10, 11}, items[0].Submitters)
}

func TestFoldUncaptionedGroupSplits(t *testing.T) {
	items, err := Fold([]Part{part(1, 10, ""), part(2, 11, ""), part(3, 10, "")}, "sig")
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, it := range items {
		assert.False(t, it.IsGroup())
		assert.Empty(t, it.Caption(), "signature is applied at send time")
		assert.Equal(t, items[i].Submitters, []int64{[]int64{10, 11, 10}[i]})
	}
}

func TestFoldSinglePart(t *testing.T) {
	items, err := Fold([]Part{part(1, 10, "own caption")}, "sig")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].IsGroup())
	assert.Equal(t, "own caption", items[0].Caption())

	items, err = Fold(nil, "sig")
	require.NoError(t, err)
	assert.Empty(t, items)
}
