package broadcast

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestBroadcaster(queueSize int) *Broadcaster {
	return New(queueSize, zap.NewNop())
}

// drain empties a subscriber's queue and returns what was pending.
func drain(sub *Subscriber) []Event {
	var events []Event
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, evt)
		default:
			return events
		}
	}
}

func TestPublishDelivers(t *testing.T) {
	b := newTestBroadcaster(8)
	defer b.Close()

	sub := b.Subscribe("alice", "demo")
	drain(sub) // discard the join announcement

	b.Publish(Event{Type: EventGoalChanged, Project: "demo"})

	evt := <-sub.Events()
	assert.Equal(t, EventGoalChanged, evt.Type)
	assert.Equal(t, "demo", evt.Project)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestProjectFilter(t *testing.T) {
	b := newTestBroadcaster(8)
	defer b.Close()

	demoSub := b.Subscribe("alice", "demo")
	allSub := b.Subscribe("bob", "")
	drain(demoSub)
	drain(allSub)

	b.Publish(Event{Type: EventContextUpdated, Project: "other"})

	assert.Empty(t, drain(demoSub), "filtered subscriber received another project's event")
	require.Len(t, drain(allSub), 1)
}

// A full queue drops that subscriber's oldest pending event; newer events
// still arrive and other subscribers are unaffected.
func TestPublishDropsOldestWhenFull(t *testing.T) {
	b := newTestBroadcaster(2)
	defer b.Close()

	slow := b.Subscribe("slow", "demo")
	fast := b.Subscribe("fast", "demo")
	drain(slow)
	drain(fast)

	for i := 0; i < 5; i++ {
		b.Publish(Event{
			Type:    EventContextUpdated,
			Project: "demo",
			Data:    map[string]any{"seq": i},
		})
		drain(fast)
	}

	pending := drain(slow)
	require.Len(t, pending, 2)
	// Only the newest two survive.
	assert.Equal(t, 3, pending[0].Data["seq"])
	assert.Equal(t, 4, pending[1].Data["seq"])

	stats := b.Stats()
	assert.NotZero(t, stats.Dropped)
}

func TestSubscribeAnnouncesJoin(t *testing.T) {
	b := newTestBroadcaster(8)
	defer b.Close()

	sub := b.Subscribe("alice", "demo")

	evt := <-sub.Events()
	assert.Equal(t, EventUserJoined, evt.Type)
	assert.Equal(t, "alice", evt.Data["user_id"])
}

func TestUnsubscribeClosesChannelAndAnnouncesLeave(t *testing.T) {
	b := newTestBroadcaster(8)
	defer b.Close()

	leaving := b.Subscribe("alice", "demo")
	watcher := b.Subscribe("bob", "demo")
	drain(leaving)
	drain(watcher)

	b.Unsubscribe(leaving.ID)

	_, ok := <-leaving.Events()
	assert.False(t, ok, "channel should be closed")

	events := drain(watcher)
	require.Len(t, events, 1)
	assert.Equal(t, EventUserLeft, events[0].Type)
	assert.Equal(t, "alice", events[0].Data["user_id"])

	// Unknown IDs are a no-op.
	b.Unsubscribe(uuid.New())
	assert.Equal(t, 1, b.Stats().Subscribers)
}

func TestStats(t *testing.T) {
	b := newTestBroadcaster(8)
	defer b.Close()

	sub := b.Subscribe("alice", "")
	drain(sub)

	b.Publish(Event{Type: EventContextUpdated, Project: "demo"})
	b.Publish(Event{Type: EventFeatureCompleted, Project: "demo"})

	stats := b.Stats()
	assert.Equal(t, 1, stats.Subscribers)
	// join + the two publishes
	assert.Equal(t, uint64(3), stats.Published)
	assert.Equal(t, uint64(3), stats.Delivered)
}

func TestBackoff(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: 500 * time.Millisecond, MaxAttempts: 4}

	var delays []time.Duration
	for {
		d, ok := b.Next()
		if !ok {
			break
		}
		delays = append(delays, d)
	}

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond, // capped
	}, delays)

	b.Reset()
	d, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, d)
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	d, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, d)
}
