package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultQueueSize bounds each subscriber's pending event queue.
const DefaultQueueSize = 32

// EventType classifies a live update.
type EventType string

const (
	EventContextUpdated   EventType = "context_updated"
	EventFeatureCompleted EventType = "feature_completed"
	EventIssueResolved    EventType = "issue_resolved"
	EventGoalChanged      EventType = "goal_changed"
	EventUserJoined       EventType = "user_joined"
	EventUserLeft         EventType = "user_left"
)

// Event is one live update pushed to subscribers.
type Event struct {
	Type      EventType      `json:"type"`
	Project   string         `json:"project,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Subscriber is one registered consumer of live updates. Events arrive on
// a bounded channel; a consumer that stops draining loses its own oldest
// pending events, never anyone else's.
type Subscriber struct {
	ID      uuid.UUID
	UserID  string
	Project string // empty subscribes to every project

	events chan Event
}

// Events is the subscriber's receive channel. It is closed on Unsubscribe.
func (s *Subscriber) Events() <-chan Event { return s.events }

// wants reports whether the subscriber's project filter matches the event.
func (s *Subscriber) wants(evt Event) bool {
	return s.Project == "" || evt.Project == "" || s.Project == evt.Project
}

// ConnectionStats is a snapshot of broadcaster activity.
type ConnectionStats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

// Broadcaster fans live updates out to registered subscribers. Publish
// never blocks: when a subscriber's queue is full its oldest pending event
// is dropped to make room, so one slow consumer cannot stall the rest.
type Broadcaster struct {
	queueSize int
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	subs      map[uuid.UUID]*Subscriber
	published uint64
	delivered uint64
	dropped   uint64
}

// New creates a Broadcaster. queueSize <= 0 falls back to DefaultQueueSize.
func New(queueSize int, logger *zap.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		queueSize: queueSize,
		logger:    logger,
		now:       time.Now,
		subs:      make(map[uuid.UUID]*Subscriber),
	}
}

// Subscribe registers a consumer. project narrows delivery to one project;
// empty means all. A user_joined event is announced to matching subscribers,
// the new one included.
func (b *Broadcaster) Subscribe(userID, project string) *Subscriber {
	sub := &Subscriber{
		ID:      uuid.New(),
		UserID:  userID,
		Project: project,
		events:  make(chan Event, b.queueSize),
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber joined",
		zap.String("subscriber_id", sub.ID.String()),
		zap.String("user_id", userID),
		zap.String("project", project))

	b.Publish(Event{
		Type:    EventUserJoined,
		Project: project,
		Data:    map[string]any{"user_id": userID},
	})
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Unknown IDs are
// ignored.
func (b *Broadcaster) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(sub.events)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	b.logger.Debug("subscriber left",
		zap.String("subscriber_id", id.String()),
		zap.String("user_id", sub.UserID))

	b.Publish(Event{
		Type:    EventUserLeft,
		Project: sub.Project,
		Data:    map[string]any{"user_id": sub.UserID},
	})
}

// Publish delivers the event to every subscriber whose filter matches. A
// zero Timestamp is stamped with the current time. Delivery to a full
// queue drops that subscriber's oldest pending event first.
func (b *Broadcaster) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.published++
	for _, sub := range b.subs {
		if !sub.wants(evt) {
			continue
		}
		select {
		case sub.events <- evt:
			b.delivered++
			continue
		default:
		}
		// Queue full: drop the oldest pending event to make room. The
		// consumer may race us on the receive, so retry the send either way.
		select {
		case <-sub.events:
			b.dropped++
		default:
		}
		select {
		case sub.events <- evt:
			b.delivered++
		default:
			b.dropped++
		}
	}
}

// Stats returns a snapshot of broadcaster counters.
func (b *Broadcaster) Stats() ConnectionStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ConnectionStats{
		Subscribers: len(b.subs),
		Published:   b.published,
		Delivered:   b.delivered,
		Dropped:     b.dropped,
	}
}

// Close unsubscribes everyone.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.events)
	}
}
