package synchub

import (
	"time"

	"github.com/dmitrymomot/flagkit/pkg/flag"
	"github.com/dmitrymomot/flagkit/pkg/storage"
)

// EventType discriminates the Event union.
type EventType string

const (
	EventCreated       EventType = "created"
	EventUpdated       EventType = "updated"
	EventDeleted       EventType = "deleted"
	EventStatusChanged EventType = "status_changed"
	EventSyncComplete  EventType = "sync_complete"
	EventHeartbeat     EventType = "heartbeat"
)

// Event is a single change notification. Which fields are set depends on
// Type: Flag travels on created/updated/status_changed, FlagID additionally
// on deleted, Count only on sync_complete. Origin identifies the process
// that produced the event so the Redis bridge can suppress echoes.
type Event struct {
	Type       EventType           `json:"type"`
	FlagID     flag.ID             `json:"flag_id,omitempty"`
	Flag       *storage.StoredFlag `json:"flag,omitempty"`
	FromStatus flag.Status         `json:"from_status,omitempty"`
	ToStatus   flag.Status         `json:"to_status,omitempty"`
	Count      int                 `json:"count,omitempty"`
	Origin     string              `json:"origin,omitempty"`
	At         time.Time           `json:"at"`
}

// CreatedEvent announces a newly created flag.
func CreatedEvent(sf *storage.StoredFlag) Event {
	return Event{Type: EventCreated, FlagID: sf.Definition.ID, Flag: sf, At: time.Now()}
}

// UpdatedEvent announces a changed definition.
func UpdatedEvent(sf *storage.StoredFlag) Event {
	return Event{Type: EventUpdated, FlagID: sf.Definition.ID, Flag: sf, At: time.Now()}
}

// DeletedEvent announces a removed flag.
func DeletedEvent(id flag.ID) Event {
	return Event{Type: EventDeleted, FlagID: id, At: time.Now()}
}

// StatusChangedEvent announces a lifecycle transition.
func StatusChangedEvent(sf *storage.StoredFlag, from, to flag.Status) Event {
	return Event{
		Type:       EventStatusChanged,
		FlagID:     sf.Definition.ID,
		Flag:       sf,
		FromStatus: from,
		ToStatus:   to,
		At:         time.Now(),
	}
}

func syncCompleteEvent(count int) Event {
	return Event{Type: EventSyncComplete, Count: count, At: time.Now()}
}

func heartbeatEvent() Event {
	return Event{Type: EventHeartbeat, At: time.Now()}
}
