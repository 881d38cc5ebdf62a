package websocket

import (
	"encoding/json"
	"time"

	"github.com/tazhate/familycal/internal/log"
)

// MessageType identifies the kind of notification.
type MessageType string

const (
	TypeSeriesChanged     MessageType = "series.changed"
	TypeOccurrenceChanged MessageType = "occurrence.changed"
	TypeSyncCompleted     MessageType = "calendar.sync_completed"
)

// Message is the envelope of every notification.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

func NewMessage(t MessageType, payload any) Message {
	return Message{Type: t, Timestamp: time.Now().UTC(), Payload: payload}
}

// ChangePayload names what changed. Date is set for single occurrences.
type ChangePayload struct {
	SeriesID string `json:"seriesId"`
	Date     string `json:"date,omitempty"`
	Action   string `json:"action"`
}

type SyncPayload struct {
	FamilyID  string   `json:"familyId"`
	Published int      `json:"published"`
	Errors    []string `json:"errors,omitempty"`
}

// Publish encodes msg and broadcasts it. A nil hub is a no-op.
func (h *Hub) Publish(msg Message) {
	if h == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error("encode websocket message", err, "type", msg.Type)
		return
	}
	h.Broadcast(data)
}
