package amqp

import (
	"encoding/json"
	"time"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/events"
)

// ChangeMessage is the wire form of an events.Change. It carries ids only;
// consumers reload whatever they need from the store of record.
type ChangeMessage struct {
	Entity string    `json:"entity"`
	Op     string    `json:"op"`
	ID     string    `json:"id"`
	Year   int       `json:"year,omitempty"`
	At     time.Time `json:"at"`
	Origin string    `json:"origin"`
}

// NewChangeMessage stamps c with the current time when it has none.
func NewChangeMessage(c events.Change) *ChangeMessage {
	at := c.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &ChangeMessage{
		Entity: string(c.Entity),
		Op:     string(c.Op),
		ID:     c.ID,
		Year:   c.Year,
		At:     at,
		Origin: c.Origin,
	}
}

// Change converts the message back to the in-process form.
func (m *ChangeMessage) Change() events.Change {
	return events.Change{
		Entity: events.Entity(m.Entity),
		Op:     events.Op(m.Op),
		ID:     m.ID,
		Year:   m.Year,
		At:     m.At,
		Origin: m.Origin,
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message and rejects bodies without an
// entity or id.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Entity == "" || msg.ID == "" {
		return nil, errMalformed
	}
	return &msg, nil
}
