package event

import "time"

type Type string

const (
	TypeAlertDown       Type = "AlertDown"
	TypeAlertDownRepeat Type = "AlertDownRepeat"
	TypeAlertRecovered  Type = "AlertRecovered"
	TypeError           Type = "Error"
)

// Event is an append-only audit record.
type Event struct {
	ID         int64     `json:"id"`
	InstanceID string    `json:"instance_id"`
	TargetID   *int64    `json:"target_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Type       Type      `json:"type"`
	Message    string    `json:"message"`
}
