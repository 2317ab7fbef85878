package instance

import (
	"regexp"
	"time"
)

// Instance is a monitoring tenant: an isolated set of targets probed on one
// cadence, with its own recipients, webhooks and time zone. All times UTC.
type Instance struct {
	ID            string        `json:"id"`
	DisplayName   string        `json:"display_name"`
	Enabled       bool          `json:"enabled"`
	IsPaused      bool          `json:"is_paused"`
	PausedUntil   *time.Time    `json:"paused_until,omitempty"`
	CheckInterval time.Duration `json:"check_interval"`
	Concurrency   int           `json:"concurrency"`
	TimeZoneID    string        `json:"time_zone_id"`
	CreatedAt     time.Time     `json:"created_at"`
}

var idRe = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)

func ValidID(id string) bool { return idRe.MatchString(id) }

// Paused reports whether probing is suspended at now, either by the sticky
// flag or by a pause-until deadline that has not passed yet.
func (i *Instance) Paused(now time.Time) bool {
	if i.IsPaused {
		return true
	}
	return i.PausedUntil != nil && i.PausedUntil.After(now)
}
