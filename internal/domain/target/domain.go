package target

import (
	"time"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/check"
)

const (
	DefaultExpectedStatusMin = 200
	DefaultExpectedStatusMax = 399
)

// Target is one URL under surveillance within an instance.
type Target struct {
	ID                int64   `json:"id"`
	InstanceID        string  `json:"instance_id"`
	URL               string  `json:"url"`
	Enabled           bool    `json:"enabled"`
	ExpectedStatusMin int     `json:"expected_status_min"`
	ExpectedStatusMax int     `json:"expected_status_max"`
	LoginRule         *string `json:"login_rule,omitempty"`
}

// State is the mutable 1:1 companion of a Target, created lazily on the
// first persisted check. StateSince anchors the current up/down episode;
// the trailing alert fields belong to the evaluator's state machine.
type State struct {
	TargetID            int64     `json:"target_id"`
	IsUp                bool      `json:"is_up"`
	LastCheckAt         time.Time `json:"last_check_at"`
	StateSince          time.Time `json:"state_since"`
	LastChangeAt        time.Time `json:"last_change_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSummary         string    `json:"last_summary"`
	LastFinalURL        *string   `json:"last_final_url,omitempty"`
	LastUsedIP          *string   `json:"last_used_ip,omitempty"`
	LastLoginType       *string   `json:"last_login_type,omitempty"`
	LoginDetectedLast   bool      `json:"login_detected_last"`
	LoginDetectedEver   bool      `json:"login_detected_ever"`

	DownFirstNotifiedAt *time.Time `json:"down_first_notified_at,omitempty"`
	LastNotifiedAt      *time.Time `json:"last_notified_at,omitempty"`
	NextNotifyAt        *time.Time `json:"next_notify_at,omitempty"`
	RecoveredDueAt      *time.Time `json:"recovered_due_at,omitempty"`
	RecoveredNotifiedAt *time.Time `json:"recovered_notified_at,omitempty"`
}

// Degraded reports the display-only classification: reachable today, but a
// login surface that was seen before has gone missing. Degraded never
// participates in alerting.
func (s *State) Degraded() bool {
	return s.IsUp && s.LoginDetectedEver && !s.LoginDetectedLast
}

// NewState builds the initial state row from a target's first probe.
func NewState(r *check.ProbeResult) *State {
	s := &State{
		TargetID:          r.TargetID,
		IsUp:              r.Healthy(),
		LastCheckAt:       r.Timestamp,
		StateSince:        r.Timestamp,
		LastChangeAt:      r.Timestamp,
		LastSummary:       r.Summary,
		LastFinalURL:      r.FinalURL,
		LastUsedIP:        r.UsedIP,
		LastLoginType:     r.DetectedLoginType,
		LoginDetectedLast: r.LoginDetected,
		LoginDetectedEver: r.LoginDetected,
	}
	if !s.IsUp {
		s.ConsecutiveFailures = 1
	}
	return s
}

// Apply folds one probe outcome into the state. StateSince moves only when
// IsUp flips. Login fields change only when the transport produced an HTTP
// response: a DNS or TCP failure must not clobber the last known login
// surface. LoginDetectedEver never clears.
func (s *State) Apply(r *check.ProbeResult) {
	up := r.Healthy()
	flipped := up != s.IsUp

	s.LastCheckAt = r.Timestamp
	s.LastSummary = r.Summary
	if r.FinalURL != nil {
		s.LastFinalURL = r.FinalURL
	}
	if r.UsedIP != nil {
		s.LastUsedIP = r.UsedIP
	}
	if r.HTTPStatusCode != nil {
		s.LoginDetectedLast = r.LoginDetected
		s.LastLoginType = r.DetectedLoginType
		s.LoginDetectedEver = s.LoginDetectedEver || r.LoginDetected
	}

	if flipped {
		s.IsUp = up
		s.StateSince = r.Timestamp
		s.LastChangeAt = r.Timestamp
	}
	if up {
		s.ConsecutiveFailures = 0
	} else if flipped {
		s.ConsecutiveFailures = 1
	} else {
		s.ConsecutiveFailures++
	}
}
