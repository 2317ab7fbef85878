package alerter

import (
	"time"

	"github.com/scottbadams/ITWebsiteMonitor/internal/config"
	"github.com/scottbadams/ITWebsiteMonitor/internal/timezone"
)

// NextNotify places the next repeat-DOWN notification on the escalation
// ladder: every RepeatUnder24h while the outage is younger than a day, every
// Repeat24hTo72h until DailyAfter, then once a day at the configured local
// wall-clock time in the instance's zone.
func NextNotify(downStart, lastSent, now time.Time, loc *time.Location, cfg config.AlertCfg) time.Time {
	age := now.Sub(downStart)
	switch {
	case age < 24*time.Hour:
		return lastSent.Add(cfg.RepeatUnder24h)
	case age < cfg.DailyAfter:
		return lastSent.Add(cfg.Repeat24hTo72h)
	default:
		local := timezone.ToLocal(now, loc)
		due := time.Date(local.Year(), local.Month(), local.Day(),
			cfg.DailyHourLocal, cfg.DailyMinuteLocal, 0, 0, loc).UTC()
		if !due.After(now) {
			due = due.Add(24 * time.Hour)
		}
		return due
	}
}
