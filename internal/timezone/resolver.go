package timezone

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Resolver maps stored zone identifiers to *time.Location. IDs are normally
// IANA, but rows written by older Windows-hosted tooling may carry Windows
// zone IDs, so those are translated before giving up. Unresolvable zones fall
// back to UTC with a warning; probing must not stop over a bad zone id.
type Resolver struct {
	log *zap.Logger

	mu    sync.RWMutex
	cache map[string]*time.Location
}

func NewResolver(log *zap.Logger) *Resolver {
	return &Resolver{
		log:   log,
		cache: make(map[string]*time.Location),
	}
}

func (r *Resolver) Resolve(id string) *time.Location {
	if id == "" || id == "UTC" {
		return time.UTC
	}

	r.mu.RLock()
	loc, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return loc
	}

	loc = r.lookup(id)
	r.mu.Lock()
	r.cache[id] = loc
	r.mu.Unlock()
	return loc
}

func (r *Resolver) lookup(id string) *time.Location {
	if loc, err := time.LoadLocation(id); err == nil {
		return loc
	}
	if iana, ok := windowsZones[id]; ok {
		if loc, err := time.LoadLocation(iana); err == nil {
			return loc
		}
	}
	if r.log != nil {
		r.log.Warn("unresolvable time zone, falling back to UTC", zap.String("zone", id))
	}
	return time.UTC
}

// ToLocal converts a UTC instant to wall-clock time in loc.
func ToLocal(utc time.Time, loc *time.Location) time.Time {
	return utc.In(loc)
}

// ToUTC interprets wall as unspecified-kind wall-clock time in loc and
// returns the corresponding instant.
func ToUTC(wall time.Time, loc *time.Location) time.Time {
	y, m, d := wall.Date()
	h, min, sec := wall.Clock()
	return time.Date(y, m, d, h, min, sec, wall.Nanosecond(), loc).UTC()
}
