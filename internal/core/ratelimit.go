package core

import "time"

// AttemptLog is a persisted sliding-window log, as listed by admin tooling.
type AttemptLog struct {
	Key       string      `json:"key"`
	Attempts  []time.Time `json:"attempts"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Latest returns the most recent attempt, or the zero time.
func (l AttemptLog) Latest() time.Time {
	var latest time.Time
	for _, t := range l.Attempts {
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}
