package models

import "time"

// MomentumEntry is one recorded momentum classification.
type MomentumEntry struct {
	RecordedAt           time.Time `json:"recorded_at"`
	State                string    `json:"state"`
	RecentCompletionRate float64   `json:"recent_completion_rate"`
	OnTimeRate           float64   `json:"on_time_rate"`
}

// MomentumLog is an append-only log that keeps only the newest entries.
type MomentumLog []MomentumEntry

// Append returns the log with e added, evicting the oldest entries so that at
// most limit remain. A non-positive limit uses DefaultMomentumLogSize.
func (l MomentumLog) Append(e MomentumEntry, limit int) MomentumLog {
	if limit <= 0 {
		limit = DefaultMomentumLogSize
	}
	out := make(MomentumLog, 0, limit)
	out = append(out, l...)
	out = append(out, e)
	if len(out) > limit {
		out = append(MomentumLog(nil), out[len(out)-limit:]...)
	}
	return out
}

// Latest returns the newest entry, if any.
func (l MomentumLog) Latest() (MomentumEntry, bool) {
	if len(l) == 0 {
		return MomentumEntry{}, false
	}
	return l[len(l)-1], true
}
