package models

import "time"

// SessionSnapshot is one point-in-time sample of a decoder session's
// jitter-buffer and arrival statistics, persisted for later inspection.
type SessionSnapshot struct {
	ID                 int64
	SessionLabel       string
	SessionID          string
	TakenAt            time.Time
	PacketsBuffered    int
	DiscardedDuplicate int
	DiscardedOverflow  int
	CumulativeLost     int32
	FractionLost       uint8
	JitterSamples      uint32
	OptimalLevelQ8     uint32
	LastDecision       string
}
