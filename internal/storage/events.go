package storage

import "time"

// EventWriter is the interface for writing review API events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *ReviewEvent)
	Close()
}

// ReviewEvent represents a single review API interaction to be persisted.
type ReviewEvent struct {
	RequestID   string
	Timestamp   time.Time
	Kind        string // "lookup", "submit", or "delete"
	Tool        string
	ReviewID    string // rendered _id for submit/delete, empty for lookups
	Matches     uint32 // number of documents returned (lookups only)
	PublisherID string // empty for unauthenticated lookups
	StatusCode  uint16
	LatencyMs   float32
	Source      string // "api"
}

// ToolFieldMax is the max chars stored in the tool column.
const ToolFieldMax = 200

// Truncate returns the first N characters (runes) of a value for event
// storage. It never splits a multi-byte UTF-8 character.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
