package ecu

import "time"

// ErrorKind classifies a failed transaction.
type ErrorKind int

const (
	KindChecksum ErrorKind = iota
	KindTimeout
	KindDTC
)

func (k ErrorKind) String() string {
	switch k {
	case KindChecksum:
		return "checksum"
	case KindTimeout:
		return "timeout"
	case KindDTC:
		return "dtc"
	default:
		return "unknown"
	}
}

// ErrorEntry is one record in the bounded error log.
type ErrorEntry struct {
	Kind ErrorKind `json:"kind"`
	At   time.Time `json:"at"`
}

// ErrorLog is an append-only, capacity-bounded record of transaction
// failures. When full it saturates: new entries are counted in Dropped
// but not stored. Not safe for concurrent use; callers serialize access
// the same way they serialize transactions.
type ErrorLog struct {
	entries []ErrorEntry
	dropped int
	max     int
}

// NewErrorLog creates a log that stores at most capacity entries.
func NewErrorLog(capacity int) *ErrorLog {
	return &ErrorLog{entries: make([]ErrorEntry, 0, capacity), max: capacity}
}

// Append records a failure of the given kind.
func (l *ErrorLog) Append(kind ErrorKind) {
	if len(l.entries) >= l.max {
		l.dropped++
		return
	}
	l.entries = append(l.entries, ErrorEntry{Kind: kind, At: time.Now()})
}

// Entries returns a copy of the stored entries.
func (l *ErrorLog) Entries() []ErrorEntry {
	out := make([]ErrorEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of stored entries.
func (l *ErrorLog) Len() int { return len(l.entries) }

// Dropped returns how many entries were discarded after the log filled.
func (l *ErrorLog) Dropped() int { return l.dropped }
