package ecu

import "testing"

func TestErrorLogSaturates(t *testing.T) {
	l := NewErrorLog(2)
	l.Append(KindTimeout)
	l.Append(KindChecksum)
	l.Append(KindTimeout)
	l.Append(KindDTC)

	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
	if l.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", l.Dropped())
	}
	entries := l.Entries()
	if entries[0].Kind != KindTimeout || entries[1].Kind != KindChecksum {
		t.Errorf("entries = %+v, want first two appends preserved", entries)
	}
}

func TestErrorLogEntriesIsCopy(t *testing.T) {
	l := NewErrorLog(4)
	l.Append(KindTimeout)
	entries := l.Entries()
	entries[0].Kind = KindChecksum
	if l.Entries()[0].Kind != KindTimeout {
		t.Error("Entries must return a copy")
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindChecksum, "checksum"},
		{KindTimeout, "timeout"},
		{KindDTC, "dtc"},
		{ErrorKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
