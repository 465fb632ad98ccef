package chat

import (
	"testing"
	"time"
)

func TestNewMessageID_MonotonicWithinSameMillisecond(t *testing.T) {
	now := time.Now().UTC()

	prev, err := NewMessageID(now)
	if err != nil {
		t.Fatalf("NewMessageID: %v", err)
	}

	// Equal timestamps must still mint strictly increasing ids, because the
	// stores tiebreak history order by id.
	for i := 0; i < 64; i++ {
		id, err := NewMessageID(now)
		if err != nil {
			t.Fatalf("NewMessageID: %v", err)
		}
		if id <= prev {
			t.Fatalf("id not increasing at mint %d: %s <= %s", i, id, prev)
		}
		prev = id
	}
}

func TestNewMessageID_ZeroTimeDefaults(t *testing.T) {
	id, err := NewMessageID(time.Time{})
	if err != nil {
		t.Fatalf("NewMessageID: %v", err)
	}
	if len(id) != 26 {
		t.Fatalf("unexpected id length: %d", len(id))
	}
}
