package recorder

import (
	"sync"
	"time"
)

// Timestamper issues strictly increasing millisecond timestamps. The
// upstream pose model rejects non-increasing timestamps, and wall-clock
// reads can repeat under sub-millisecond frame rates or clock stalls,
// so a reading at or below the previous value is replaced by last+1.
type Timestamper struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewTimestamper() *Timestamper {
	return &Timestamper{now: time.Now}
}

// Next returns the next timestamp in the sequence.
func (t *Timestamper) Next() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.now().UnixMilli()
	if ts <= t.last {
		ts = t.last + 1
	}
	t.last = ts
	return ts
}

// Reset clears the sequence, for when a new producer context begins.
func (t *Timestamper) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = 0
}
