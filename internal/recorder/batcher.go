package recorder

import "github.com/avitale/postura/internal/store"

// batcher accumulates frame records until a size threshold, then seals
// them into a store.Batch with a contiguous global frame offset. It is
// not safe for concurrent use; the owning Recorder serializes access.
type batcher struct {
	size   int
	sealed int64
	buf    []store.FrameRecord
}

func newBatcher(size int) *batcher {
	return &batcher{size: size, buf: make([]store.FrameRecord, 0, size)}
}

// append adds one record. When the buffer reaches the batch size it is
// sealed and returned, and accumulation restarts at the next offset.
func (b *batcher) append(rec store.FrameRecord) (store.Batch, bool) {
	b.buf = append(b.buf, rec)
	if len(b.buf) < b.size {
		return store.Batch{}, false
	}
	return b.seal(), true
}

// drain seals whatever is buffered, even below threshold. Used on stop.
func (b *batcher) drain() (store.Batch, bool) {
	if len(b.buf) == 0 {
		return store.Batch{}, false
	}
	return b.seal(), true
}

func (b *batcher) reset() {
	b.sealed = 0
	b.buf = b.buf[:0]
}

func (b *batcher) pending() int {
	return len(b.buf)
}

func (b *batcher) seal() store.Batch {
	batch := store.Batch{
		Offset: b.sealed,
		Frames: b.buf,
	}
	b.sealed += int64(len(b.buf))
	b.buf = make([]store.FrameRecord, 0, b.size)
	return batch
}
