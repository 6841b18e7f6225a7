package ingest

import (
	"sync"

	"github.com/sells-group/congress-cli/internal/archive"
	"github.com/sells-group/congress-cli/internal/model"
)

// watermark tracks the highest ordinal below which every descriptor has
// finished, whatever order the workers finish in.
type watermark struct {
	mu      sync.Mutex
	next    int64
	pending map[int64]model.Descriptor
	last    *model.Descriptor
	moved   bool
}

func newWatermark(after int64) *watermark {
	return &watermark{next: after + 1, pending: make(map[int64]model.Descriptor)}
}

// done marks d finished and advances the mark over every contiguous
// finished ordinal.
func (w *watermark) done(d model.Descriptor) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[d.Ordinal] = d
	for {
		cur, ok := w.pending[w.next]
		if !ok {
			return
		}
		delete(w.pending, w.next)
		w.last = &cur
		w.moved = true
		w.next++
	}
}

// checkpoint returns the checkpoint at the mark and whether it moved since
// the previous call.
func (w *watermark) checkpoint() (model.Checkpoint, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.last == nil || !w.moved {
		return model.Checkpoint{}, false
	}
	w.moved = false
	return archive.CheckpointAt(*w.last), true
}

// retry makes the next checkpoint call report the mark again, after a
// failed save.
func (w *watermark) retry() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last != nil {
		w.moved = true
	}
}
