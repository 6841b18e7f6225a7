package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/congress-cli/internal/model"
)

func desc(ordinal int64, number int) model.Descriptor {
	return model.Descriptor{
		Ordinal:    ordinal,
		Congress:   118,
		BillType:   model.BillTypeHR,
		BillNumber: number,
		Kind:       model.KindBillSource,
	}
}

func TestWatermarkOutOfOrder(t *testing.T) {
	w := newWatermark(0)

	_, moved := w.checkpoint()
	assert.False(t, moved)

	w.done(desc(2, 2))
	w.done(desc(3, 3))
	_, moved = w.checkpoint()
	assert.False(t, moved, "ordinal 1 still in flight")

	w.done(desc(1, 1))
	cp, moved := w.checkpoint()
	assert.True(t, moved)
	assert.Equal(t, int64(3), cp.Ordinal)
	assert.Equal(t, "hr-000003", cp.BillDir)
	assert.Equal(t, "118/hr/3/bill_source", cp.ArtifactKey)

	_, moved = w.checkpoint()
	assert.False(t, moved, "unchanged since last call")

	w.done(desc(5, 5))
	_, moved = w.checkpoint()
	assert.False(t, moved)
}

func TestWatermarkFromCheckpoint(t *testing.T) {
	w := newWatermark(10)
	w.done(desc(11, 4))
	cp, moved := w.checkpoint()
	assert.True(t, moved)
	assert.Equal(t, int64(11), cp.Ordinal)
}

func TestWatermarkRetryAfterFailedSave(t *testing.T) {
	w := newWatermark(0)
	w.retry()
	_, moved := w.checkpoint()
	assert.False(t, moved, "nothing finished yet")

	w.done(desc(1, 1))
	_, moved = w.checkpoint()
	assert.True(t, moved)

	w.retry()
	cp, moved := w.checkpoint()
	assert.True(t, moved)
	assert.Equal(t, int64(1), cp.Ordinal)
}
