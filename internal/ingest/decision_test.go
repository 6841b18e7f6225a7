package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/congress-cli/internal/model"
)

func TestDecide(t *testing.T) {
	mtime := time.Date(2023, 3, 30, 12, 0, 0, 123, time.UTC)
	d := model.Descriptor{Congress: 118, BillType: model.BillTypeHR, BillNumber: 1, Kind: model.KindBillSource, Size: 2048, ModTime: mtime}

	rec := func(status model.ArtifactStatus, size int64, mt time.Time) *model.ArtifactRecord {
		r := model.NewArtifactRecord(d)
		r.Status = status
		r.Size = size
		r.ModTime = mt
		return &r
	}

	tests := []struct {
		name string
		rec  *model.ArtifactRecord
		want Decision
	}{
		{name: "never attempted", rec: nil, want: DecideProcess},
		{name: "succeeded same file", rec: rec(model.ArtifactSucceeded, 2048, mtime), want: DecideSkip},
		{name: "succeeded different size", rec: rec(model.ArtifactSucceeded, 4096, mtime), want: DecideProcess},
		{name: "succeeded newer mtime", rec: rec(model.ArtifactSucceeded, 2048, mtime.Add(time.Second)), want: DecideProcess},
		{name: "failed same file", rec: rec(model.ArtifactFailed, 2048, mtime), want: DecideProcess},
		{name: "pending same file", rec: rec(model.ArtifactPending, 2048, mtime), want: DecideProcess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.rec, d))
		})
	}
}
