package writer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
	"github.com/sells-group/congress-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var hr1 = model.BillKey{Congress: 118, Type: model.BillTypeHR, Number: 1}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "w.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func version(code string, format model.SourceFormat, hash string) *model.BillVersion {
	return &model.BillVersion{Bill: hr1, VersionCode: code, SourceFormat: format, Body: hash, ContentHash: hash}
}

func TestUpsertOutcomes(t *testing.T) {
	s := newTestStore(t)
	w := New(s, 3)
	ctx := context.Background()

	out, err := w.Upsert(ctx, version("01", model.FormatTxt, "a"))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCreated, out)

	out, err = w.Upsert(ctx, version("01", model.FormatTxt, "a"))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeUnchanged, out)

	out, err = w.Upsert(ctx, version("01", model.FormatTxt, "b"))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeUpdated, out)

	got, err := store.NewReader(s).Version(ctx, hr1, "01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.ContentHash)
}

func TestUpsertFormatPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		stored model.SourceFormat
		next   model.SourceFormat
		want   model.Outcome
	}{
		{name: "txt over pdf", stored: model.FormatPDF, next: model.FormatTxt, want: model.OutcomeUpdated},
		{name: "html over pdf", stored: model.FormatPDF, next: model.FormatHTML, want: model.OutcomeUpdated},
		{name: "html under txt", stored: model.FormatTxt, next: model.FormatHTML, want: model.OutcomeUnchanged},
		{name: "pdf under html", stored: model.FormatHTML, next: model.FormatPDF, want: model.OutcomeUnchanged},
		{name: "same format", stored: model.FormatHTML, next: model.FormatHTML, want: model.OutcomeUpdated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			w := New(s, 3)
			ctx := context.Background()

			_, err := w.Upsert(ctx, version("02", tt.stored, "first"))
			require.NoError(t, err)
			out, err := w.Upsert(ctx, version("02", tt.next, "second"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)

			got, err := store.NewReader(s).Version(ctx, hr1, "02")
			require.NoError(t, err)
			if tt.want == model.OutcomeUnchanged {
				assert.Equal(t, tt.stored, got.SourceFormat)
			} else {
				assert.Equal(t, tt.next, got.SourceFormat)
			}
		})
	}
}

func TestUpsertBillMerge(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2023, 3, d, 0, 0, 0, 0, time.UTC) }
	older := &model.Bill{
		Key:            hr1,
		Title:          "Lower Energy Costs Act",
		SourceModified: day(10),
		ContentHash:    "h1",
		Actions: []model.Action{
			{Seq: 1, Date: day(14), Chamber: model.ChamberHouse, Description: "Introduced in House"},
			{Seq: 2, Date: day(20), Chamber: model.ChamberHouse, Description: "Reported"},
		},
	}
	newer := &model.Bill{
		Key:            hr1,
		Title:          "Lower Energy Costs Act",
		SourceModified: day(31),
		ContentHash:    "h2",
		Actions: []model.Action{
			{Seq: 1, Date: day(20), Chamber: model.ChamberHouse, Description: "Reported (Amended)"},
			{Seq: 2, Date: day(30), Chamber: model.ChamberHouse, Description: "Passed House"},
		},
	}

	t.Run("newer source merges actions", func(t *testing.T) {
		s := newTestStore(t)
		w := New(s, 3)
		ctx := context.Background()

		_, err := w.Upsert(ctx, older)
		require.NoError(t, err)
		out, err := w.Upsert(ctx, newer)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeUpdated, out)

		bill, err := store.NewReader(s).Bill(ctx, hr1)
		require.NoError(t, err)
		require.Len(t, bill.Actions, 3)
		assert.Equal(t, "Introduced in House", bill.Actions[0].Description)
		assert.Equal(t, "Reported (Amended)", bill.Actions[1].Description)
		assert.Equal(t, "Passed House", bill.Actions[2].Description)
		assert.Equal(t, 3, bill.Actions[2].Seq)
		assert.Equal(t, "h2", bill.ContentHash)
	})

	t.Run("older source is ignored", func(t *testing.T) {
		s := newTestStore(t)
		w := New(s, 3)
		ctx := context.Background()

		_, err := w.Upsert(ctx, newer)
		require.NoError(t, err)
		out, err := w.Upsert(ctx, older)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeUnchanged, out)

		bill, err := store.NewReader(s).Bill(ctx, hr1)
		require.NoError(t, err)
		assert.Equal(t, "h2", bill.ContentHash)
		assert.Len(t, bill.Actions, 2)
	})
}

// racingStore loses the first n compare-and-swap attempts.
type racingStore struct {
	store.Store
	mu    sync.Mutex
	loses int
	calls int
}

func (r *racingStore) InsertEntity(ctx context.Context, row store.EntityRow) error {
	r.mu.Lock()
	r.calls++
	lose := r.loses > 0
	if lose {
		r.loses--
	}
	r.mu.Unlock()
	if lose {
		return resilience.Newf(resilience.WriteConflict, "test: insert", "%s lost race", row.Key)
	}
	return r.Store.InsertEntity(ctx, row)
}

func TestUpsertRetriesConflicts(t *testing.T) {
	t.Run("retried with a fresh read", func(t *testing.T) {
		rs := &racingStore{Store: newTestStore(t), loses: 2}
		w := New(rs, 3)

		out, err := w.Upsert(context.Background(), version("01", model.FormatTxt, "a"))
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeCreated, out)
		assert.Equal(t, 3, rs.calls)
	})

	t.Run("bounded attempts", func(t *testing.T) {
		rs := &racingStore{Store: newTestStore(t), loses: 5}
		w := New(rs, 2)

		_, err := w.Upsert(context.Background(), version("01", model.FormatTxt, "a"))
		assert.True(t, resilience.IsKind(err, resilience.WriteConflict), "got %v", err)
		assert.Equal(t, 2, rs.calls)
	})
}

func TestUpsertConcurrentSameKey(t *testing.T) {
	s := newTestStore(t)
	w := New(s, 3)
	ctx := context.Background()

	const n = 16
	outcomes := make([]model.Outcome, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := w.Upsert(ctx, version("01", model.FormatTxt, "same"))
			assert.NoError(t, err)
			outcomes[i] = out
		}()
	}
	wg.Wait()

	counts := map[model.Outcome]int{}
	for _, o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, 1, counts[model.OutcomeCreated])
	assert.Equal(t, n-1, counts[model.OutcomeUnchanged])
	assert.Zero(t, w.locks.size())
}

func TestRecord(t *testing.T) {
	s := newTestStore(t)
	w := New(s, 3)
	ctx := context.Background()

	rec := model.NewArtifactRecord(model.Descriptor{Congress: 118, BillType: model.BillTypeHR, BillNumber: 1, Kind: model.KindBillSource, Path: "p"})
	rec.Status = model.ArtifactSucceeded
	rec.Outcome = model.OutcomeCreated
	require.NoError(t, w.Record(ctx, rec))

	got, err := s.GetArtifact(ctx, rec.ArtifactKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ArtifactSucceeded, got.Status)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		unlock()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("lock on a acquired while held")
	case <-time.After(30 * time.Millisecond):
	}
	unlockA()
	<-done
	unlockB()
	assert.Zero(t, k.size())
}
