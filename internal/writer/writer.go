// Package writer persists canonical entities idempotently.
package writer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/normalize"
	"github.com/sells-group/congress-cli/internal/resilience"
	"github.com/sells-group/congress-cli/internal/store"
)

// Writer upserts entities and ingestion records. Writes sharing a lock key
// are serialized in process; the store's compare-and-swap covers other
// processes.
type Writer struct {
	st       store.Store
	attempts int
	locks    *keyedMutex
	log      *zap.Logger
}

// New creates a Writer. attempts bounds write-conflict retries.
func New(st store.Store, attempts int) *Writer {
	return &Writer{
		st:       st,
		attempts: attempts,
		locks:    newKeyedMutex(),
		log:      zap.L().With(zap.String("component", "writer")),
	}
}

// Upsert stores e and reports what happened. An entity whose hash equals the
// stored one is not written.
func (w *Writer) Upsert(ctx context.Context, e model.Entity) (model.Outcome, error) {
	unlock := w.locks.Lock(e.LockKey())
	defer unlock()

	cfg := resilience.ConflictRetryConfig(w.attempts)
	cfg.OnRetry = resilience.RetryLogger("writer", e.EntityKey())
	outcome, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (model.Outcome, error) {
		return w.upsertOnce(ctx, e)
	})
	if err != nil {
		return "", err
	}
	w.log.Debug("upserted",
		zap.String("kind", string(e.EntityKind())),
		zap.String("key", e.EntityKey()),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

func (w *Writer) upsertOnce(ctx context.Context, e model.Entity) (model.Outcome, error) {
	head, err := w.st.HeadEntity(ctx, e.EntityKind(), e.EntityKey())
	if err != nil {
		return "", err
	}
	if head == nil {
		row, err := store.EncodeEntity(e)
		if err != nil {
			return "", err
		}
		if err := w.st.InsertEntity(ctx, row); err != nil {
			return "", err
		}
		return model.OutcomeCreated, nil
	}
	if head.ContentHash == e.Hash() {
		return model.OutcomeUnchanged, nil
	}

	switch v := e.(type) {
	case *model.BillVersion:
		if model.SourceFormat(head.SourceFormat).Rank() > v.SourceFormat.Rank() {
			return model.OutcomeUnchanged, nil
		}
	case *model.Bill:
		merged, applied, err := w.mergeBill(ctx, v)
		if err != nil {
			return "", err
		}
		if !applied {
			return model.OutcomeUnchanged, nil
		}
		e = merged
	}

	row, err := store.EncodeEntity(e)
	if err != nil {
		return "", err
	}
	if err := w.st.ReplaceEntity(ctx, row, head.ContentHash); err != nil {
		return "", err
	}
	return model.OutcomeUpdated, nil
}

func (w *Writer) mergeBill(ctx context.Context, incoming *model.Bill) (*model.Bill, bool, error) {
	row, err := w.st.GetEntity(ctx, model.EntityBill, incoming.EntityKey())
	if err != nil {
		return nil, false, err
	}
	if row == nil {
		return nil, false, resilience.Newf(resilience.WriteConflict, "writer: merge bill", "bill %s removed during merge", incoming.Key)
	}
	var stored model.Bill
	if err := json.Unmarshal(row.Payload, &stored); err != nil {
		return nil, false, eris.Wrapf(err, "writer: decode stored bill %s", incoming.Key)
	}
	merged, applied := normalize.MergeBill(&stored, incoming)
	return merged, applied, nil
}

// Record writes the ingestion record of one artifact attempt.
func (w *Writer) Record(ctx context.Context, rec model.ArtifactRecord) error {
	if err := w.st.PutArtifact(ctx, rec); err != nil {
		return eris.Wrapf(err, "writer: record %s", rec.ArtifactKey)
	}
	return nil
}

// keyedMutex hands out one mutex per key and drops it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
