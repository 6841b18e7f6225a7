package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresHeadEntity(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT content_hash, source_format FROM entities`).
		WithArgs("bill_version", "118/hr/1/01").
		WillReturnRows(pgxmock.NewRows([]string{"content_hash", "source_format"}).AddRow("abc", "html"))
	mock.ExpectQuery(`SELECT content_hash, source_format FROM entities`).
		WithArgs("bill_version", "118/hr/1/02").
		WillReturnError(pgx.ErrNoRows)

	head, err := s.HeadEntity(ctx, model.EntityBillVersion, "118/hr/1/01")
	require.NoError(t, err)
	assert.Equal(t, &Head{ContentHash: "abc", SourceFormat: "html"}, head)

	head, err = s.HeadEntity(ctx, model.EntityBillVersion, "118/hr/1/02")
	require.NoError(t, err)
	assert.Nil(t, head)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertEntity(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		conflict bool
	}{
		{name: "inserted", affected: 1},
		{name: "key exists", affected: 0, conflict: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockPostgresStore(t)
			row := billRow(t, "a", "h1")

			mock.ExpectExec(`INSERT INTO entities .* ON CONFLICT \(kind, entity_key\) DO NOTHING`).
				WithArgs("bill", "118/hr/1", 118, "118/hr/1", "", "h1", string(row.Payload)).
				WillReturnResult(pgxmock.NewResult("INSERT", tt.affected))

			err := s.InsertEntity(context.Background(), row)
			if tt.conflict {
				assert.True(t, resilience.IsKind(err, resilience.WriteConflict), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresReplaceEntity(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	row := billRow(t, "b", "h2")

	mock.ExpectExec(`UPDATE entities SET .* WHERE kind = \$6 AND entity_key = \$7 AND content_hash = \$8`).
		WithArgs(118, "118/hr/1", "", "h2", string(row.Payload), "bill", "118/hr/1", "h1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE entities SET`).
		WithArgs(118, "118/hr/1", "", "h2", string(row.Payload), "bill", "118/hr/1", "stale").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.ReplaceEntity(context.Background(), row, "h1"))
	err := s.ReplaceEntity(context.Background(), row, "stale")
	assert.True(t, resilience.IsKind(err, resilience.WriteConflict), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListEntitiesArgs(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM entities WHERE kind = \$1 AND congress = \$2 AND bill_key = \$3 ORDER BY entity_key LIMIT \$4 OFFSET \$5`).
		WithArgs("cost_estimate", 118, "118/hr/1", 10, 20).
		WillReturnRows(pgxmock.NewRows([]string{"kind", "entity_key", "congress", "bill_key", "source_format", "content_hash", "payload", "created_at", "updated_at"}).
			AddRow("cost_estimate", "118/hr/1/2023-03-28", 118, "118/hr/1", "", "h", []byte(`{}`), now, now))

	rows, err := s.ListEntities(context.Background(), model.EntityCostEstimate, EntityFilter{Congress: 118, BillKey: "118/hr/1", Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "118/hr/1/2023-03-28", rows[0].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPutVoteLinks(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	link := func(roll int) model.VoteLink {
		return model.VoteLink{Vote: model.VoteKey{Congress: 118, Chamber: model.ChamberHouse, RollCall: roll}, Status: model.LinkUnresolved, UpdatedAt: now}
	}

	t.Run("single link uses plain upsert", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectExec(`INSERT INTO vote_links .* ON CONFLICT \(vote_key\) DO UPDATE SET`).
			WithArgs("118/house/7", 118, "unresolved", "", 0, 0.0, nil, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.PutVoteLinks(context.Background(), []model.VoteLink{link(7)}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("batch uses bulk upsert", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_vote_links"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_vote_links"}, voteLinkUpsert.Columns).WillReturnResult(2)
		mock.ExpectExec(`INSERT INTO "vote_links"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
		mock.ExpectCommit()

		require.NoError(t, s.PutVoteLinks(context.Background(), []model.VoteLink{link(7), link(8)}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty is a no-op", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		require.NoError(t, s.PutVoteLinks(context.Background(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresGetVoteLink(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	updated := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT vote_key, status, bill_key .* FROM vote_links WHERE vote_key = \$1`).
		WithArgs("118/house/182").
		WillReturnRows(pgxmock.NewRows([]string{"vote_key", "status", "bill_key", "action_seq", "confidence", "candidates", "updated_at"}).
			AddRow("118/house/182", "resolved", "118/hr/1", 4, 0.9, []byte(`[{"bill":{"congress":118,"bill_type":"hr","number":1},"action_seq":4,"score":0.9}]`), updated))

	l, err := s.GetVoteLink(context.Background(), "118/house/182")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, model.LinkResolved, l.Status)
	require.NotNil(t, l.Bill)
	assert.Equal(t, hr1, *l.Bill)
	require.Len(t, l.Candidates, 1)
	assert.Equal(t, 4, l.Candidates[0].ActionSeq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFinishRunMissing(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`UPDATE ingest_runs SET`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), &model.IngestRun{ID: "nope", Status: model.RunFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLockCongress(t *testing.T) {
	t.Run("held until release", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WithArgs(congressLockSpace | 118).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectCommit()

		release, err := s.LockCongress(context.Background(), 118)
		require.NoError(t, err)
		release()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock failure rolls back", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnError(fmt.Errorf("canceling statement"))
		mock.ExpectRollback()

		_, err := s.LockCongress(context.Background(), 118)
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
