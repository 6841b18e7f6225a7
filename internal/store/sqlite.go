package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/congress-cli/internal/db"
	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection: SQLite has a single writer and busy retries across
	// connections would surface as spurious write failures.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, locks: make(map[int]*sync.Mutex)}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	kind          TEXT NOT NULL,
	entity_key    TEXT NOT NULL,
	congress      INTEGER NOT NULL,
	bill_key      TEXT NOT NULL DEFAULT '',
	source_format TEXT NOT NULL DEFAULT '',
	content_hash  TEXT NOT NULL,
	payload       TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	PRIMARY KEY (kind, entity_key)
);

CREATE TABLE IF NOT EXISTS vote_links (
	vote_key   TEXT PRIMARY KEY,
	congress   INTEGER NOT NULL,
	status     TEXT NOT NULL,
	bill_key   TEXT NOT NULL DEFAULT '',
	action_seq INTEGER NOT NULL DEFAULT 0,
	confidence REAL NOT NULL DEFAULT 0,
	candidates TEXT,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS artifact_records (
	artifact_key    TEXT PRIMARY KEY,
	congress        INTEGER NOT NULL,
	bill_type       TEXT NOT NULL,
	bill_number     INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	sub_id          TEXT NOT NULL DEFAULT '',
	path            TEXT NOT NULL,
	size            INTEGER NOT NULL,
	mod_time_ns     INTEGER NOT NULL,
	content_hash    TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	outcome         TEXT NOT NULL DEFAULT '',
	error_kind      TEXT NOT NULL DEFAULT '',
	error_detail    TEXT NOT NULL DEFAULT '',
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_attempt_at INTEGER NOT NULL,
	run_id          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS checkpoints (
	name         TEXT PRIMARY KEY,
	ordinal      INTEGER NOT NULL,
	artifact_key TEXT NOT NULL,
	congress     INTEGER NOT NULL,
	bill_dir     TEXT NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id           TEXT PRIMARY KEY,
	started_at   INTEGER NOT NULL,
	completed_at INTEGER,
	status       TEXT NOT NULL,
	root         TEXT NOT NULL,
	resume       INTEGER NOT NULL DEFAULT 0,
	summary      TEXT,
	error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_entities_congress ON entities(kind, congress);
CREATE INDEX IF NOT EXISTS idx_entities_bill ON entities(bill_key);
CREATE INDEX IF NOT EXISTS idx_vote_links_congress ON vote_links(congress);
CREATE INDEX IF NOT EXISTS idx_artifact_records_status ON artifact_records(status);
CREATE INDEX IF NOT EXISTS idx_artifact_records_congress ON artifact_records(congress, kind);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
`

var (
	sqliteUpsertLink       = db.MustUpsertSQL(voteLinkUpsert, db.Question)
	sqliteUpsertArtifact   = db.MustUpsertSQL(artifactUpsert, db.Question)
	sqliteUpsertCheckpoint = db.MustUpsertSQL(checkpointUpsert, db.Question)
)

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Entities ---

func (s *SQLiteStore) HeadEntity(ctx context.Context, kind model.EntityKind, key string) (*Head, error) {
	var h Head
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash, source_format FROM entities WHERE kind = ? AND entity_key = ?`,
		string(kind), key,
	).Scan(&h.ContentHash, &h.SourceFormat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: head %s %s", kind, key)
	}
	return &h, nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, kind model.EntityKind, key string) (*EntityRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND entity_key = ?`,
		string(kind), key,
	)
	e, err := scanSQLiteEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s %s", kind, key)
	}
	return e, nil
}

func (s *SQLiteStore) InsertEntity(ctx context.Context, row EntityRow) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (kind, entity_key, congress, bill_key, source_format, content_hash, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (kind, entity_key) DO NOTHING`,
		string(row.Kind), row.Key, row.Congress, row.BillKey, row.SourceFormat, row.ContentHash, string(row.Payload), nanos(now), nanos(now),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert %s %s", row.Kind, row.Key)
	}
	return conflictUnlessAffected(res, "sqlite: insert", row)
}

func (s *SQLiteStore) ReplaceEntity(ctx context.Context, row EntityRow, prevHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET congress = ?, bill_key = ?, source_format = ?, content_hash = ?, payload = ?, updated_at = ?
		 WHERE kind = ? AND entity_key = ? AND content_hash = ?`,
		row.Congress, row.BillKey, row.SourceFormat, row.ContentHash, string(row.Payload), nanos(time.Now().UTC()),
		string(row.Kind), row.Key, prevHash,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: replace %s %s", row.Kind, row.Key)
	}
	return conflictUnlessAffected(res, "sqlite: replace", row)
}

func (s *SQLiteStore) ListEntities(ctx context.Context, kind model.EntityKind, filter EntityFilter) ([]EntityRow, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE kind = ?`
	args := []any{string(kind)}

	if filter.Congress > 0 {
		query += ` AND congress = ?`
		args = append(args, filter.Congress)
	}
	if filter.BillKey != "" {
		query += ` AND bill_key = ?`
		args = append(args, filter.BillKey)
	}
	query += ` ORDER BY entity_key LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", kind)
	}
	defer rows.Close()

	var out []EntityRow
	for rows.Next() {
		e, err := scanSQLiteEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

func (s *SQLiteStore) CountEntities(ctx context.Context, kind model.EntityKind, congress int) (int, error) {
	query := `SELECT COUNT(*) FROM entities WHERE kind = ?`
	args := []any{string(kind)}
	if congress > 0 {
		query += ` AND congress = ?`
		args = append(args, congress)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: count %s", kind)
	}
	return n, nil
}

// --- Vote links ---

func (s *SQLiteStore) PutVoteLinks(ctx context.Context, links []model.VoteLink) error {
	if len(links) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: put vote links: begin tx")
	}
	defer tx.Rollback()

	for _, l := range links {
		args, err := voteLinkArgs(l, nanos(l.UpdatedAt))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsertLink, args...); err != nil {
			return eris.Wrapf(err, "sqlite: put vote link %s", l.Vote)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: put vote links: commit")
}

func (s *SQLiteStore) GetVoteLink(ctx context.Context, voteKey string) (*model.VoteLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+voteLinkColumns+` FROM vote_links WHERE vote_key = ?`, voteKey)
	l, err := scanSQLiteVoteLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get vote link %s", voteKey)
	}
	return l, nil
}

func (s *SQLiteStore) ListVoteLinks(ctx context.Context, congress int) ([]model.VoteLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+voteLinkColumns+` FROM vote_links WHERE congress = ? ORDER BY vote_key`, congress)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list vote links")
	}
	defer rows.Close()

	var out []model.VoteLink
	for rows.Next() {
		l, err := scanSQLiteVoteLink(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vote link")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list vote links iterate")
}

func scanSQLiteVoteLink(row scannable) (*model.VoteLink, error) {
	var (
		l          model.VoteLink
		voteKey    string
		billKey    string
		candidates sql.NullString
		updated    int64
	)
	if err := row.Scan(&voteKey, &l.Status, &billKey, &l.ActionSeq, &l.Confidence, &candidates, &updated); err != nil {
		return nil, err
	}
	l.UpdatedAt = fromNanos(updated)
	if err := decodeVoteLink(&l, voteKey, billKey, []byte(candidates.String)); err != nil {
		return nil, err
	}
	return &l, nil
}

// --- Ingestion log ---

func (s *SQLiteStore) PutArtifact(ctx context.Context, rec model.ArtifactRecord) error {
	if _, err := s.db.ExecContext(ctx, sqliteUpsertArtifact, artifactArgs(rec, nanos(rec.LastAttemptAt))...); err != nil {
		return eris.Wrapf(err, "sqlite: put artifact %s", rec.ArtifactKey)
	}
	return nil
}

func (s *SQLiteStore) GetArtifact(ctx context.Context, artifactKey string) (*model.ArtifactRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifact_records WHERE artifact_key = ?`, artifactKey)
	rec, err := scanSQLiteArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get artifact %s", artifactKey)
	}
	return rec, nil
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]model.ArtifactRecord, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifact_records WHERE 1=1`
	var args []any

	if filter.Congress > 0 {
		query += ` AND congress = ?`
		args = append(args, filter.Congress)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY artifact_key LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list artifacts")
	}
	defer rows.Close()

	var out []model.ArtifactRecord
	for rows.Next() {
		rec, err := scanSQLiteArtifact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan artifact")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list artifacts iterate")
}

func scanSQLiteArtifact(row scannable) (*model.ArtifactRecord, error) {
	var (
		r       model.ArtifactRecord
		modTime int64
		last    int64
	)
	err := row.Scan(&r.ArtifactKey, &r.Congress, &r.BillType, &r.BillNumber, &r.Kind, &r.SubID, &r.Path, &r.Size,
		&modTime, &r.ContentHash, &r.Status, &r.Outcome, &r.ErrorKind, &r.ErrorDetail, &r.Attempts, &last, &r.RunID)
	if err != nil {
		return nil, err
	}
	r.ModTime = fromNanos(modTime)
	r.LastAttemptAt = fromNanos(last)
	return &r, nil
}

// --- Checkpoints ---

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, name string, cp model.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, sqliteUpsertCheckpoint,
		name, cp.Ordinal, cp.ArtifactKey, cp.Congress, cp.BillDir, nanos(cp.UpdatedAt))
	return eris.Wrapf(err, "sqlite: save checkpoint %s", name)
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, name string) (model.Checkpoint, error) {
	var (
		cp      model.Checkpoint
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT ordinal, artifact_key, congress, bill_dir, updated_at FROM checkpoints WHERE name = ?`, name,
	).Scan(&cp.Ordinal, &cp.ArtifactKey, &cp.Congress, &cp.BillDir, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Checkpoint{}, nil
	}
	if err != nil {
		return model.Checkpoint{}, eris.Wrapf(err, "sqlite: load checkpoint %s", name)
	}
	cp.UpdatedAt = fromNanos(updated)
	return cp, nil
}

// --- Runs ---

func (s *SQLiteStore) StartRun(ctx context.Context, run *model.IngestRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, started_at, status, root, resume) VALUES (?, ?, ?, ?, ?)`,
		run.ID, nanos(run.StartedAt), string(run.Status), run.Root, run.Resume,
	)
	return eris.Wrapf(err, "sqlite: start run %s", run.ID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.IngestRun) error {
	summary, err := marshalSummary(run.Summary)
	if err != nil {
		return err
	}
	var completed int64
	if run.CompletedAt != nil {
		completed = nanos(*run.CompletedAt)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, completed_at = ?, summary = ?, error = ? WHERE id = ?`,
		string(run.Status), completed, string(summary), run.Error, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, completed_at, status, root, resume, summary, error
		 FROM ingest_runs ORDER BY started_at DESC LIMIT ?`, listLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.IngestRun
	for rows.Next() {
		var (
			r         model.IngestRun
			started   int64
			completed sql.NullInt64
			summary   sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &completed, &r.Status, &r.Root, &r.Resume, &summary, &r.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.StartedAt = fromNanos(started)
		if completed.Valid && completed.Int64 != 0 {
			t := fromNanos(completed.Int64)
			r.CompletedAt = &t
		}
		if summary.Valid && summary.String != "" {
			_ = json.Unmarshal([]byte(summary.String), &r.Summary)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- Locks ---

// LockCongress uses a process-local mutex. SQLite's single writer covers
// other processes.
func (s *SQLiteStore) LockCongress(ctx context.Context, congress int) (func(), error) {
	s.mu.Lock()
	m, ok := s.locks[congress]
	if !ok {
		m = &sync.Mutex{}
		s.locks[congress] = m
	}
	s.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return m.Unlock, nil
	case <-ctx.Done():
		// Release the lock once the pending acquisition completes.
		go func() {
			<-acquired
			m.Unlock()
		}()
		return nil, eris.Wrapf(ctx.Err(), "sqlite: lock congress %d", congress)
	}
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func conflictUnlessAffected(res sql.Result, op string, row EntityRow) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return resilience.Newf(resilience.WriteConflict, op, "%s %s changed concurrently", row.Kind, row.Key)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

const entityColumns = `kind, entity_key, congress, bill_key, source_format, content_hash, payload, created_at, updated_at`

func scanSQLiteEntity(row scannable) (*EntityRow, error) {
	var (
		e                EntityRow
		payload          string
		created, updated int64
	)
	if err := row.Scan(&e.Kind, &e.Key, &e.Congress, &e.BillKey, &e.SourceFormat, &e.ContentHash, &payload, &created, &updated); err != nil {
		return nil, err
	}
	e.Payload = []byte(payload)
	e.CreatedAt = fromNanos(created)
	e.UpdatedAt = fromNanos(updated)
	return &e, nil
}
