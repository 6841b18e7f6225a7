package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/congress-cli/internal/db"
	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// congressLockSpace is the high half of the advisory lock key used for
// per-congress resolution locks.
const congressLockSpace int64 = 0x434f4e47 << 32

var (
	pgUpsertLink       = db.MustUpsertSQL(voteLinkUpsert, db.Dollar)
	pgUpsertArtifact   = db.MustUpsertSQL(artifactUpsert, db.Dollar)
	pgUpsertCheckpoint = db.MustUpsertSQL(checkpointUpsert, db.Dollar)
)

// preparedStatements lists queries to prepare on each new connection for
// the hottest paths of an ingestion run.
var preparedStatements = map[string]string{
	"head_entity":     `SELECT content_hash, source_format FROM entities WHERE kind = $1 AND entity_key = $2`,
	"get_artifact":    `SELECT ` + artifactColumns + ` FROM artifact_records WHERE artifact_key = $1`,
	"upsert_artifact": pgUpsertArtifact,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	kind          TEXT NOT NULL,
	entity_key    TEXT NOT NULL,
	congress      INTEGER NOT NULL,
	bill_key      TEXT NOT NULL DEFAULT '',
	source_format TEXT NOT NULL DEFAULT '',
	content_hash  TEXT NOT NULL,
	payload       JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, entity_key)
);

CREATE TABLE IF NOT EXISTS vote_links (
	vote_key   TEXT PRIMARY KEY,
	congress   INTEGER NOT NULL,
	status     TEXT NOT NULL,
	bill_key   TEXT NOT NULL DEFAULT '',
	action_seq INTEGER NOT NULL DEFAULT 0,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	candidates JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS artifact_records (
	artifact_key    TEXT PRIMARY KEY,
	congress        INTEGER NOT NULL,
	bill_type       TEXT NOT NULL,
	bill_number     INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	sub_id          TEXT NOT NULL DEFAULT '',
	path            TEXT NOT NULL,
	size            BIGINT NOT NULL,
	mod_time_ns     BIGINT NOT NULL,
	content_hash    TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	outcome         TEXT NOT NULL DEFAULT '',
	error_kind      TEXT NOT NULL DEFAULT '',
	error_detail    TEXT NOT NULL DEFAULT '',
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_attempt_at TIMESTAMPTZ NOT NULL,
	run_id          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS checkpoints (
	name         TEXT PRIMARY KEY,
	ordinal      BIGINT NOT NULL,
	artifact_key TEXT NOT NULL,
	congress     INTEGER NOT NULL,
	bill_dir     TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id           TEXT PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	status       TEXT NOT NULL,
	root         TEXT NOT NULL,
	resume       BOOLEAN NOT NULL DEFAULT false,
	summary      JSONB,
	error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_entities_congress ON entities(kind, congress);
CREATE INDEX IF NOT EXISTS idx_entities_bill ON entities(bill_key);
CREATE INDEX IF NOT EXISTS idx_vote_links_congress ON vote_links(congress);
CREATE INDEX IF NOT EXISTS idx_artifact_records_status ON artifact_records(status);
CREATE INDEX IF NOT EXISTS idx_artifact_records_congress ON artifact_records(congress, kind);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at DESC);
`

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Entities ---

func (s *PostgresStore) HeadEntity(ctx context.Context, kind model.EntityKind, key string) (*Head, error) {
	var h Head
	err := s.pool.QueryRow(ctx,
		`SELECT content_hash, source_format FROM entities WHERE kind = $1 AND entity_key = $2`,
		string(kind), key,
	).Scan(&h.ContentHash, &h.SourceFormat)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: head %s %s", kind, key)
	}
	return &h, nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, kind model.EntityKind, key string) (*EntityRow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = $1 AND entity_key = $2`,
		string(kind), key,
	)
	e, err := scanPostgresEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s %s", kind, key)
	}
	return e, nil
}

func (s *PostgresStore) InsertEntity(ctx context.Context, row EntityRow) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO entities (kind, entity_key, congress, bill_key, source_format, content_hash, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		 ON CONFLICT (kind, entity_key) DO NOTHING`,
		string(row.Kind), row.Key, row.Congress, row.BillKey, row.SourceFormat, row.ContentHash, string(row.Payload),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert %s %s", row.Kind, row.Key)
	}
	if tag.RowsAffected() == 0 {
		return resilience.Newf(resilience.WriteConflict, "postgres: insert", "%s %s changed concurrently", row.Kind, row.Key)
	}
	return nil
}

func (s *PostgresStore) ReplaceEntity(ctx context.Context, row EntityRow, prevHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET congress = $1, bill_key = $2, source_format = $3, content_hash = $4, payload = $5, updated_at = now()
		 WHERE kind = $6 AND entity_key = $7 AND content_hash = $8`,
		row.Congress, row.BillKey, row.SourceFormat, row.ContentHash, string(row.Payload),
		string(row.Kind), row.Key, prevHash,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: replace %s %s", row.Kind, row.Key)
	}
	if tag.RowsAffected() == 0 {
		return resilience.Newf(resilience.WriteConflict, "postgres: replace", "%s %s changed concurrently", row.Kind, row.Key)
	}
	return nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, kind model.EntityKind, filter EntityFilter) ([]EntityRow, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE kind = $1`
	args := []any{string(kind)}
	argIdx := 2

	if filter.Congress > 0 {
		query += fmt.Sprintf(` AND congress = $%d`, argIdx)
		args = append(args, filter.Congress)
		argIdx++
	}
	if filter.BillKey != "" {
		query += fmt.Sprintf(` AND bill_key = $%d`, argIdx)
		args = append(args, filter.BillKey)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY entity_key LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", kind)
	}
	defer rows.Close()

	var out []EntityRow
	for rows.Next() {
		e, err := scanPostgresEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

func (s *PostgresStore) CountEntities(ctx context.Context, kind model.EntityKind, congress int) (int, error) {
	query := `SELECT COUNT(*) FROM entities WHERE kind = $1`
	args := []any{string(kind)}
	if congress > 0 {
		query += ` AND congress = $2`
		args = append(args, congress)
	}
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgres: count %s", kind)
	}
	return n, nil
}

func scanPostgresEntity(row pgx.Row) (*EntityRow, error) {
	var e EntityRow
	if err := row.Scan(&e.Kind, &e.Key, &e.Congress, &e.BillKey, &e.SourceFormat, &e.ContentHash, &e.Payload, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// --- Vote links ---

// PutVoteLinks writes one link with a plain upsert and larger batches
// through a COPY-backed bulk upsert.
func (s *PostgresStore) PutVoteLinks(ctx context.Context, links []model.VoteLink) error {
	rows := make([][]any, 0, len(links))
	for _, l := range links {
		args, err := voteLinkArgs(l, l.UpdatedAt)
		if err != nil {
			return err
		}
		rows = append(rows, args)
	}

	switch len(rows) {
	case 0:
		return nil
	case 1:
		_, err := s.pool.Exec(ctx, pgUpsertLink, rows[0]...)
		return eris.Wrapf(err, "postgres: put vote link %s", links[0].Vote)
	}
	_, err := db.BulkUpsert(ctx, s.pool, voteLinkUpsert, rows)
	return eris.Wrap(err, "postgres: put vote links")
}

func (s *PostgresStore) GetVoteLink(ctx context.Context, voteKey string) (*model.VoteLink, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+voteLinkColumns+` FROM vote_links WHERE vote_key = $1`, voteKey)
	l, err := scanPostgresVoteLink(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get vote link %s", voteKey)
	}
	return l, nil
}

func (s *PostgresStore) ListVoteLinks(ctx context.Context, congress int) ([]model.VoteLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+voteLinkColumns+` FROM vote_links WHERE congress = $1 ORDER BY vote_key`, congress)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list vote links")
	}
	defer rows.Close()

	var out []model.VoteLink
	for rows.Next() {
		l, err := scanPostgresVoteLink(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan vote link")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list vote links iterate")
}

func scanPostgresVoteLink(row pgx.Row) (*model.VoteLink, error) {
	var (
		l          model.VoteLink
		voteKey    string
		billKey    string
		candidates []byte
	)
	if err := row.Scan(&voteKey, &l.Status, &billKey, &l.ActionSeq, &l.Confidence, &candidates, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.UpdatedAt = l.UpdatedAt.UTC()
	if err := decodeVoteLink(&l, voteKey, billKey, candidates); err != nil {
		return nil, err
	}
	return &l, nil
}

// --- Ingestion log ---

func (s *PostgresStore) PutArtifact(ctx context.Context, rec model.ArtifactRecord) error {
	if _, err := s.pool.Exec(ctx, pgUpsertArtifact, artifactArgs(rec, rec.LastAttemptAt)...); err != nil {
		return eris.Wrapf(err, "postgres: put artifact %s", rec.ArtifactKey)
	}
	return nil
}

func (s *PostgresStore) GetArtifact(ctx context.Context, artifactKey string) (*model.ArtifactRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+artifactColumns+` FROM artifact_records WHERE artifact_key = $1`, artifactKey)
	rec, err := scanPostgresArtifact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get artifact %s", artifactKey)
	}
	return rec, nil
}

func (s *PostgresStore) ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]model.ArtifactRecord, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifact_records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Congress > 0 {
		query += fmt.Sprintf(` AND congress = $%d`, argIdx)
		args = append(args, filter.Congress)
		argIdx++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY artifact_key LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list artifacts")
	}
	defer rows.Close()

	var out []model.ArtifactRecord
	for rows.Next() {
		rec, err := scanPostgresArtifact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan artifact")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list artifacts iterate")
}

func scanPostgresArtifact(row pgx.Row) (*model.ArtifactRecord, error) {
	var (
		r       model.ArtifactRecord
		modTime int64
	)
	err := row.Scan(&r.ArtifactKey, &r.Congress, &r.BillType, &r.BillNumber, &r.Kind, &r.SubID, &r.Path, &r.Size,
		&modTime, &r.ContentHash, &r.Status, &r.Outcome, &r.ErrorKind, &r.ErrorDetail, &r.Attempts, &r.LastAttemptAt, &r.RunID)
	if err != nil {
		return nil, err
	}
	r.ModTime = fromNanos(modTime)
	r.LastAttemptAt = r.LastAttemptAt.UTC()
	return &r, nil
}

// --- Checkpoints ---

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, name string, cp model.Checkpoint) error {
	_, err := s.pool.Exec(ctx, pgUpsertCheckpoint,
		name, cp.Ordinal, cp.ArtifactKey, cp.Congress, cp.BillDir, cp.UpdatedAt)
	return eris.Wrapf(err, "postgres: save checkpoint %s", name)
}

func (s *PostgresStore) LoadCheckpoint(ctx context.Context, name string) (model.Checkpoint, error) {
	var cp model.Checkpoint
	err := s.pool.QueryRow(ctx,
		`SELECT ordinal, artifact_key, congress, bill_dir, updated_at FROM checkpoints WHERE name = $1`, name,
	).Scan(&cp.Ordinal, &cp.ArtifactKey, &cp.Congress, &cp.BillDir, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Checkpoint{}, nil
	}
	if err != nil {
		return model.Checkpoint{}, eris.Wrapf(err, "postgres: load checkpoint %s", name)
	}
	return cp, nil
}

// --- Runs ---

func (s *PostgresStore) StartRun(ctx context.Context, run *model.IngestRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, started_at, status, root, resume) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.StartedAt, string(run.Status), run.Root, run.Resume,
	)
	return eris.Wrapf(err, "postgres: start run %s", run.ID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.IngestRun) error {
	summary, err := marshalSummary(run.Summary)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, completed_at = $2, summary = $3, error = $4 WHERE id = $5`,
		string(run.Status), run.CompletedAt, summary, run.Error, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, started_at, completed_at, status, root, resume, summary, error
		 FROM ingest_runs ORDER BY started_at DESC LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.IngestRun
	for rows.Next() {
		var (
			r       model.IngestRun
			summary []byte
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.CompletedAt, &r.Status, &r.Root, &r.Resume, &summary, &r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if summary != nil {
			_ = json.Unmarshal(summary, &r.Summary)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// --- Locks ---

// LockCongress takes a transaction-scoped advisory lock. The transaction
// stays open until release.
func (s *PostgresStore) LockCongress(ctx context.Context, congress int) (func(), error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lock congress %d: begin tx", congress)
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", congressLockSpace|int64(congress)); err != nil {
		_ = tx.Rollback(ctx)
		return nil, eris.Wrapf(err, "postgres: lock congress %d", congress)
	}
	return func() {
		if err := tx.Commit(context.Background()); err != nil {
			zap.L().Warn("postgres: release congress lock", zap.Int("congress", congress), zap.Error(err))
		}
	}, nil
}
