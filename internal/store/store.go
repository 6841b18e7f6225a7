// Package store persists canonical entities, vote links, the artifact
// ingestion log, walk checkpoints and run history.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/congress-cli/internal/config"
	"github.com/sells-group/congress-cli/internal/model"
)

// DefaultListLimit caps list queries without an explicit limit.
const DefaultListLimit = 1000

// EntityRow is one stored entity. Payload is the entity's JSON encoding.
type EntityRow struct {
	Kind         model.EntityKind `json:"kind"`
	Key          string           `json:"key"`
	Congress     int              `json:"congress"`
	BillKey      string           `json:"bill_key,omitempty"`
	SourceFormat string           `json:"source_format,omitempty"`
	ContentHash  string           `json:"content_hash"`
	Payload      []byte           `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Head is the part of a stored entity the writer compares against.
type Head struct {
	ContentHash  string
	SourceFormat string
}

// EntityFilter narrows entity listings. Zero values match everything.
type EntityFilter struct {
	Congress int    `json:"congress,omitempty"`
	BillKey  string `json:"bill_key,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// ArtifactFilter narrows ingestion log listings.
type ArtifactFilter struct {
	Congress int                  `json:"congress,omitempty"`
	Kind     model.ArtifactKind   `json:"kind,omitempty"`
	Status   model.ArtifactStatus `json:"status,omitempty"`
	Limit    int                  `json:"limit,omitempty"`
	Offset   int                  `json:"offset,omitempty"`
}

// Store defines the persistence interface for ingestion and resolution.
type Store interface {
	// Entities. Gets return nil when the key is absent.
	HeadEntity(ctx context.Context, kind model.EntityKind, key string) (*Head, error)
	GetEntity(ctx context.Context, kind model.EntityKind, key string) (*EntityRow, error)
	// InsertEntity fails with WriteConflict when the key already exists.
	InsertEntity(ctx context.Context, row EntityRow) error
	// ReplaceEntity fails with WriteConflict when the stored hash is no
	// longer prevHash.
	ReplaceEntity(ctx context.Context, row EntityRow, prevHash string) error
	ListEntities(ctx context.Context, kind model.EntityKind, filter EntityFilter) ([]EntityRow, error)
	CountEntities(ctx context.Context, kind model.EntityKind, congress int) (int, error)

	// Vote links
	PutVoteLinks(ctx context.Context, links []model.VoteLink) error
	GetVoteLink(ctx context.Context, voteKey string) (*model.VoteLink, error)
	ListVoteLinks(ctx context.Context, congress int) ([]model.VoteLink, error)

	// Ingestion log
	PutArtifact(ctx context.Context, rec model.ArtifactRecord) error
	GetArtifact(ctx context.Context, artifactKey string) (*model.ArtifactRecord, error)
	ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]model.ArtifactRecord, error)

	// Walk checkpoints
	SaveCheckpoint(ctx context.Context, name string, cp model.Checkpoint) error
	LoadCheckpoint(ctx context.Context, name string) (model.Checkpoint, error)

	// Runs
	StartRun(ctx context.Context, run *model.IngestRun) error
	FinishRun(ctx context.Context, run *model.IngestRun) error
	ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error)

	// LockCongress holds the resolution lock of a congress until release is
	// called.
	LockCongress(ctx context.Context, congress int) (release func(), err error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the backend named by the store config.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func listLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
