package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/congress-cli/internal/model"
)

// VoteWithLink pairs a vote with its resolution state. Link is nil until the
// resolver has seen the vote.
type VoteWithLink struct {
	model.VoteRecord
	Link *model.VoteLink `json:"link,omitempty"`
}

// Reader is the read-only query surface for downstream consumers.
type Reader struct {
	st Store
}

// NewReader wraps a store for typed reads.
func NewReader(st Store) *Reader {
	return &Reader{st: st}
}

// Bill returns one bill, or nil when absent.
func (r *Reader) Bill(ctx context.Context, key model.BillKey) (*model.Bill, error) {
	return getTyped[model.Bill](ctx, r.st, model.EntityBill, key.String())
}

// Bills lists the bills of a congress in key order.
func (r *Reader) Bills(ctx context.Context, congress, limit, offset int) ([]model.Bill, error) {
	return listTyped[model.Bill](ctx, r.st, model.EntityBill, EntityFilter{Congress: congress, Limit: limit, Offset: offset})
}

// Version returns one text version, or nil when absent.
func (r *Reader) Version(ctx context.Context, bill model.BillKey, code string) (*model.BillVersion, error) {
	return getTyped[model.BillVersion](ctx, r.st, model.EntityBillVersion, model.VersionKey(bill, code))
}

// Versions lists the text versions of a bill.
func (r *Reader) Versions(ctx context.Context, bill model.BillKey) ([]model.BillVersion, error) {
	return listTyped[model.BillVersion](ctx, r.st, model.EntityBillVersion, EntityFilter{Congress: bill.Congress, BillKey: bill.String()})
}

// Estimates lists the cost estimates attached to a bill.
func (r *Reader) Estimates(ctx context.Context, bill model.BillKey) ([]model.CostEstimate, error) {
	return listTyped[model.CostEstimate](ctx, r.st, model.EntityCostEstimate, EntityFilter{Congress: bill.Congress, BillKey: bill.String()})
}

// Vote returns a vote with its link, or nil when absent.
func (r *Reader) Vote(ctx context.Context, key model.VoteKey) (*VoteWithLink, error) {
	v, err := getTyped[model.VoteRecord](ctx, r.st, model.EntityVote, key.String())
	if err != nil || v == nil {
		return nil, err
	}
	link, err := r.st.GetVoteLink(ctx, key.String())
	if err != nil {
		return nil, err
	}
	return &VoteWithLink{VoteRecord: *v, Link: link}, nil
}

// Votes lists the votes of a congress with their links.
func (r *Reader) Votes(ctx context.Context, congress, limit, offset int) ([]VoteWithLink, error) {
	votes, err := listTyped[model.VoteRecord](ctx, r.st, model.EntityVote, EntityFilter{Congress: congress, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	links, err := r.linkIndex(ctx, congress)
	if err != nil {
		return nil, err
	}
	out := make([]VoteWithLink, len(votes))
	for i, v := range votes {
		out[i] = VoteWithLink{VoteRecord: v, Link: links[v.Key.String()]}
	}
	return out, nil
}

// VotesForBill lists the votes resolved to a bill.
func (r *Reader) VotesForBill(ctx context.Context, bill model.BillKey) ([]VoteWithLink, error) {
	links, err := r.st.ListVoteLinks(ctx, bill.Congress)
	if err != nil {
		return nil, err
	}
	var out []VoteWithLink
	for i := range links {
		l := links[i]
		if l.Status != model.LinkResolved || l.Bill == nil || *l.Bill != bill {
			continue
		}
		v, err := getTyped[model.VoteRecord](ctx, r.st, model.EntityVote, l.Vote.String())
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		out = append(out, VoteWithLink{VoteRecord: *v, Link: &l})
	}
	return out, nil
}

// Artifacts lists ingestion records.
func (r *Reader) Artifacts(ctx context.Context, filter ArtifactFilter) ([]model.ArtifactRecord, error) {
	return r.st.ListArtifacts(ctx, filter)
}

// Artifact returns one ingestion record, or nil when absent.
func (r *Reader) Artifact(ctx context.Context, artifactKey string) (*model.ArtifactRecord, error) {
	return r.st.GetArtifact(ctx, artifactKey)
}

// Runs lists recent ingestion runs, newest first.
func (r *Reader) Runs(ctx context.Context, limit int) ([]model.IngestRun, error) {
	return r.st.ListRuns(ctx, limit)
}

func (r *Reader) linkIndex(ctx context.Context, congress int) (map[string]*model.VoteLink, error) {
	links, err := r.st.ListVoteLinks(ctx, congress)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]*model.VoteLink, len(links))
	for i := range links {
		idx[links[i].Vote.String()] = &links[i]
	}
	return idx, nil
}

func getTyped[T any](ctx context.Context, st Store, kind model.EntityKind, key string) (*T, error) {
	row, err := st.GetEntity(ctx, kind, key)
	if err != nil || row == nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(row.Payload, &v); err != nil {
		return nil, eris.Wrapf(err, "store: decode %s %s", kind, key)
	}
	return &v, nil
}

func listTyped[T any](ctx context.Context, st Store, kind model.EntityKind, filter EntityFilter) ([]T, error) {
	rows, err := st.ListEntities(ctx, kind, filter)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := json.Unmarshal(row.Payload, &v); err != nil {
			return nil, eris.Wrapf(err, "store: decode %s %s", kind, row.Key)
		}
		out = append(out, v)
	}
	return out, nil
}

// EncodeEntity renders an entity as a row ready for InsertEntity or
// ReplaceEntity.
func EncodeEntity(e model.Entity) (EntityRow, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return EntityRow{}, eris.Wrapf(err, "store: encode %s %s", e.EntityKind(), e.EntityKey())
	}
	congress, billKey := e.Scope()
	row := EntityRow{
		Kind:        e.EntityKind(),
		Key:         e.EntityKey(),
		Congress:    congress,
		BillKey:     billKey,
		ContentHash: e.Hash(),
		Payload:     payload,
	}
	if v, ok := e.(*model.BillVersion); ok {
		row.SourceFormat = string(v.SourceFormat)
	}
	return row, nil
}
