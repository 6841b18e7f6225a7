package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/congress-cli/internal/db"
	"github.com/sells-group/congress-cli/internal/model"
)

// Column lists shared by both backends. Argument order in the *Args helpers
// follows these lists.
const (
	voteLinkColumns = `vote_key, status, bill_key, action_seq, confidence, candidates, updated_at`
	artifactColumns = `artifact_key, congress, bill_type, bill_number, kind, sub_id, path, size, mod_time_ns, ` +
		`content_hash, status, outcome, error_kind, error_detail, attempts, last_attempt_at, run_id`
)

var (
	voteLinkUpsert = db.UpsertConfig{
		Table:        "vote_links",
		Columns:      []string{"vote_key", "congress", "status", "bill_key", "action_seq", "confidence", "candidates", "updated_at"},
		ConflictKeys: []string{"vote_key"},
	}
	artifactUpsert = db.UpsertConfig{
		Table: "artifact_records",
		Columns: []string{"artifact_key", "congress", "bill_type", "bill_number", "kind", "sub_id", "path", "size", "mod_time_ns",
			"content_hash", "status", "outcome", "error_kind", "error_detail", "attempts", "last_attempt_at", "run_id"},
		ConflictKeys: []string{"artifact_key"},
	}
	checkpointUpsert = db.UpsertConfig{
		Table:        "checkpoints",
		Columns:      []string{"name", "ordinal", "artifact_key", "congress", "bill_dir", "updated_at"},
		ConflictKeys: []string{"name"},
	}
)

// voteLinkArgs renders a link in voteLinkUpsert column order. The backend
// supplies its own timestamp encoding.
func voteLinkArgs(l model.VoteLink, updatedAt any) ([]any, error) {
	var candidates any
	if len(l.Candidates) > 0 {
		data, err := json.Marshal(l.Candidates)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal candidates for %s", l.Vote)
		}
		candidates = string(data)
	}
	billKey := ""
	if l.Bill != nil {
		billKey = l.Bill.String()
	}
	return []any{l.Vote.String(), l.Vote.Congress, string(l.Status), billKey, l.ActionSeq, l.Confidence, candidates, updatedAt}, nil
}

func decodeVoteLink(l *model.VoteLink, voteKey, billKey string, candidates []byte) error {
	key, err := model.ParseVoteKey(voteKey)
	if err != nil {
		return err
	}
	l.Vote = key
	if billKey != "" {
		bk, err := model.ParseBillKey(billKey)
		if err != nil {
			return err
		}
		l.Bill = &bk
	}
	if len(candidates) > 0 {
		if err := json.Unmarshal(candidates, &l.Candidates); err != nil {
			return eris.Wrapf(err, "store: unmarshal candidates for %s", voteKey)
		}
	}
	return nil
}

// artifactArgs renders a record in artifactUpsert column order.
func artifactArgs(r model.ArtifactRecord, lastAttemptAt any) []any {
	return []any{
		r.ArtifactKey, r.Congress, string(r.BillType), r.BillNumber, string(r.Kind), r.SubID, r.Path, r.Size, nanos(r.ModTime),
		r.ContentHash, string(r.Status), string(r.Outcome), r.ErrorKind, r.ErrorDetail, r.Attempts, lastAttemptAt, r.RunID,
	}
}

func marshalSummary(summary map[string]any) ([]byte, error) {
	if summary == nil {
		return nil, nil
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal run summary")
	}
	return data, nil
}
