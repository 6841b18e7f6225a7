// Package normalize maps parsed records to canonical entities and merges
// bill updates into stored bills.
package normalize

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/parse"
)

// Entity builds the canonical entity for a parsed record. The parent bill key
// comes from the descriptor's directory.
func Entity(d model.Descriptor, rec parse.Record) (model.Entity, error) {
	bill := d.Bill()

	switch r := rec.(type) {
	case *parse.BillSource:
		return &model.Bill{
			Key:                bill,
			Title:              r.Title,
			Sponsors:           r.Sponsors,
			Actions:            r.Actions,
			Status:             r.Status,
			PolicyArea:         r.PolicyArea,
			Subjects:           r.Subjects,
			Titles:             r.Titles,
			Committees:         r.Committees,
			Related:            r.Related,
			Summaries:          r.Summaries,
			AuthorityStatement: r.AuthorityStatement,
			CBOEstimates:       r.CBOEstimates,
			Reports:            r.Reports,
			SourceModified:     d.ModTime.UTC(),
			ContentHash:        r.Hash,
		}, nil

	case *parse.TextVersion:
		return &model.BillVersion{
			Bill:         bill,
			VersionCode:  r.VersionCode,
			Label:        r.Label,
			Body:         r.Body,
			Sections:     r.Sections,
			SourceFormat: r.Format,
			ContentHash:  r.Hash,
		}, nil

	case *parse.Estimate:
		return &model.CostEstimate{
			Bill:        bill,
			VersionCode: r.VersionCode,
			Date:        r.Date,
			Title:       r.Title,
			Text:        r.Text,
			ContentHash: r.Hash,
		}, nil

	case *parse.Vote:
		v := &model.VoteRecord{
			Key:         model.VoteKey{Congress: r.Congress, Chamber: r.Chamber, RollCall: r.RollCall},
			Date:        r.Date,
			Question:    r.Question,
			Result:      r.Result,
			Subject:     r.Subject,
			Designation: r.Designation,
			Tally:       r.Tally,
			Members:     r.Members,
			ContentHash: r.Hash,
		}
		if !bill.IsZero() {
			filed := bill
			v.FiledUnder = &filed
		}
		return v, nil
	}
	return nil, eris.Errorf("normalize: unsupported record type %T", rec)
}

// MergeBill folds an incoming bill into the stored one. It reports false when
// the incoming source is older than the stored source, in which case the
// stored bill stands.
func MergeBill(stored, incoming *model.Bill) (*model.Bill, bool) {
	if stored == nil {
		return incoming, true
	}
	if !stored.SourceModified.IsZero() && incoming.SourceModified.Before(stored.SourceModified) {
		return stored, false
	}
	merged := *incoming
	merged.Actions = MergeActions(stored.Actions, incoming.Actions)
	return &merged, true
}

type actionSlot struct {
	day     string
	chamber model.Chamber
	ordinal int
}

// slots assigns each action its (day, chamber, ordinal within the day) slot
// in list order.
func slots(actions []model.Action) []actionSlot {
	seen := make(map[actionSlot]int)
	out := make([]actionSlot, len(actions))
	for i, a := range actions {
		key := actionSlot{day: a.Date.UTC().Format(time.DateOnly), chamber: a.Chamber}
		out[i] = actionSlot{day: key.day, chamber: key.chamber, ordinal: seen[key]}
		seen[key]++
	}
	return out
}

// MergeActions replaces stored actions by incoming actions holding the same
// slot and keeps stored actions with no incoming counterpart. The result is
// ordered by date and renumbered from 1.
func MergeActions(stored, incoming []model.Action) []model.Action {
	if len(stored) == 0 {
		return renumber(append([]model.Action(nil), incoming...))
	}

	incomingSlots := make(map[actionSlot]bool, len(incoming))
	for _, s := range slots(incoming) {
		incomingSlots[s] = true
	}

	merged := make([]model.Action, 0, len(stored)+len(incoming))
	merged = append(merged, incoming...)
	for i, s := range slots(stored) {
		if !incomingSlots[s] {
			merged = append(merged, stored[i])
		}
	}
	return renumber(merged)
}

func renumber(actions []model.Action) []model.Action {
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Date.Before(actions[j].Date) })
	for i := range actions {
		actions[i].Seq = i + 1
	}
	return actions
}
