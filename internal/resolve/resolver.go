// Package resolve links roll-call votes to the bill actions they decided.
package resolve

import (
	"context"
	"math"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/congress-cli/internal/config"
	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
	"github.com/sells-group/congress-cli/internal/store"
)

const (
	pageSize      = 1000
	maxCandidates = 5
	linkBatchSize = 500
)

// Options control one resolution pass.
type Options struct {
	// Recheck rewrites every link, including ones whose score did not
	// change, which refreshes their updated_at.
	Recheck bool
}

// Result counts what a pass did.
type Result struct {
	Congress   int `json:"congress"`
	Votes      int `json:"votes"`
	Resolved   int `json:"resolved"`
	Ambiguous  int `json:"ambiguous"`
	Unresolved int `json:"unresolved"`
	Skipped    int `json:"skipped"`
	Written    int `json:"written"`
}

// Resolver scores votes against the action history of the same congress.
type Resolver struct {
	st  store.Store
	rd  *store.Reader
	cfg config.ResolveConfig
	log *zap.Logger
	now func() time.Time
}

// New creates a Resolver with the given thresholds.
func New(st store.Store, cfg config.ResolveConfig) *Resolver {
	return &Resolver{
		st:  st,
		rd:  store.NewReader(st),
		cfg: cfg,
		log: zap.L().With(zap.String("component", "resolver")),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// indexedAction is one bill action available for matching.
type indexedAction struct {
	bill        model.BillKey
	titles      []string
	designation string
	action      model.Action
}

// actionIndex holds actions by calendar day.
type actionIndex map[string][]indexedAction

func dayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func buildIndex(bills []model.Bill) actionIndex {
	idx := make(actionIndex)
	for _, b := range bills {
		titles := b.Titles
		if b.Title != "" {
			titles = append([]string{b.Title}, b.Titles...)
		}
		desig := NormalizeDesignation(b.Key.Designation())
		for _, a := range b.Actions {
			if a.Date.IsZero() {
				continue
			}
			d := dayKey(a.Date)
			idx[d] = append(idx[d], indexedAction{bill: b.Key, titles: titles, designation: desig, action: a})
		}
	}
	return idx
}

// Run resolves the votes of one congress under the congress lock.
func (r *Resolver) Run(ctx context.Context, congress int, opts Options) (*Result, error) {
	release, err := r.st.LockCongress(ctx, congress)
	if err != nil {
		return nil, err
	}
	defer release()

	log := r.log.With(zap.Int("congress", congress))
	res := &Result{Congress: congress}

	bills, err := r.allBills(ctx, congress)
	if err != nil {
		return nil, err
	}
	idx := buildIndex(bills)

	existing, err := r.st.ListVoteLinks(ctx, congress)
	if err != nil {
		return nil, err
	}
	prior := make(map[string]model.VoteLink, len(existing))
	for _, l := range existing {
		prior[l.Vote.String()] = l
	}

	var pending []model.VoteLink
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := r.st.PutVoteLinks(ctx, pending); err != nil {
			return err
		}
		res.Written += len(pending)
		pending = pending[:0]
		return nil
	}

	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		votes, err := r.rd.Votes(ctx, congress, pageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, v := range votes {
			res.Votes++
			// Resolved links are scored again too: the vote or the bills
			// may have been re-ingested since.
			old, had := prior[v.Key.String()]
			link := r.Score(v.VoteRecord, idx)
			switch link.Status {
			case model.LinkResolved:
				res.Resolved++
			case model.LinkAmbiguous:
				res.Ambiguous++
				log.Warn("vote link ambiguous",
					zap.String("vote", v.Key.String()),
					zap.String("error_kind", string(resilience.ResolutionAmbiguous)),
					zap.Int("candidates", len(link.Candidates)),
				)
			default:
				res.Unresolved++
			}

			if had && !opts.Recheck && sameLink(old, link) {
				res.Skipped++
				continue
			}
			link.UpdatedAt = r.now()
			pending = append(pending, link)
			if len(pending) >= linkBatchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
		if len(votes) < pageSize {
			break
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	log.Info("resolution complete",
		zap.Int("votes", res.Votes),
		zap.Int("resolved", res.Resolved),
		zap.Int("ambiguous", res.Ambiguous),
		zap.Int("unresolved", res.Unresolved),
		zap.Int("written", res.Written),
	)
	return res, nil
}

func (r *Resolver) allBills(ctx context.Context, congress int) ([]model.Bill, error) {
	var out []model.Bill
	for offset := 0; ; offset += pageSize {
		page, err := r.rd.Bills(ctx, congress, pageSize, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
	}
}

// Score computes the link of one vote against the action index. It does not
// touch the store.
func (r *Resolver) Score(v model.VoteRecord, idx actionIndex) model.VoteLink {
	link := model.VoteLink{Vote: v.Key, Status: model.LinkUnresolved}
	if v.Date.IsZero() {
		return link
	}

	voteText := v.Question + " " + v.Result
	voteDesig := NormalizeDesignation(v.Designation)

	best := make(map[model.BillKey]model.LinkCandidate)
	for d := -r.cfg.DateWindowDays; d <= r.cfg.DateWindowDays; d++ {
		for _, ia := range idx[dayKey(v.Date.AddDate(0, 0, d))] {
			if ia.action.Chamber != "" && ia.action.Chamber != v.Key.Chamber {
				continue
			}
			c := r.candidate(v, voteText, voteDesig, ia)
			if cur, ok := best[ia.bill]; !ok || c.Score > cur.Score {
				best[ia.bill] = c
			}
		}
	}
	if len(best) == 0 {
		return link
	}

	cands := make([]model.LinkCandidate, 0, len(best))
	for _, c := range best {
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].Bill.String() < cands[j].Bill.String()
	})
	if len(cands) > maxCandidates {
		cands = cands[:maxCandidates]
	}

	top := cands[0]
	link.Confidence = top.Score
	link.Candidates = cands
	if top.Score < r.cfg.MinConfidence {
		return link
	}

	near := 0
	for _, c := range cands {
		if c.Score >= r.cfg.MinConfidence && top.Score-c.Score <= r.cfg.AmbiguityMargin {
			near++
		}
	}
	if near > 1 {
		link.Status = model.LinkAmbiguous
		return link
	}

	bill := top.Bill
	link.Status = model.LinkResolved
	link.Bill = &bill
	link.ActionSeq = top.ActionSeq
	return link
}

func (r *Resolver) candidate(v model.VoteRecord, voteText, voteDesig string, ia indexedAction) model.LinkCandidate {
	var titleSim float64
	for _, t := range ia.titles {
		titleSim = math.Max(titleSim, Trigram(v.Subject, t))
	}
	actionSim := TextSimilarity(voteText, ia.action.Description)
	desig := voteDesig != "" && voteDesig == ia.designation
	cite := CitesRollCall(ia.action.Description, v.Key.RollCall)

	score := r.cfg.TextWeight * math.Max(titleSim, actionSim)
	if desig {
		score += r.cfg.DesignationWeight
	}
	if cite {
		score += r.cfg.CitationWeight
	}
	return model.LinkCandidate{
		Bill:        ia.bill,
		ActionSeq:   ia.action.Seq,
		Score:       round(math.Min(score, 1)),
		TitleSim:    round(titleSim),
		ActionSim:   round(actionSim),
		Designation: desig,
		Citation:    cite,
	}
}

// round drops float noise so an unchanged link compares equal on re-runs.
func round(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}

func sameLink(a, b model.VoteLink) bool {
	if a.Status != b.Status || a.ActionSeq != b.ActionSeq || a.Confidence != b.Confidence {
		return false
	}
	if (a.Bill == nil) != (b.Bill == nil) || (a.Bill != nil && *a.Bill != *b.Bill) {
		return false
	}
	return slices.Equal(a.Candidates, b.Candidates)
}
