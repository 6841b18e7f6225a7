package resolve

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/congress-cli/internal/config"
	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testCfg = config.ResolveConfig{
	DateWindowDays:    1,
	MinConfidence:     0.6,
	AmbiguityMargin:   0.1,
	TextWeight:        0.5,
	DesignationWeight: 0.3,
	CitationWeight:    0.4,
}

func day(d int) time.Time { return time.Date(2023, 3, d, 0, 0, 0, 0, time.UTC) }

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "r.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seed(t *testing.T, s store.Store, entities ...model.Entity) {
	t.Helper()
	for _, e := range entities {
		row, err := store.EncodeEntity(e)
		require.NoError(t, err)
		require.NoError(t, s.InsertEntity(context.Background(), row))
	}
}

func energyBill() *model.Bill {
	return &model.Bill{
		Key:         model.BillKey{Congress: 118, Type: model.BillTypeHR, Number: 1},
		Title:       "Lower Energy Costs Act",
		ContentHash: "b1",
		Actions: []model.Action{
			{Seq: 1, Date: day(14), Chamber: model.ChamberHouse, Description: "Introduced in House"},
			{Seq: 2, Date: day(30), Chamber: model.ChamberHouse, Description: "On passage Passed by recorded vote: 225 - 204 (Roll no. 182)."},
			{Seq: 3, Date: day(30), Chamber: model.ChamberHouse, Description: "Motion to reconsider laid on the table Agreed to without objection."},
		},
	}
}

func borderBill() *model.Bill {
	return &model.Bill{
		Key:         model.BillKey{Congress: 118, Type: model.BillTypeHR, Number: 2},
		Title:       "Secure the Border Act of 2023",
		ContentHash: "b2",
		Actions: []model.Action{
			{Seq: 1, Date: day(30), Chamber: model.ChamberHouse, Description: "Referred to the Committee on the Judiciary."},
		},
	}
}

func passageVote() *model.VoteRecord {
	return &model.VoteRecord{
		Key:         model.VoteKey{Congress: 118, Chamber: model.ChamberHouse, RollCall: 182},
		Date:        day(30),
		Question:    "On Passage",
		Result:      "Passed",
		Subject:     "Lower Energy Costs Act",
		Designation: "H R 1",
		ContentHash: "v182",
	}
}

func TestRunResolves(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, energyBill(), borderBill(), passageVote())
	ctx := context.Background()

	res, err := New(s, testCfg).Run(ctx, 118, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Votes)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 1, res.Written)

	link, err := s.GetVoteLink(ctx, "118/house/182")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, model.LinkResolved, link.Status)
	require.NotNil(t, link.Bill)
	assert.Equal(t, "118/hr/1", link.Bill.String())
	assert.Equal(t, 2, link.ActionSeq)
	assert.GreaterOrEqual(t, link.Confidence, 0.7)
	require.NotEmpty(t, link.Candidates)
	assert.True(t, link.Candidates[0].Citation)
	assert.True(t, link.Candidates[0].Designation)

	votes, err := store.NewReader(s).VotesForBill(ctx, energyBill().Key)
	require.NoError(t, err)
	assert.Len(t, votes, 1)
}

func TestRunIdempotent(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, energyBill(), borderBill(), passageVote())
	r := New(s, testCfg)
	ctx := context.Background()

	_, err := r.Run(ctx, 118, Options{})
	require.NoError(t, err)
	first, err := s.GetVoteLink(ctx, "118/house/182")
	require.NoError(t, err)

	again, err := r.Run(ctx, 118, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Written)
	assert.Equal(t, 1, again.Skipped)

	recheck, err := r.Run(ctx, 118, Options{Recheck: true})
	require.NoError(t, err)
	assert.Equal(t, 1, recheck.Written)
	assert.Equal(t, 1, recheck.Resolved)

	second, err := s.GetVoteLink(ctx, "118/house/182")
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Bill, second.Bill)
	assert.Equal(t, first.Candidates, second.Candidates)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}

func TestRunRescoresResolvedVote(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, energyBill(), borderBill(), passageVote())
	r := New(s, testCfg)
	ctx := context.Background()

	_, err := r.Run(ctx, 118, Options{})
	require.NoError(t, err)

	moved := passageVote()
	moved.Date = moved.Date.AddDate(1, 0, 0)
	moved.Designation = "H R 9999"
	moved.ContentHash = "moved"
	row, err := store.EncodeEntity(moved)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceEntity(ctx, row, "v182"))

	res, err := r.Run(ctx, 118, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Zero(t, res.Resolved)

	link, err := s.GetVoteLink(ctx, "118/house/182")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.NotEqual(t, model.LinkResolved, link.Status)
	assert.Nil(t, link.Bill)
}

func TestRunAmbiguous(t *testing.T) {
	rule := func(n int, hash string) *model.Bill {
		return &model.Bill{
			Key:         model.BillKey{Congress: 118, Type: model.BillTypeHRes, Number: n},
			Title:       "Providing for consideration of the bill (H.R. 5) to ensure the rights of parents",
			ContentHash: hash,
			Actions: []model.Action{
				{Seq: 1, Date: day(23), Chamber: model.ChamberHouse, Description: "On agreeing to the resolution Agreed to by the Yeas and Nays: 220 - 210 (Roll no. 50)."},
			},
		}
	}
	vote := &model.VoteRecord{
		Key:         model.VoteKey{Congress: 118, Chamber: model.ChamberHouse, RollCall: 50},
		Date:        day(23),
		Question:    "On Agreeing to the Resolution",
		Result:      "Passed",
		Subject:     "Providing for consideration of the bill (H.R. 5) to ensure the rights of parents",
		ContentHash: "v50",
	}

	s := newTestStore(t)
	seed(t, s, rule(100, "r100"), rule(101, "r101"), vote)
	ctx := context.Background()

	res, err := New(s, testCfg).Run(ctx, 118, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ambiguous)

	got, err := store.NewReader(s).Vote(ctx, vote.Key)
	require.NoError(t, err)
	require.NotNil(t, got.Link)
	assert.Equal(t, model.LinkAmbiguous, got.Link.Status)
	assert.Nil(t, got.Link.Bill)
	assert.Len(t, got.Link.Candidates, 2)
}

func TestScore(t *testing.T) {
	idx := buildIndex([]model.Bill{*energyBill(), *borderBill()})

	tests := []struct {
		name   string
		cfg    func(c *config.ResolveConfig)
		vote   func(v *model.VoteRecord)
		status model.LinkStatus
		cands  int
	}{
		{name: "same day", status: model.LinkResolved, cands: 2},
		{name: "other chamber", vote: func(v *model.VoteRecord) { v.Key.Chamber = model.ChamberSenate }, status: model.LinkUnresolved},
		{name: "outside window", vote: func(v *model.VoteRecord) { v.Date = day(28) }, status: model.LinkUnresolved},
		{name: "widened window", cfg: func(c *config.ResolveConfig) { c.DateWindowDays = 2 }, vote: func(v *model.VoteRecord) { v.Date = day(28) }, status: model.LinkResolved, cands: 2},
		{name: "no date", vote: func(v *model.VoteRecord) { v.Date = time.Time{} }, status: model.LinkUnresolved},
		{
			name:   "below threshold",
			cfg:    func(c *config.ResolveConfig) { c.MinConfidence = 1 },
			vote:   func(v *model.VoteRecord) { v.Designation = "" },
			status: model.LinkUnresolved,
			cands:  2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testCfg
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			v := passageVote()
			if tt.vote != nil {
				tt.vote(v)
			}
			link := New(nil, cfg).Score(*v, idx)
			assert.Equal(t, tt.status, link.Status)
			assert.Len(t, link.Candidates, tt.cands)
			if tt.status == model.LinkResolved {
				assert.Equal(t, "118/hr/1", link.Bill.String())
			}
		})
	}
}
