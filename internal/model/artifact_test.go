package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDescriptorKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		d    Descriptor
		want string
	}{
		{
			name: "source",
			d:    Descriptor{Congress: 118, BillType: BillTypeHR, BillNumber: 1, Kind: KindBillSource},
			want: "118/hr/1/bill_source",
		},
		{
			name: "text version",
			d:    Descriptor{Congress: 118, BillType: BillTypeHR, BillNumber: 1, Kind: KindBillTextTxt, SubID: "01"},
			want: "118/hr/1/bill_text_txt/01",
		},
		{
			name: "vote",
			d:    Descriptor{Congress: 117, BillType: BillTypeS, BillNumber: 937, Kind: KindSenateVote, SubID: "senate-00110"},
			want: "117/s/937/senate_vote/senate-00110",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.d.Key())
		})
	}
}

func TestNewArtifactRecord(t *testing.T) {
	t.Parallel()

	mod := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := Descriptor{Congress: 118, BillType: BillTypeS, BillNumber: 5, Kind: KindCostEstimate, SubID: "02", Path: "/a", Size: 10, ModTime: mod}
	rec := NewArtifactRecord(d)

	assert.Equal(t, "118/s/5/cost_estimate/02", rec.ArtifactKey)
	assert.Equal(t, KindCostEstimate, rec.Kind)
	assert.Equal(t, int64(10), rec.Size)
	assert.Equal(t, mod, rec.ModTime)
	assert.Empty(t, rec.Status)
}

func TestEntityKeys(t *testing.T) {
	t.Parallel()

	bill := BillKey{Congress: 118, Type: BillTypeHR, Number: 1}
	date := time.Date(2023, 3, 28, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "118/hr/1/01", (&BillVersion{Bill: bill, VersionCode: "01"}).EntityKey())
	assert.Equal(t, "118/hr/1/01/-", (&CostEstimate{Bill: bill, VersionCode: "01"}).EntityKey())
	assert.Equal(t, "118/hr/1/01/2023-03-28", (&CostEstimate{Bill: bill, VersionCode: "01", Date: &date}).EntityKey())

	vote := &VoteRecord{Key: VoteKey{Congress: 118, Chamber: ChamberHouse, RollCall: 50}}
	assert.Equal(t, "118/house/50", vote.EntityKey())
	assert.Equal(t, "vote:118/house/50", vote.LockKey())
	congress, billKey := vote.Scope()
	assert.Equal(t, 118, congress)
	assert.Empty(t, billKey)

	assert.Equal(t, bill.String(), (&CostEstimate{Bill: bill}).LockKey())
}

func TestSourceFormatRank(t *testing.T) {
	t.Parallel()

	assert.Greater(t, FormatTxt.Rank(), FormatHTML.Rank())
	assert.Greater(t, FormatHTML.Rank(), FormatPDF.Rank())
	assert.Zero(t, SourceFormat("doc").Rank())
}

func TestTally(t *testing.T) {
	t.Parallel()

	var tally Tally
	for _, c := range []Choice{ChoiceYea, ChoiceYea, ChoiceNay, ChoicePresent, ChoiceNotVoting, "bogus"} {
		tally.Add(c)
	}
	assert.Equal(t, Tally{Yea: 2, Nay: 1, Present: 1, NotVoting: 1}, tally)
	assert.Equal(t, 5, tally.Total())
}
