package parse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

const estimatePage = `CONGRESSIONAL BUDGET OFFICE
COST ESTIMATE

March 28, 2023

H.R. 1, Lower Energy Costs Act
As introduced on March 14, 2023

By Fiscal Year, Millions of Dollars        2023    2023-2028    2023-2033
Direct Spending (Outlays)                     0       -2,395       -5,115
`

func parseEstimate(t *testing.T, text string) (*Estimate, error) {
	t.Helper()
	parser, err := NewRegistry(&fakePDF{text: text}).Get(VariantCBOPDF)
	require.NoError(t, err)
	rec, err := parser.Parse(context.Background(), billInput(model.KindCostEstimate, "01", []byte("%PDF-1.7 estimate")))
	if err != nil {
		return nil, err
	}
	return rec.(*Estimate), nil
}

func TestEstimate_DateAndTitle(t *testing.T) {
	e, err := parseEstimate(t, estimatePage)
	require.NoError(t, err)

	require.NotNil(t, e.Date)
	assert.Equal(t, time.Date(2023, 3, 28, 0, 0, 0, 0, time.UTC), *e.Date)
	assert.Equal(t, "H.R. 1, Lower Energy Costs Act", e.Title)
	assert.Equal(t, "01", e.VersionCode)
	assert.Contains(t, e.Text, "Direct Spending (Outlays)")
	assert.Len(t, e.ContentHash(), 64)
}

func TestEstimate_Dates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *time.Time
	}{
		{
			name: "numeric date",
			text: "CBO\nS. 937\nPublished 4/2/2021\n",
			want: ptrDate(2021, 4, 2),
		},
		{
			name: "first date wins",
			text: "June 1, 2020\nrevised July 4, 2020\n",
			want: ptrDate(2020, 6, 1),
		},
		{
			name: "no date",
			text: "CBO\nS. 937\nNo publication information.\n",
		},
		{
			name: "date past the header",
			text: repeatLines("filler", headerLines) + "May 5, 2019\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := parseEstimate(t, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Date)
		})
	}
}

func TestEstimate_HashTracksContent(t *testing.T) {
	a, err := parseEstimate(t, estimatePage)
	require.NoError(t, err)
	b, err := parseEstimate(t, estimatePage+"\n\n")
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)

	c, err := parseEstimate(t, estimatePage+"Revenues 0 0 0\n")
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, c.Hash)
}

func TestEstimate_EmptyText(t *testing.T) {
	_, err := parseEstimate(t, "\f\f")
	assertKind(t, err, resilience.ParseFailure)
}

func ptrDate(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func repeatLines(s string, n int) string {
	out := ""
	for range n {
		out += s + "\n"
	}
	return out
}
