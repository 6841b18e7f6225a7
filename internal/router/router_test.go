package router

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

func TestDefaultTable(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 199, table.MaxCongress())

	for _, kind := range model.AllKinds {
		eras := table.Eras(kind)
		require.NotEmpty(t, eras, kind)
		assert.Equal(t, 1, eras[0].From)
		assert.Equal(t, 199, eras[len(eras)-1].To)
	}
}

func TestSelect(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	tests := []struct {
		kind     model.ArtifactKind
		congress int
		variant  string
		errKind  resilience.Kind
	}{
		{model.KindBillSource, 118, "allinfo-three-column", ""},
		{model.KindBillSource, 101, "allinfo-three-column", ""},
		{model.KindBillSource, 100, "allinfo-two-column", ""},
		{model.KindBillSource, 93, "allinfo-two-column", ""},
		{model.KindBillSource, 92, Unsupported, resilience.UnsupportedFormatEra},
		{model.KindBillTextTxt, 103, "gpo-plain-text", ""},
		{model.KindBillTextTxt, 102, Unsupported, resilience.UnsupportedFormatEra},
		{model.KindCostEstimate, 105, "cbo-pdf", ""},
		{model.KindHouseVote, 117, "clerk-evs", ""},
		{model.KindSenateVote, 101, "senate-lis", ""},
		{model.KindSenateVote, 0, "", resilience.UnsupportedFormatEra},
		{model.KindSenateVote, 250, "", resilience.UnsupportedFormatEra},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			era, err := table.Select(tt.kind, tt.congress)
			if tt.errKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.errKind, resilience.KindOf(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.variant, era.Variant)
		})
	}
}

func TestSelectDeterministic(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	first, _ := table.Select(model.KindBillTextHTML, 110)
	for range 10 {
		again, _ := table.Select(model.KindBillTextHTML, 110)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "bill_text_html:103-199", first.ID())
}

func tableWith(t *testing.T, sourceEras string) []byte {
	t.Helper()
	data := string(defaultEras)
	start := strings.Index(data, "  bill_source:")
	end := strings.Index(data, "  bill_text_html:")
	require.True(t, start >= 0 && end > start)
	return []byte(data[:start] + "  bill_source:\n" + sourceEras + data[end:])
}

func TestParseRejectsBadTables(t *testing.T) {
	tests := []struct {
		name string
		eras string
		want string
	}{
		{
			name: "gap",
			eras: "    - {from: 1, to: 92, variant: unsupported}\n    - {from: 94, to: 199, variant: allinfo-three-column}\n",
			want: "gap",
		},
		{
			name: "overlap",
			eras: "    - {from: 1, to: 95, variant: unsupported}\n    - {from: 93, to: 199, variant: allinfo-three-column}\n",
			want: "overlap",
		},
		{
			name: "short",
			eras: "    - {from: 1, to: 150, variant: allinfo-three-column}\n",
			want: "end at 150",
		},
		{
			name: "no variant",
			eras: "    - {from: 1, to: 199}\n",
			want: "no variant",
		},
		{
			name: "inverted",
			eras: "    - {from: 1, to: 0, variant: unsupported}\n    - {from: 1, to: 199, variant: unsupported}\n",
			want: "inverted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tableWith(t, tt.eras))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRejectsMissingKind(t *testing.T) {
	_, err := Parse([]byte("max_congress: 10\neras:\n  bill_source:\n    - {from: 1, to: 10, variant: unsupported}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no eras for kind")
}

func TestParseRejectsUnknownKind(t *testing.T) {
	data := string(defaultEras) + "  house_amendment:\n    - {from: 1, to: 199, variant: unsupported}\n"
	_, err := Parse([]byte(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown artifact kind")
}

func TestParseAcceptsUnorderedEras(t *testing.T) {
	table, err := Parse(tableWith(t, "    - {from: 101, to: 199, variant: allinfo-three-column}\n    - {from: 1, to: 100, variant: unsupported}\n"))
	require.NoError(t, err)
	era, err := table.Select(model.KindBillSource, 150)
	require.NoError(t, err)
	assert.Equal(t, 101, era.From)
}

func TestValidateVariants(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	assert.NoError(t, table.Validate(func(string) bool { return true }))

	err = table.Validate(func(v string) bool { return v != "cbo-pdf" })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cbo-pdf")
}

func TestLoadFile(t *testing.T) {
	table, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 199, table.MaxCongress())

	path := filepath.Join(t.TempDir(), "eras.yaml")
	require.NoError(t, os.WriteFile(path, defaultEras, 0o644))
	table, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 199, table.MaxCongress())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
