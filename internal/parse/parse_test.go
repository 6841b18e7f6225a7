package parse

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
)

// fakePDF returns canned text for any input.
type fakePDF struct {
	text  string
	err   error
	calls int
}

func (f *fakePDF) ExtractText(_ context.Context, _ []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func billInput(kind model.ArtifactKind, subID string, data []byte) Input {
	return Input{
		Descriptor: model.Descriptor{
			Congress:   118,
			BillType:   model.BillTypeHR,
			BillNumber: 1,
			Kind:       kind,
			SubID:      subID,
		},
		Data: data,
	}
}

func assertKind(t *testing.T, err error, kind resilience.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, resilience.KindOf(err), "error: %v", err)
}

func TestRegistry_Variants(t *testing.T) {
	r := NewRegistry(&fakePDF{})

	assert.Equal(t, []string{
		VariantAllInfoThreeColumn,
		VariantAllInfoTwoColumn,
		VariantCBOPDF,
		VariantClerkEVS,
		VariantTextPage,
		VariantPDFText,
		VariantPlainText,
		VariantSenateLIS,
	}, r.Variants())

	for _, v := range r.Variants() {
		p, err := r.Get(v)
		require.NoError(t, err)
		assert.Equal(t, v, p.Variant())
		assert.True(t, r.Known(v))
	}

	_, err := r.Get("microfiche")
	assert.Error(t, err)
	assert.False(t, r.Known("microfiche"))
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry(&fakePDF{})
	before := len(r.Variants())
	r.Register(&PlainTextParser{})
	assert.Len(t, r.Variants(), before)
}

func TestParseSponsor(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		href   string
		want   model.Sponsor
		wantOK bool
	}{
		{
			name:   "representative",
			raw:    "Rep. Scalise, Steve [R-LA-1]",
			href:   "/member/steve-scalise/S001189",
			want:   model.Sponsor{Role: model.SponsorRolePrimary, Title: "Rep.", Name: "Scalise, Steve", Party: "R", State: "LA", District: "1", BioguideID: "S001189"},
			wantOK: true,
		},
		{
			name:   "senator without district",
			raw:    "Sen. Hirono, Mazie K. [D-HI]",
			href:   "https://www.congress.gov/member/mazie-hirono/H001042?q=x",
			want:   model.Sponsor{Role: model.SponsorRolePrimary, Title: "Sen.", Name: "Hirono, Mazie K.", Party: "D", State: "HI", BioguideID: "H001042"},
			wantOK: true,
		},
		{
			name:   "original cosponsor marker and private legislation",
			raw:    "Rep. Smith, Jane [I-VT-At Large]* (Private Legislation)",
			want:   model.Sponsor{Role: model.SponsorRolePrimary, Title: "Rep.", Name: "Smith, Jane", Party: "I", State: "VT", District: "At Large"},
			wantOK: true,
		},
		{
			name:   "unrecognized grammar keeps raw name",
			raw:    "Committee on Rules",
			href:   "/committee/rules",
			want:   model.Sponsor{Role: model.SponsorRolePrimary, Name: "Committee on Rules"},
			wantOK: true,
		},
		{
			name: "empty",
			raw:  "  * ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseSponsor(tt.raw, tt.href, model.SponsorRolePrimary)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalText(t *testing.T) {
	assert.Equal(t, "a b c", canonicalText("  a\n\tb   c \n"))
	assert.Equal(t, hashRecord(map[string]string{"k": canonicalText("x  y")}), hashRecord(map[string]string{"k": canonicalText("x\ny")}))
}
