package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBillType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want BillType
		ok   bool
	}{
		{"hr", BillTypeHR, true},
		{"HJRES", BillTypeHJRes, true},
		{"house-bill", BillTypeHR, true},
		{"senate-concurrent-resolution", BillTypeSConRes, true},
		{"senate-joint-resolution", BillTypeSJRes, true},
		{"hamdt", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseBillType(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBillKeyRoundTrip(t *testing.T) {
	t.Parallel()

	key := BillKey{Congress: 118, Type: BillTypeHR, Number: 1}
	assert.Equal(t, "118/hr/1", key.String())

	parsed, err := ParseBillKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func TestParseBillKeyErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "118/hr", "x/hr/1", "118/zz/1", "118/hr/0", "118/hr/1/2"} {
		_, err := ParseBillKey(in)
		assert.Error(t, err, in)
	}
}

func TestBillTypeChamberAndDesignation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ChamberHouse, BillTypeHConRes.Chamber())
	assert.Equal(t, ChamberSenate, BillTypeS.Chamber())
	assert.Equal(t, "H.R. 1319", BillKey{Congress: 117, Type: BillTypeHR, Number: 1319}.Designation())
	assert.Equal(t, "S.J.Res. 7", BillTypeSJRes.Designation(7))
}

func TestBillPrimarySponsor(t *testing.T) {
	t.Parallel()

	b := &Bill{Sponsors: []Sponsor{
		{Role: SponsorRoleCosponsor, Name: "Smith, Adam"},
		{Role: SponsorRolePrimary, Name: "Pelosi, Nancy"},
	}}
	s, ok := b.Sponsor()
	require.True(t, ok)
	assert.Equal(t, "Pelosi, Nancy", s.Name)

	_, ok = (&Bill{}).Sponsor()
	assert.False(t, ok)
}
