package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoteKeyRoundTrip(t *testing.T) {
	t.Parallel()

	key := VoteKey{Congress: 118, Chamber: ChamberHouse, RollCall: 50}
	assert.Equal(t, "118/house/50", key.String())

	parsed, err := ParseVoteKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func TestParseVoteKeyErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "118/house", "x/house/1", "118/joint/1", "118/senate/0", "118/senate/1/2"} {
		_, err := ParseVoteKey(in)
		assert.Error(t, err, in)
	}
}

func TestVoteRecordLocksOnOwnKey(t *testing.T) {
	t.Parallel()

	filed := BillKey{Congress: 118, Type: BillTypeHR, Number: 1}
	v := &VoteRecord{Key: VoteKey{Congress: 118, Chamber: ChamberSenate, RollCall: 7}, FiledUnder: &filed}
	assert.Equal(t, "vote:118/senate/7", v.LockKey())
	congress, bill := v.Scope()
	assert.Equal(t, 118, congress)
	assert.Empty(t, bill)
}
