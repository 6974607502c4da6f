package confirm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetAllMode(t *testing.T) {
	threshold := Threshold{Mode: ThresholdAll}
	require.False(t, Met(threshold, 2, 3))
	require.True(t, Met(threshold, 3, 3))
	require.True(t, Met(threshold, 1, 1))
	require.False(t, Met(threshold, 0, 1))
}

func TestMetMajorityMode(t *testing.T) {
	threshold := Threshold{Mode: ThresholdMajority}
	cases := []struct {
		parties uint32
		count   uint32
		met     bool
	}{
		{1, 0, false},
		{1, 1, true},
		{2, 1, true},
		{3, 1, false},
		{3, 2, true},
		{4, 1, false},
		{4, 2, true},
		{5, 2, false},
		{5, 3, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.met, Met(threshold, tc.count, tc.parties),
			"parties=%d count=%d", tc.parties, tc.count)
	}
}

func TestMetCustomModeIsUncapped(t *testing.T) {
	// A custom requirement above the party count can never be satisfied by
	// distinct parties; Met does not clamp it.
	threshold := Threshold{Mode: ThresholdCustom, Required: 5}
	require.False(t, Met(threshold, 3, 3))
	require.False(t, Met(threshold, 4, 3))
	require.True(t, Met(threshold, 5, 3))
}

func TestRequiredClampsCustom(t *testing.T) {
	require.Equal(t, uint32(3), Required(Threshold{Mode: ThresholdCustom, Required: 5}, 3))
	require.Equal(t, uint32(2), Required(Threshold{Mode: ThresholdCustom, Required: 2}, 3))
	require.Equal(t, uint32(3), Required(Threshold{Mode: ThresholdAll}, 3))
	require.Equal(t, uint32(2), Required(Threshold{Mode: ThresholdMajority}, 3))
	require.Equal(t, uint32(1), Required(Threshold{Mode: ThresholdMajority}, 1))
}

func TestRemaining(t *testing.T) {
	majority := Threshold{Mode: ThresholdMajority}
	require.Equal(t, uint32(2), Remaining(majority, 0, 3))
	require.Equal(t, uint32(1), Remaining(majority, 1, 3))
	require.Equal(t, uint32(0), Remaining(majority, 2, 3))
	require.Equal(t, uint32(0), Remaining(majority, 5, 3))
}

func TestThresholdValidate(t *testing.T) {
	require.NoError(t, Threshold{Mode: ThresholdAll}.Validate())
	require.NoError(t, Threshold{Mode: ThresholdMajority}.Validate())
	require.NoError(t, Threshold{Mode: ThresholdCustom, Required: 1}.Validate())
	require.ErrorIs(t, Threshold{Mode: ThresholdCustom}.Validate(), ErrInvalidThreshold)
	require.ErrorIs(t, Threshold{Mode: ThresholdMode(99)}.Validate(), ErrInvalidThreshold)
}
