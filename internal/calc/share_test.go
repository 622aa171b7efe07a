package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatedShare(t *testing.T) {
	tests := []struct {
		name     string
		inputs   []ShareInput
		expected string
	}{
		{
			name: "largest side wins",
			inputs: []ShareInput{
				{Amount: "1000", Decimals: 0, Reserve: "9000"},
				{Amount: "0", Decimals: 0, Reserve: "5000"},
			},
			expected: "10",
		},
		{
			name: "max not mean",
			inputs: []ShareInput{
				{Amount: "50", Decimals: 0, Reserve: "950"},
				{Amount: "30", Decimals: 0, Reserve: "970"},
			},
			expected: "5",
		},
		{
			name:     "tiny share",
			inputs:   []ShareInput{{Amount: "1", Decimals: 0, Reserve: "100000"}},
			expected: SentinelTiny,
		},
		{
			name:     "scaled amount",
			inputs:   []ShareInput{{Amount: "0.5", Decimals: 6, Reserve: "500000"}},
			expected: "50",
		},
		{
			name:     "empty pool and empty deposit",
			inputs:   []ShareInput{{Amount: "0", Decimals: 0, Reserve: "0"}},
			expected: SentinelEmpty,
		},
		{
			name:     "no inputs",
			inputs:   nil,
			expected: SentinelEmpty,
		},
		{
			name: "bad reserve skipped",
			inputs: []ShareInput{
				{Amount: "10", Decimals: 0, Reserve: "abc"},
				{Amount: "10", Decimals: 0, Reserve: "-1"},
				{Amount: "10", Decimals: 0, Reserve: "30"},
			},
			expected: "25",
		},
		{
			name:     "first liquidity owns everything",
			inputs:   []ShareInput{{Amount: "10", Decimals: 0, Reserve: "0"}},
			expected: "100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EstimatedShare(tt.inputs))
		})
	}
}

func TestEstimatedSharePercentZeroDeposit(t *testing.T) {
	share, ok := EstimatedSharePercent([]ShareInput{{Amount: "", Decimals: 8, Reserve: "100"}})
	require.True(t, ok)
	assert.True(t, share.IsZero())
	assert.Equal(t, "0", EstimatedShare([]ShareInput{{Amount: "", Decimals: 8, Reserve: "100"}}))
}
