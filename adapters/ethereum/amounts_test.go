package ethereum

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThorbenD/atomic-bridge-go/domain"
)

func TestWeiFromAmountScalesUp(t *testing.T) {
	wei := WeiFromAmount(domain.Amount(1_000_000))

	// 1_000_000 base units at 8 decimals = 0.01 of the asset = 10^16 wei.
	assert.Equal(t, "10000000000000000", wei.String())
}

func TestAmountFromWeiRoundTrip(t *testing.T) {
	for _, amount := range []domain.Amount{0, 1, 1_000_000, 42_0000_0000} {
		back, err := AmountFromWei(WeiFromAmount(amount))
		require.NoError(t, err)
		assert.Equal(t, amount, back)
	}
}

func TestAmountFromWeiRejectsDust(t *testing.T) {
	wei := WeiFromAmount(domain.Amount(5))
	wei.Add(wei, big.NewInt(1))

	_, err := AmountFromWei(wei)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a whole number")
}

func TestAmountFromWeiRejectsOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 200)

	_, err := AmountFromWei(huge)
	require.Error(t, err)
}
