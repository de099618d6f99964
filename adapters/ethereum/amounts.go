package ethereum

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ThorbenD/atomic-bridge-go/domain"
)

// The contracts account in wei, the bridge core in 8-decimal base units, so
// one base unit is 10^10 wei.
const (
	baseUnitDecimals = 8
	weiDecimals      = 18
)

// WeiFromAmount scales a bridge amount up to wei.
func WeiFromAmount(a domain.Amount) *big.Int {
	units := decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), 0)
	return units.Shift(weiDecimals - baseUnitDecimals).BigInt()
}

// AmountFromWei scales wei down to a bridge amount. Dust below one base unit
// and values past the uint64 range are rejected rather than truncated.
func AmountFromWei(wei *big.Int) (domain.Amount, error) {
	units := decimal.NewFromBigInt(wei, 0).Shift(baseUnitDecimals - weiDecimals)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("amount %s wei is not a whole number of base units", wei)
	}
	value := units.BigInt()
	if value.Sign() < 0 || !value.IsUint64() {
		return 0, fmt.Errorf("amount %s wei is outside the base unit range", wei)
	}
	return domain.Amount(value.Uint64()), nil
}
