package market

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"predictpool/pkg/types"
)

// MinArbitrageProfitBps is the smallest mispricing reported as an
// arbitrage opportunity.
const MinArbitrageProfitBps = 100

var half = decimal.New(5, -1)

// CalculateOdds returns each pool's share of the pot as an exact decimal.
// The NO share is derived as 1 - yes so the pair always sums to one.
func (m *Market) CalculateOdds() (yes, no decimal.Decimal) {
	if m.YesPool == 0 && m.NoPool == 0 {
		return half, half
	}
	y := decimal.NewFromBigInt(new(big.Int).SetUint64(m.YesPool), 0)
	n := decimal.NewFromBigInt(new(big.Int).SetUint64(m.NoPool), 0)
	yes = y.Div(y.Add(n))
	return yes, decimal.NewFromInt(1).Sub(yes)
}

// GetSpotPrices returns the YES and NO prices in basis points. An empty
// market prices both sides at 5000; otherwise no = 10000 - yes.
func (m *Market) GetSpotPrices() (yesBps, noBps uint64) {
	yes := spotYesBps(m.YesPool, m.NoPool)
	return yes, BpsDenominator - yes
}

func spotYesBps(yesPool, noPool uint64) uint64 {
	if yesPool == 0 && noPool == 0 {
		return BpsDenominator / 2
	}
	total := new(uint256.Int).Add(uint256.NewInt(yesPool), uint256.NewInt(noPool))
	// yes <= total, so the quotient is at most 10000.
	q, _ := mulDivWide(uint256.NewInt(yesPool), uint256.NewInt(BpsDenominator), total)
	return q
}

// CalculatePriceImpact returns how far, in basis points, the YES spot price
// would move if amount were added to side's pool. The simulated pool must
// still fit in 64 bits.
func (m *Market) CalculatePriceImpact(amount uint64, side types.Outcome) (uint64, error) {
	y, n := m.YesPool, m.NoPool
	before := spotYesBps(y, n)

	var err error
	switch side {
	case types.Yes:
		y, err = checkedAdd(y, amount)
	case types.No:
		n, err = checkedAdd(n, amount)
	default:
		return 0, ErrInvalidOutcome
	}
	if err != nil {
		return 0, err
	}
	return absDiff(spotYesBps(y, n), before), nil
}

// CalculateArbitrageOpportunity compares an external YES probability with
// the pool's prices. The YES side is checked first; NO is only considered
// when YES shows no edge. ok is false when neither side is underpriced by
// more than MinArbitrageProfitBps or when externalYesBps exceeds 10000.
func (m *Market) CalculateArbitrageOpportunity(externalYesBps uint64) (side types.Outcome, profitBps uint64, ok bool) {
	if externalYesBps > BpsDenominator {
		return 0, 0, false
	}
	yes, no := m.GetSpotPrices()
	if externalYesBps > yes+MinArbitrageProfitBps {
		return types.Yes, externalYesBps - yes, true
	}
	externalNo := BpsDenominator - externalYesBps
	if externalNo > no+MinArbitrageProfitBps {
		return types.No, externalNo - no, true
	}
	return 0, 0, false
}

// GetExpectedPayout projects what a fresh bet of amount on side would pay
// if it won at the current pool state, ignoring fees. A cold side pays even
// odds.
func (m *Market) GetExpectedPayout(amount uint64, side types.Outcome) (uint64, error) {
	if !side.Valid() {
		return 0, ErrInvalidOutcome
	}
	win, lose := m.Pools(side)
	if win == 0 {
		return checkedMul(amount, 2)
	}
	totalAfter, err := checkedAdd(win, lose)
	if err != nil {
		return 0, err
	}
	if totalAfter, err = checkedAdd(totalAfter, amount); err != nil {
		return 0, err
	}
	winAfter, err := checkedAdd(win, amount)
	if err != nil {
		return 0, err
	}
	return mulDiv(amount, totalAfter, winAfter)
}
