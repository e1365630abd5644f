package settlement

import (
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	"predictpool/internal/market"
	"predictpool/internal/strategy"
	"predictpool/pkg/types"
)

// FeeDistribution splits consolidated fees. The three shares sum to 10000.
type FeeDistribution struct {
	TreasuryBps  uint16 `json:"treasury_bps"`
	LiquidityBps uint16 `json:"liquidity_bps"`
	CreatorBps   uint16 `json:"creator_bps"`
}

// DefaultDistribution sends half to the treasury, 30% to liquidity and 20%
// to the market creator.
func DefaultDistribution() FeeDistribution {
	return FeeDistribution{TreasuryBps: 5000, LiquidityBps: 3000, CreatorBps: 2000}
}

// Validate checks that the shares sum to exactly 10000.
func (d FeeDistribution) Validate() error {
	sum := uint32(d.TreasuryBps) + uint32(d.LiquidityBps) + uint32(d.CreatorBps)
	if sum != market.BpsDenominator {
		return fmt.Errorf("fee distribution sums to %d bps, want %d: %w", sum, market.BpsDenominator, market.ErrInvalidParameter)
	}
	return nil
}

// FeeSplit is one amount divided by a FeeDistribution.
type FeeSplit struct {
	Treasury  uint64 `json:"treasury"`
	Liquidity uint64 `json:"liquidity"`
	Creator   uint64 `json:"creator"`
}

// Split divides amount. The liquidity and creator shares round down and the
// treasury takes the remainder, so the three always add up to amount.
func (d FeeDistribution) Split(amount uint64) (FeeSplit, error) {
	if err := d.Validate(); err != nil {
		return FeeSplit{}, err
	}
	liquidity, _, err := market.CalculateFee(amount, d.LiquidityBps)
	if err != nil {
		return FeeSplit{}, err
	}
	creator, _, err := market.CalculateFee(amount, d.CreatorBps)
	if err != nil {
		return FeeSplit{}, err
	}
	return FeeSplit{
		Treasury:  amount - liquidity - creator,
		Liquidity: liquidity,
		Creator:   creator,
	}, nil
}

// FeeCollector is the explicit fee-consolidation configuration passed to
// Consolidate. There is no process-wide instance.
type FeeCollector struct {
	Authority          common.Address  `json:"authority"`
	Treasury           common.Address  `json:"treasury"`
	Distribution       FeeDistribution `json:"distribution"`
	TotalFeesCollected uint64          `json:"total_fees_collected"`
}

// Consolidation describes one fee sweep out of a market's fee vault.
type Consolidation struct {
	MarketID  string
	Amount    uint64
	Split     FeeSplit
	Transfers []types.Transfer
}

// Consolidate sweeps feeBalance out of m's fee vault according to the
// collector's distribution. The liquidity share goes to the maker's
// authority and is credited to its FeesEarned; without a maker it goes to
// the treasury. The collector and maker are only updated when every step
// succeeds.
func Consolidate(c *FeeCollector, m *market.Market, maker *strategy.MarketMaker, caller common.Address, feeBalance uint64) (Consolidation, error) {
	if caller != c.Authority {
		return Consolidation{}, market.ErrUnauthorized
	}
	if !m.IsResolved {
		return Consolidation{}, market.ErrMarketNotResolved
	}
	if maker != nil && maker.MarketID != m.ID {
		return Consolidation{}, market.ErrInvalidMarket
	}

	split, err := c.Distribution.Split(feeBalance)
	if err != nil {
		return Consolidation{}, err
	}
	if maker == nil {
		split.Treasury += split.Liquidity
		split.Liquidity = 0
	}

	total, carry := bits.Add64(c.TotalFeesCollected, feeBalance, 0)
	if carry != 0 {
		return Consolidation{}, market.ErrMathOverflow
	}
	var makerNext *strategy.MarketMaker
	if maker != nil {
		makerNext = maker.Clone()
		if err := makerNext.CreditFees(split.Liquidity); err != nil {
			return Consolidation{}, err
		}
	}

	from := types.FeeVault(m.ID)
	var transfers []types.Transfer
	add := func(to common.Address, amount uint64) {
		if amount == 0 {
			return
		}
		transfers = append(transfers, types.Transfer{
			Asset:  m.CollateralAsset,
			From:   from,
			To:     market.AccountOf(to),
			Amount: amount,
		})
	}
	add(c.Treasury, split.Treasury)
	if maker != nil {
		add(maker.Authority, split.Liquidity)
	}
	add(m.Creator, split.Creator)

	c.TotalFeesCollected = total
	if maker != nil {
		*maker = *makerNext
	}
	return Consolidation{MarketID: m.ID, Amount: feeBalance, Split: split, Transfers: transfers}, nil
}
