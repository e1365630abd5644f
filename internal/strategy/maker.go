// Package strategy implements the symmetric market-maker liquidity unit.
//
// A MarketMaker is bound to exactly one market. It supplies equal stake to
// both pools, tracks its own exposure against a hard cap, and reports when
// the pool skew has drifted past its target spread. Ordinary bets never
// touch maker exposure.
package strategy

import (
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	"predictpool/internal/market"
)

const midpointBps = market.BpsDenominator / 2

// MarketMaker is the persisted liquidity-supplier record for one market.
type MarketMaker struct {
	MarketID            string         `json:"market_id"`
	Authority           common.Address `json:"authority"`
	TargetSpreadBps     uint64         `json:"target_spread_bps"`
	MaxExposure         uint64         `json:"max_exposure"`
	CurrentExposure     uint64         `json:"current_exposure"`
	TotalVolumeProvided uint64         `json:"total_volume_provided"`
	FeesEarned          uint64         `json:"fees_earned"`
	LastRebalance       int64          `json:"last_rebalance"`
	IsActive            bool           `json:"is_active"`
}

// NewMarketMaker binds a maker owned by authority to m.
func NewMarketMaker(m *market.Market, authority common.Address, targetSpreadBps, maxExposure uint64, now int64) (*MarketMaker, error) {
	if m == nil {
		return nil, market.ErrInvalidMarket
	}
	if m.IsResolved {
		return nil, market.ErrMarketAlreadyResolved
	}
	if targetSpreadBps > market.BpsDenominator || maxExposure == 0 {
		return nil, market.ErrInvalidParameter
	}
	return &MarketMaker{
		MarketID:        m.ID,
		Authority:       authority,
		TargetSpreadBps: targetSpreadBps,
		MaxExposure:     maxExposure,
		LastRebalance:   now,
		IsActive:        true,
	}, nil
}

// Clone returns a copy safe to mutate.
func (mm *MarketMaker) Clone() *MarketMaker {
	c := *mm
	return &c
}

// Headroom is how much more exposure the maker may take on.
func (mm *MarketMaker) Headroom() uint64 {
	if mm.CurrentExposure >= mm.MaxExposure {
		return 0
	}
	return mm.MaxExposure - mm.CurrentExposure
}

// ProvideLiquidity adds amountPerSide to both of m's pools on behalf of the
// maker's authority and records the stake in pos. Exposure grows by twice
// the amount and may not pass MaxExposure. On error neither the market, the
// position nor the maker changes.
func (mm *MarketMaker) ProvideLiquidity(m *market.Market, pos *market.Position, provider common.Address, amountPerSide uint64, now int64) error {
	if m == nil || mm.MarketID != m.ID {
		return market.ErrInvalidMarket
	}
	if !mm.IsActive {
		return market.ErrMarketNotActive
	}
	if provider != mm.Authority || pos == nil || pos.Owner != provider {
		return market.ErrUnauthorized
	}

	hi, both := bits.Mul64(amountPerSide, 2)
	if hi != 0 {
		return market.ErrMathOverflow
	}
	if both > mm.Headroom() {
		return market.ErrMaxExposureExceeded
	}
	exposure := mm.CurrentExposure + both
	volume, carry := bits.Add64(mm.TotalVolumeProvided, both, 0)
	if carry != 0 {
		return market.ErrMathOverflow
	}

	if err := m.AddLiquidity(pos, amountPerSide, now); err != nil {
		return err
	}

	mm.CurrentExposure = exposure
	mm.TotalVolumeProvided = volume
	mm.LastRebalance = now
	return nil
}

// CreditFees adds a consolidated liquidity-fee share to FeesEarned.
func (mm *MarketMaker) CreditFees(amount uint64) error {
	sum, carry := bits.Add64(mm.FeesEarned, amount, 0)
	if carry != 0 {
		return market.ErrMathOverflow
	}
	mm.FeesEarned = sum
	return nil
}

// ShouldRebalance reports whether the YES spot price sits further than
// TargetSpreadBps from an even split. Empty pools never need rebalancing.
func (mm *MarketMaker) ShouldRebalance(yesPool, noPool uint64) bool {
	if yesPool == 0 && noPool == 0 {
		return false
	}
	probe := market.Market{YesPool: yesPool, NoPool: noPool}
	yes, _ := probe.GetSpotPrices()
	var skew uint64
	if yes > midpointBps {
		skew = yes - midpointBps
	} else {
		skew = midpointBps - yes
	}
	return skew > mm.TargetSpreadBps
}

// CalculateRebalanceAmounts returns how much to add to each side to bring
// the pools back to their midpoint. At most one value is nonzero.
func (mm *MarketMaker) CalculateRebalanceAmounts(yesPool, noPool uint64) (yesNeeded, noNeeded uint64) {
	if yesPool < noPool {
		return (noPool - yesPool) / 2, 0
	}
	return 0, (yesPool - noPool) / 2
}
