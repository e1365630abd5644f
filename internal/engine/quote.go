package engine

import (
	"github.com/shopspring/decimal"

	"predictpool/internal/market"
	"predictpool/pkg/types"
)

// QuoteRequest asks for read-only pricing of a prospective bet.
type QuoteRequest struct {
	Side   types.Outcome
	Amount uint64
	// ExternalYesBps is a reference probability for arbitrage detection.
	// Nil skips the check.
	ExternalYesBps *uint64
}

// Arbitrage is an underpriced side relative to the external reference.
type Arbitrage struct {
	Side      types.Outcome `json:"side"`
	ProfitBps uint64        `json:"profit_bps"`
}

// Quote is a snapshot of a market's prices and what a bet would do to them.
type Quote struct {
	MarketID       string          `json:"market_id"`
	YesBps         uint64          `json:"yes_bps"`
	NoBps          uint64          `json:"no_bps"`
	OddsYes        decimal.Decimal `json:"odds_yes"`
	OddsNo         decimal.Decimal `json:"odds_no"`
	PriceImpactBps uint64          `json:"price_impact_bps"`
	ExpectedPayout uint64          `json:"expected_payout"`
	Arbitrage      *Arbitrage      `json:"arbitrage,omitempty"`

	// Maker view, only when a maker is attached.
	NeedsRebalance bool   `json:"needs_rebalance"`
	RebalanceYes   uint64 `json:"rebalance_yes"`
	RebalanceNo    uint64 `json:"rebalance_no"`
}

// Quote prices req against the current pools without changing anything.
func (e *Engine) Quote(id string, req QuoteRequest) (Quote, error) {
	slot, err := e.slot(id)
	if err != nil {
		return Quote{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	m := slot.state.Market
	q := Quote{MarketID: id}
	q.YesBps, q.NoBps = m.GetSpotPrices()
	q.OddsYes, q.OddsNo = m.CalculateOdds()

	if req.Amount > 0 {
		if !req.Side.Valid() {
			return Quote{}, market.ErrInvalidOutcome
		}
		if q.PriceImpactBps, err = m.CalculatePriceImpact(req.Amount, req.Side); err != nil {
			return Quote{}, err
		}
		if q.ExpectedPayout, err = m.GetExpectedPayout(req.Amount, req.Side); err != nil {
			return Quote{}, err
		}
	}
	if req.ExternalYesBps != nil {
		if side, profit, ok := m.CalculateArbitrageOpportunity(*req.ExternalYesBps); ok {
			q.Arbitrage = &Arbitrage{Side: side, ProfitBps: profit}
		}
	}
	if mm := slot.state.Maker; mm != nil {
		q.NeedsRebalance = mm.ShouldRebalance(m.YesPool, m.NoPool)
		q.RebalanceYes, q.RebalanceNo = mm.CalculateRebalanceAmounts(m.YesPool, m.NoPool)
	}
	return q, nil
}
