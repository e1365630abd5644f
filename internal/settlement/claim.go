// Package settlement turns resolved markets into payouts and consolidates
// protocol fees.
//
// Claims use one fee model: the protocol fee was taken when each bet was
// placed, so pools already hold net stakes and nothing is deducted again at
// payout. Pools are frozen at resolution; a claim reads them but never debits
// them, so every winner is paid against the same pool totals.
package settlement

import (
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	"predictpool/internal/market"
	"predictpool/pkg/types"
)

// Payout is the result of a claim.
type Payout struct {
	Winner       types.Outcome
	WinningStake uint64
	Profit       uint64
	Total        uint64
}

// Transfers returns the value movements a payout implies: principal from the
// winning vault and profit from the losing vault, both to claimant.
// Zero legs are omitted.
func (p Payout) Transfers(m *market.Market, claimant common.Address) []types.Transfer {
	to := market.AccountOf(claimant)
	var out []types.Transfer
	if p.WinningStake > 0 {
		out = append(out, types.Transfer{
			Asset:  m.CollateralAsset,
			From:   types.SideVault(m.ID, p.Winner),
			To:     to,
			Amount: p.WinningStake,
		})
	}
	if p.Profit > 0 {
		out = append(out, types.Transfer{
			Asset:  m.CollateralAsset,
			From:   types.SideVault(m.ID, p.Winner.Opposite()),
			To:     to,
			Amount: p.Profit,
		})
	}
	return out
}

// Claim settles pos against resolved market m for claimant. A position with
// nothing on the winning side is marked claimed with a zero payout. The
// position is only marked claimed when the payout was computed successfully.
func Claim(m *market.Market, pos *market.Position, claimant common.Address) (Payout, error) {
	if pos == nil || pos.MarketID != m.ID {
		return Payout{}, market.ErrInvalidMarket
	}
	if pos.Owner != claimant {
		return Payout{}, market.ErrUnauthorized
	}
	if !m.IsResolved || m.WinningOutcome == nil {
		return Payout{}, market.ErrMarketNotResolved
	}
	if !pos.HasPosition() {
		return Payout{}, market.ErrNoPosition
	}
	if pos.Claimed {
		return Payout{}, market.ErrAlreadyClaimed
	}

	p, err := computePayout(m, pos)
	if err != nil {
		return Payout{}, err
	}
	pos.Claimed = true
	return p, nil
}

// PendingPayout projects what Claim would pay right now. It is zero for an
// unresolved market, a claimed position or a losing position.
func PendingPayout(m *market.Market, pos *market.Position) (uint64, error) {
	if pos == nil || pos.MarketID != m.ID {
		return 0, market.ErrInvalidMarket
	}
	if !m.IsResolved || m.WinningOutcome == nil || pos.Claimed {
		return 0, nil
	}
	p, err := computePayout(m, pos)
	if err != nil {
		return 0, err
	}
	return p.Total, nil
}

func computePayout(m *market.Market, pos *market.Position) (Payout, error) {
	winner := *m.WinningOutcome
	stake := pos.WinningStake(winner)
	if stake == 0 {
		return Payout{Winner: winner}, nil
	}
	win, lose := m.Pools(winner)
	profit, err := market.CalculateProfit(stake, win, lose)
	if err != nil {
		return Payout{}, err
	}
	total, carry := bits.Add64(stake, profit, 0)
	if carry != 0 {
		return Payout{}, market.ErrMathOverflow
	}
	return Payout{Winner: winner, WinningStake: stake, Profit: profit, Total: total}, nil
}
