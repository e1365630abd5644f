package market

import (
	"github.com/ethereum/go-ethereum/common"

	"predictpool/pkg/types"
)

// Position is one participant's stake record in one market. MarketID is a
// lookup reference only; every mutation checks it against the market.
type Position struct {
	MarketID      string         `json:"market_id"`
	Owner         common.Address `json:"owner"`
	YesAmount     uint64         `json:"yes_amount"`
	NoAmount      uint64         `json:"no_amount"`
	Claimed       bool           `json:"claimed"`
	EntryOddsYes  uint64         `json:"entry_odds_yes"`
	EntryOddsNo   uint64         `json:"entry_odds_no"`
	BetTimestamp  int64          `json:"bet_timestamp"`
	TotalInvested uint64         `json:"total_invested"`
}

// AccountOf names a participant's custody account.
func AccountOf(addr common.Address) types.Account {
	return types.Account(addr.Hex())
}

// NewPosition returns an empty position for owner in marketID.
func NewPosition(marketID string, owner common.Address) *Position {
	return &Position{MarketID: marketID, Owner: owner}
}

// HasPosition is false for a record with no stake on either side.
func (p *Position) HasPosition() bool {
	return p.YesAmount > 0 || p.NoAmount > 0
}

// WinningStake returns the stake on side.
func (p *Position) WinningStake(side types.Outcome) uint64 {
	switch side {
	case types.Yes:
		return p.YesAmount
	case types.No:
		return p.NoAmount
	default:
		return 0
	}
}

// Clone returns a copy safe to mutate.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}

func (p *Position) bindTo(m *Market) error {
	if p == nil || p.MarketID != m.ID {
		return ErrInvalidMarket
	}
	if p.Claimed {
		return ErrAlreadyClaimed
	}
	return nil
}
