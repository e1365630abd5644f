package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"predictpool/pkg/types"
)

// EventType names what happened.
type EventType string

const (
	EventMarketCreated EventType = "market_created"
	EventBet           EventType = "bet"
	EventLiquidity     EventType = "liquidity"
	EventResolved      EventType = "resolved"
	EventClaimed       EventType = "claimed"
	EventPaused        EventType = "paused"
	EventTransition    EventType = "transition"
	EventConsolidated  EventType = "consolidated"
	EventKill          EventType = "kill"
)

// Event is the wrapper for everything the engine publishes.
type Event struct {
	Type      EventType `json:"type"`
	MarketID  string    `json:"market_id"`
	Timestamp int64     `json:"timestamp"` // caller-supplied clock, unix seconds
	Data      any       `json:"data"`
}

// BetEvent is emitted after a bet commits.
type BetEvent struct {
	Bettor common.Address `json:"bettor"`
	Side   types.Outcome  `json:"side"`
	Amount uint64         `json:"amount"`
	Fee    uint64         `json:"fee"`
	YesBps uint64         `json:"yes_bps"`
	NoBps  uint64         `json:"no_bps"`
}

// LiquidityEvent is emitted after a maker adds to both pools.
type LiquidityEvent struct {
	Provider      common.Address `json:"provider"`
	AmountPerSide uint64         `json:"amount_per_side"`
	Exposure      uint64         `json:"exposure"`
}

// ResolvedEvent is emitted once per market.
type ResolvedEvent struct {
	Outcome    types.Outcome `json:"outcome"`
	FinalPrice int64         `json:"final_price"`
	FromOracle bool          `json:"from_oracle"`
}

// ClaimedEvent is emitted for every successful claim, including zero payouts.
type ClaimedEvent struct {
	Claimant common.Address `json:"claimant"`
	Amount   uint64         `json:"amount"`
}

// PauseEvent is emitted when the pause flag changes.
type PauseEvent struct {
	Paused bool   `json:"paused"`
	Reason string `json:"reason,omitempty"`
}

// TransitionEvent is emitted when a market leaves Active for a side exit.
type TransitionEvent struct {
	To types.MarketStatus `json:"to"`
}

// ConsolidatedEvent is emitted after a fee sweep.
type ConsolidatedEvent struct {
	Amount    uint64 `json:"amount"`
	Treasury  uint64 `json:"treasury"`
	Liquidity uint64 `json:"liquidity"`
	Creator   uint64 `json:"creator"`
}

// KillEvent is emitted for every risk kill signal.
type KillEvent struct {
	Reason string `json:"reason"`
	Global bool   `json:"global"`
	Until  int64  `json:"until"`
}

// emit publishes evt without blocking. Events are dropped when nobody keeps up.
func (e *Engine) emit(typ EventType, marketID string, now int64, data any) {
	if e.events == nil {
		return
	}
	evt := Event{Type: typ, MarketID: marketID, Timestamp: now, Data: data}
	select {
	case e.events <- evt:
	default:
		e.logger.Debug("event channel full, dropping event", "type", typ, "market", marketID)
	}
}
