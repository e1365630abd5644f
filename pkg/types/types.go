// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary of the engine: outcome sides, the
// market lifecycle status, custody accounts and transfers, oracle price
// readings. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

import (
	"fmt"
	"strings"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Outcome is one side of a binary market. The numeric values are part of the
// persisted format: YES = 0, NO = 1.
type Outcome uint8

const (
	Yes Outcome = 0
	No  Outcome = 1
)

// Valid reports whether o is one of the two defined sides.
func (o Outcome) Valid() bool {
	return o == Yes || o == No
}

// Opposite returns the other side.
func (o Outcome) Opposite() Outcome {
	if o == Yes {
		return No
	}
	return Yes
}

func (o Outcome) String() string {
	switch o {
	case Yes:
		return "YES"
	case No:
		return "NO"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// ParseOutcome accepts "yes"/"no" (any case) or "0"/"1".
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "0":
		return Yes, nil
	case "no", "1":
		return No, nil
	default:
		return 0, fmt.Errorf("unknown outcome %q", s)
	}
}

// MarketStatus is the closed set of lifecycle states a market moves through.
//
//	PendingLiquidity → Active → Resolved
//	                   Active → Disputed | Cancelled
type MarketStatus uint8

const (
	StatusPendingLiquidity MarketStatus = iota
	StatusActive
	StatusResolved
	StatusDisputed
	StatusCancelled
)

func (s MarketStatus) String() string {
	switch s {
	case StatusPendingLiquidity:
		return "pending_liquidity"
	case StatusActive:
		return "active"
	case StatusResolved:
		return "resolved"
	case StatusDisputed:
		return "disputed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("MarketStatus(%d)", uint8(s))
	}
}

// AcceptsStake reports whether pools may still grow in this state.
func (s MarketStatus) AcceptsStake() bool {
	switch s {
	case StatusPendingLiquidity, StatusActive:
		return true
	case StatusResolved, StatusDisputed, StatusCancelled:
		return false
	default:
		return false
	}
}

// ParseMarketStatus is the inverse of MarketStatus.String.
func ParseMarketStatus(s string) (MarketStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending_liquidity":
		return StatusPendingLiquidity, nil
	case "active":
		return StatusActive, nil
	case "resolved":
		return StatusResolved, nil
	case "disputed":
		return StatusDisputed, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("unknown market status %q", s)
	}
}

// MarshalText keeps persisted documents readable.
func (s MarketStatus) MarshalText() ([]byte, error) {
	switch s {
	case StatusPendingLiquidity, StatusActive, StatusResolved, StatusDisputed, StatusCancelled:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid market status %d", uint8(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MarketStatus) UnmarshalText(b []byte) error {
	v, err := ParseMarketStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Category tags a market for display and filtering only.
type Category string

const (
	CategoryCrypto        Category = "crypto"
	CategorySports        Category = "sports"
	CategoryPolitics      Category = "politics"
	CategoryWeather       Category = "weather"
	CategoryEntertainment Category = "entertainment"
	CategoryOther         Category = "other"
)

// ————————————————————————————————————————————————————————————————————————
// Custody
// ————————————————————————————————————————————————————————————————————————

// Account names a custody location. Participants are named by their hex
// address; market vaults use the helpers below.
type Account string

// YesVault holds the net YES stakes of a market.
func YesVault(marketID string) Account { return Account("market:" + marketID + ":yes") }

// NoVault holds the net NO stakes of a market.
func NoVault(marketID string) Account { return Account("market:" + marketID + ":no") }

// FeeVault holds protocol fees taken at bet time until consolidation.
func FeeVault(marketID string) Account { return Account("market:" + marketID + ":fees") }

// SideVault returns the vault for the given side.
func SideVault(marketID string, side Outcome) Account {
	if side == Yes {
		return YesVault(marketID)
	}
	return NoVault(marketID)
}

// Transfer is one "move Amount units of Asset from From to To" instruction.
// The engine only decides amounts and directions; custody executes them.
type Transfer struct {
	Asset  string  `json:"asset"`
	From   Account `json:"from"`
	To     Account `json:"to"`
	Amount uint64  `json:"amount"`
}

// Reverse returns the compensating transfer.
func (t Transfer) Reverse() Transfer {
	return Transfer{Asset: t.Asset, From: t.To, To: t.From, Amount: t.Amount}
}

// ————————————————————————————————————————————————————————————————————————
// Oracle
// ————————————————————————————————————————————————————————————————————————

// PriceReading is a raw oracle observation. Price is scaled by 10^Expo;
// Confidence is the uncertainty in the same units as Price.
type PriceReading struct {
	Price       int64  `json:"price"`
	Expo        int32  `json:"expo"`
	Confidence  uint64 `json:"conf"`
	PublishTime int64  `json:"publish_time"`
}
