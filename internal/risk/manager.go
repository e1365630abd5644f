// Package risk enforces portfolio-level limits across all markets.
//
// After every pool mutation the engine sends the manager a PoolReport and the
// manager checks it against configured limits:
//
//   - Global exposure:     caps market-maker exposure summed across all markets
//   - Rapid pool movement: fires if the YES spot price moves more than
//     KillSwitchMoveBps within KillSwitchWindow
//
// A breach returns KillSignals; the engine pauses the named market. After a
// kill the market's switch stays engaged for CooldownAfterKill and it may not
// be unpaused before then. Time is taken from the reports so the checks are
// deterministic.
package risk

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"predictpool/internal/config"
)

// PoolReport is sent by the engine after each bet or liquidity provision.
type PoolReport struct {
	MarketID      string
	YesBps        uint64 // YES spot price after the mutation
	MakerExposure uint64 // the market maker's current exposure, 0 without a maker
	Timestamp     int64  // unix seconds
}

// KillSignal asks the engine to pause MarketID until Until. Global is set when
// the breach is portfolio-wide rather than specific to the market's own pool.
type KillSignal struct {
	MarketID string
	Global   bool
	Reason   string
	Until    int64
}

// priceAnchor stores a reference price at a point in time for detecting
// rapid movements within a rolling window.
type priceAnchor struct {
	bps       uint64
	timestamp int64
}

// Manager aggregates pool reports and decides when to pause markets.
type Manager struct {
	cfg    config.RiskConfig
	logger *slog.Logger

	mu            sync.RWMutex
	reports       map[string]PoolReport // latest report per market
	totalExposure uint64                // saturating sum of MakerExposure
	killUntil     map[string]int64      // market → end of kill cooldown
	priceAnchors  map[string]priceAnchor
}

// NewManager creates a risk manager.
func NewManager(cfg config.RiskConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		logger:       logger.With("component", "risk"),
		reports:      make(map[string]PoolReport),
		killUntil:    make(map[string]int64),
		priceAnchors: make(map[string]priceAnchor),
	}
}

// Check records report and returns the kill signals it triggers, if any.
func (rm *Manager) Check(report PoolReport) []KillSignal {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.reports[report.MarketID] = report
	rm.recomputeTotals()

	var signals []KillSignal
	if rm.cfg.MaxGlobalExposure > 0 && rm.totalExposure > rm.cfg.MaxGlobalExposure {
		signals = append(signals, rm.emitKill(report, true, fmt.Sprintf(
			"global maker exposure %d above limit %d", rm.totalExposure, rm.cfg.MaxGlobalExposure,
		)))
	}
	if sig, ok := rm.checkPriceMovement(report); ok {
		signals = append(signals, sig)
	}
	return signals
}

// Seed restores a market's persisted exposure and kill cooldown after a
// restart. It sets no price anchor; the first live report does that.
func (rm *Manager) Seed(marketID string, makerExposure uint64, killUntil int64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.reports[marketID] = PoolReport{MarketID: marketID, MakerExposure: makerExposure}
	if killUntil > 0 {
		rm.killUntil[marketID] = killUntil
	}
	rm.recomputeTotals()
}

// RemoveMarket cleans up state for a settled market.
func (rm *Manager) RemoveMarket(marketID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	delete(rm.reports, marketID)
	delete(rm.priceAnchors, marketID)
	delete(rm.killUntil, marketID)
	rm.recomputeTotals()
}

// IsKillSwitchActive returns whether marketID's kill switch is engaged at
// now, and when its cooldown ends.
func (rm *Manager) IsKillSwitchActive(marketID string, now int64) (bool, int64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	until, ok := rm.killUntil[marketID]
	if !ok {
		return false, 0
	}
	if now >= until {
		delete(rm.killUntil, marketID)
		rm.logger.Info("kill switch cooldown expired", "market", marketID)
		return false, 0
	}
	return true, until
}

// RemainingBudget returns how much more maker exposure any market may take on
// before the global limit is reached. The market's own current exposure is
// already part of the total. Without a limit it returns MaxUint64.
func (rm *Manager) RemainingBudget() uint64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if rm.cfg.MaxGlobalExposure == 0 {
		return math.MaxUint64
	}
	if rm.totalExposure >= rm.cfg.MaxGlobalExposure {
		return 0
	}
	return rm.cfg.MaxGlobalExposure - rm.totalExposure
}

// RiskSnapshot represents aggregate risk metrics.
type RiskSnapshot struct {
	GlobalExposure    uint64           `json:"global_exposure"`
	MaxGlobalExposure uint64           `json:"max_global_exposure"`
	KillCooldowns     map[string]int64 `json:"kill_cooldowns"` // market → cooldown end, may include expired entries
	MarketsTracked    int              `json:"markets_tracked"`
}

// GetRiskSnapshot returns current aggregate risk metrics.
func (rm *Manager) GetRiskSnapshot() RiskSnapshot {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	cooldowns := make(map[string]int64, len(rm.killUntil))
	for id, until := range rm.killUntil {
		cooldowns[id] = until
	}
	return RiskSnapshot{
		GlobalExposure:    rm.totalExposure,
		MaxGlobalExposure: rm.cfg.MaxGlobalExposure,
		KillCooldowns:     cooldowns,
		MarketsTracked:    len(rm.reports),
	}
}

func (rm *Manager) recomputeTotals() {
	var total uint64
	for _, r := range rm.reports {
		if total+r.MakerExposure < total {
			total = math.MaxUint64
			break
		}
		total += r.MakerExposure
	}
	rm.totalExposure = total
}

// checkPriceMovement compares the YES spot price to the anchor set at the
// start of the window. An expired or missing anchor is reset to the report.
func (rm *Manager) checkPriceMovement(report PoolReport) (KillSignal, bool) {
	window := int64(rm.cfg.KillSwitchWindow / time.Second)

	anchor, ok := rm.priceAnchors[report.MarketID]
	if !ok || report.Timestamp-anchor.timestamp > window {
		rm.priceAnchors[report.MarketID] = priceAnchor{bps: report.YesBps, timestamp: report.Timestamp}
		return KillSignal{}, false
	}
	if rm.cfg.KillSwitchMoveBps == 0 {
		return KillSignal{}, false
	}

	moved := report.YesBps - anchor.bps
	if anchor.bps > report.YesBps {
		moved = anchor.bps - report.YesBps
	}
	if moved <= rm.cfg.KillSwitchMoveBps {
		return KillSignal{}, false
	}
	return rm.emitKill(report, false, fmt.Sprintf(
		"rapid pool movement: %d bps in %ds", moved, window,
	)), true
}

// emitKill engages the market's kill switch and starts its cooldown. A
// running cooldown is only ever extended.
func (rm *Manager) emitKill(report PoolReport, global bool, reason string) KillSignal {
	until := report.Timestamp + int64(rm.cfg.CooldownAfterKill/time.Second)
	if prev := rm.killUntil[report.MarketID]; prev > until {
		until = prev
	}
	rm.killUntil[report.MarketID] = until

	rm.logger.Error("KILL SWITCH",
		"market", report.MarketID,
		"global", global,
		"reason", reason,
		"cooldown_until", until,
	)
	return KillSignal{MarketID: report.MarketID, Global: global, Reason: reason, Until: until}
}
