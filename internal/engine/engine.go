// Package engine is the host orchestrator for pooled prediction markets.
//
// It wires together all subsystems:
//
//  1. Each market lives in a slot guarded by its own mutex, so operations on
//     different markets run in parallel and operations on one market are
//     serialised.
//  2. Every mutating operation works on a cloned state document. The engine
//     asks Custody to execute the resulting transfer batch, persists the
//     document through Store, and only then swaps the clone into the slot.
//     If persistence fails after custody succeeded, the reverse batch is
//     executed before the error is returned.
//  3. After every pool mutation the risk manager checks the pool; a kill
//     signal pauses the market and records the cooldown in its document.
//     Restored markets seed the risk manager with their maker exposure and
//     cooldown, so limits hold across restarts.
//  4. Events are published non-blocking on an optional channel.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"predictpool/internal/config"
	"predictpool/internal/market"
	"predictpool/internal/risk"
	"predictpool/internal/settlement"
	"predictpool/internal/store"
	"predictpool/pkg/types"
)

// Store persists market documents and the fee collector.
type Store interface {
	SaveMarket(st *store.MarketState) error
	LoadMarkets() ([]*store.MarketState, error)
	SaveCollector(c *settlement.FeeCollector) error
	LoadCollector() (*settlement.FeeCollector, error)
}

// Custody moves collateral between accounts. Execute must apply a batch
// atomically.
type Custody interface {
	Execute(ctx context.Context, transfers []types.Transfer) error
	Balance(asset string, acct types.Account) uint64
}

// Oracle returns the latest reading for a price feed.
type Oracle interface {
	Read(ctx context.Context, feed string) (types.PriceReading, error)
}

// marketSlot holds one market's state document. mu serialises every
// operation on the market.
type marketSlot struct {
	mu    sync.Mutex
	state *store.MarketState
}

// Engine orchestrates markets, custody, persistence and risk.
type Engine struct {
	params         market.Params
	validateOracle bool

	store   Store
	custody Custody
	oracle  Oracle
	riskMgr *risk.Manager
	logger  *slog.Logger

	// slots maps market id → slot. Protected by slotsMu.
	slots   map[string]*marketSlot
	slotsMu sync.RWMutex

	collector   *settlement.FeeCollector
	collectorMu sync.Mutex

	// events is nil when cfg.Engine.EventBuffer is 0.
	events chan Event
}

// New creates the engine and restores every market the store holds.
func New(cfg config.Config, st Store, cust Custody, orc Oracle, logger *slog.Logger) (*Engine, error) {
	collector := &settlement.FeeCollector{
		Authority: cfg.FeeCollector.AuthorityAddress(),
		Treasury:  cfg.FeeCollector.TreasuryAddress(),
		Distribution: settlement.FeeDistribution{
			TreasuryBps:  cfg.FeeCollector.TreasuryBps,
			LiquidityBps: cfg.FeeCollector.LiquidityBps,
			CreatorBps:   cfg.FeeCollector.CreatorBps,
		},
	}
	if err := collector.Distribution.Validate(); err != nil {
		return nil, err
	}
	saved, err := st.LoadCollector()
	if err != nil {
		return nil, fmt.Errorf("load fee collector: %w", err)
	}
	if saved != nil {
		// Identity and split come from config; the running total is state.
		collector.TotalFeesCollected = saved.TotalFeesCollected
	}

	states, err := st.LoadMarkets()
	if err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}

	var events chan Event
	if cfg.Engine.EventBuffer > 0 {
		events = make(chan Event, cfg.Engine.EventBuffer)
	}

	e := &Engine{
		params:         paramsFromConfig(cfg.Market),
		validateOracle: cfg.Oracle.ValidateOnResolve,
		store:          st,
		custody:        cust,
		oracle:         orc,
		riskMgr:        risk.NewManager(cfg.Risk, logger),
		logger:         logger.With("component", "engine"),
		slots:          make(map[string]*marketSlot, len(states)),
		collector:      collector,
		events:         events,
	}
	for _, s := range states {
		e.slots[s.Market.ID] = &marketSlot{state: s}
		if s.Market.IsResolved {
			continue
		}
		var exposure uint64
		if s.Maker != nil {
			exposure = s.Maker.CurrentExposure
		}
		e.riskMgr.Seed(s.Market.ID, exposure, s.KillUntil)
	}
	e.logger.Info("engine ready", "markets", len(states))
	return e, nil
}

func paramsFromConfig(c config.MarketConfig) market.Params {
	return market.Params{
		MinBetAmount:             c.MinBetAmount,
		MaxBetAmount:             c.MaxBetAmount,
		MinSettlementTime:        c.MinSettlementTime,
		MaxSettlementTime:        c.MaxSettlementTime,
		MaxPriceConfidence:       c.MaxPriceConfidence,
		MinLiquidity:             c.MinLiquidity,
		OracleStalenessThreshold: c.OracleStalenessThreshold,
		FeeBps:                   c.FeeBps,
	}
}

// Events returns the event channel, or nil when events are disabled.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Risk returns current aggregate risk metrics.
func (e *Engine) Risk() risk.RiskSnapshot {
	return e.riskMgr.GetRiskSnapshot()
}

// Collector returns a copy of the fee collector.
func (e *Engine) Collector() settlement.FeeCollector {
	e.collectorMu.Lock()
	defer e.collectorMu.Unlock()
	return *e.collector
}

// Market returns a copy of one market's state document.
func (e *Engine) Market(id string) (*store.MarketState, error) {
	slot, err := e.slot(id)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.state.Clone(), nil
}

// Markets returns a copy of every market, ordered by id.
func (e *Engine) Markets() []*market.Market {
	e.slotsMu.RLock()
	slots := make([]*marketSlot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.slotsMu.RUnlock()

	out := make([]*market.Market, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		out = append(out, s.state.Market.Clone())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Engine) slot(id string) (*marketSlot, error) {
	e.slotsMu.RLock()
	defer e.slotsMu.RUnlock()

	s, ok := e.slots[id]
	if !ok {
		return nil, fmt.Errorf("market %q: %w", id, market.ErrMarketNotFound)
	}
	return s, nil
}

// commit executes transfers, persists next and swaps it into slot. The
// caller holds slot.mu. A commit that moves collateral is journaled in next
// as LastBatch under a new Seq. On a persistence failure the transfers are
// reversed and the slot keeps its previous state.
func (e *Engine) commit(ctx context.Context, slot *marketSlot, next *store.MarketState, transfers []types.Transfer) error {
	id := next.Market.ID
	if len(transfers) > 0 {
		next.Seq = slot.state.Seq + 1
		next.LastBatch = transfers
		if err := e.custody.Execute(ctx, transfers); err != nil {
			e.logger.Warn("custody rejected transfers", "market", id, "legs", len(transfers), "error", err)
			return fmt.Errorf("execute transfers: %w", err)
		}
	}
	if err := e.store.SaveMarket(next); err != nil {
		e.compensate(ctx, id, transfers)
		return fmt.Errorf("persist market %s: %w", id, err)
	}
	slot.state = next
	return nil
}

// compensate executes the reverse of an applied batch.
func (e *Engine) compensate(ctx context.Context, id string, transfers []types.Transfer) {
	if len(transfers) == 0 {
		return
	}
	if err := e.custody.Execute(context.WithoutCancel(ctx), reverseBatch(transfers)); err != nil {
		e.logger.Error("failed to reverse transfers after persistence failure",
			"market", id, "legs", len(transfers), "error", err)
		return
	}
	e.logger.Warn("reversed transfers after persistence failure", "market", id, "legs", len(transfers))
}

func reverseBatch(transfers []types.Transfer) []types.Transfer {
	out := make([]types.Transfer, len(transfers))
	for i, t := range transfers {
		out[len(transfers)-1-i] = t.Reverse()
	}
	return out
}

// checkRisk reports the committed pool to the risk manager and pauses the
// market if a kill signal names it. The caller holds slot.mu.
func (e *Engine) checkRisk(ctx context.Context, slot *marketSlot, now int64) {
	st := slot.state
	yes, _ := st.Market.GetSpotPrices()
	var exposure uint64
	if st.Maker != nil {
		exposure = st.Maker.CurrentExposure
	}
	signals := e.riskMgr.Check(risk.PoolReport{
		MarketID:      st.Market.ID,
		YesBps:        yes,
		MakerExposure: exposure,
		Timestamp:     now,
	})
	for _, sig := range signals {
		e.emit(EventKill, sig.MarketID, now, KillEvent{Reason: sig.Reason, Global: sig.Global, Until: sig.Until})
		cur := slot.state
		if sig.MarketID != cur.Market.ID || cur.Market.IsResolved ||
			(cur.Market.EmergencyPaused && cur.KillUntil >= sig.Until) {
			continue
		}
		next := cur.Clone()
		next.Market.EmergencyPaused = true
		next.KillUntil = max(next.KillUntil, sig.Until)
		if err := e.commit(ctx, slot, next, nil); err != nil {
			e.logger.Error("failed to pause market after kill signal", "market", sig.MarketID, "error", err)
			continue
		}
		e.logger.Warn("market paused by risk manager", "market", sig.MarketID, "reason", sig.Reason, "until", next.KillUntil)
		e.emit(EventPaused, sig.MarketID, now, PauseEvent{Paused: true, Reason: sig.Reason})
	}
}
