package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"predictpool/internal/market"
	"predictpool/internal/settlement"
	"predictpool/internal/store"
	"predictpool/internal/strategy"
	"predictpool/pkg/types"
)

var validate = validator.New()

// CreateMarketRequest describes a new market. An empty ID is replaced by a
// random UUID.
type CreateMarketRequest struct {
	ID              string         `validate:"omitempty,max=64,excludesall=/:"`
	Creator         common.Address `validate:"required"`
	Resolver        *common.Address
	CollateralAsset string `validate:"required,max=32"`
	OracleFeed      string `validate:"max=64"`
	InitialPrice    int64
	SettleTime      int64
	Category        types.Category `validate:"omitempty,max=32"`
	Description     string         `validate:"max=256"`
}

// CreateMarket validates req, builds the market and persists it.
func (e *Engine) CreateMarket(ctx context.Context, req CreateMarketRequest, now int64) (*market.Market, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("create market: %w: %v", market.ErrInvalidParameter, err)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	m, err := market.New(market.Spec{
		ID:              req.ID,
		Creator:         req.Creator,
		Resolver:        req.Resolver,
		CollateralAsset: req.CollateralAsset,
		OracleFeed:      req.OracleFeed,
		InitialPrice:    req.InitialPrice,
		SettleTime:      req.SettleTime,
		Category:        req.Category,
		Description:     req.Description,
	}, e.params, now)
	if err != nil {
		return nil, fmt.Errorf("create market: %w", err)
	}
	st := &store.MarketState{Market: m, Positions: make(map[string]*market.Position)}

	e.slotsMu.Lock()
	defer e.slotsMu.Unlock()
	if _, ok := e.slots[m.ID]; ok {
		return nil, fmt.Errorf("create market %q: %w", m.ID, market.ErrMarketExists)
	}
	if err := e.store.SaveMarket(st); err != nil {
		return nil, fmt.Errorf("persist market %s: %w", m.ID, err)
	}
	e.slots[m.ID] = &marketSlot{state: st}

	e.logger.Info("market created",
		"market", m.ID,
		"creator", m.Creator.Hex(),
		"target_price", m.TargetPrice,
		"settle_time", m.SettleTime,
		"status", m.Status,
	)
	e.emit(EventMarketCreated, m.ID, now, nil)
	return m.Clone(), nil
}

// PlaceBet stakes amount on side for bettor. The fee moves to the market's
// fee vault and the net stake to the side's vault.
func (e *Engine) PlaceBet(ctx context.Context, id string, bettor common.Address, side types.Outcome, amount uint64, now int64) (market.BetReceipt, error) {
	slot, err := e.slot(id)
	if err != nil {
		return market.BetReceipt{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	next := slot.state.Clone()
	pos := positionFor(next, bettor)
	receipt, err := next.Market.PlaceBet(pos, side, amount, now)
	if err != nil {
		return market.BetReceipt{}, fmt.Errorf("place bet: %w", err)
	}
	next.Positions[bettor.Hex()] = pos

	from := market.AccountOf(bettor)
	asset := next.Market.CollateralAsset
	var transfers []types.Transfer
	if receipt.Fee > 0 {
		transfers = append(transfers, types.Transfer{Asset: asset, From: from, To: types.FeeVault(id), Amount: receipt.Fee})
	}
	transfers = append(transfers, types.Transfer{Asset: asset, From: from, To: types.SideVault(id, side), Amount: receipt.Net})

	if err := e.commit(ctx, slot, next, transfers); err != nil {
		return market.BetReceipt{}, err
	}

	e.logger.Info("bet placed",
		"market", id,
		"bettor", bettor.Hex(),
		"side", side,
		"amount", amount,
		"fee", receipt.Fee,
		"yes_bps", receipt.YesBps,
	)
	e.emit(EventBet, id, now, BetEvent{
		Bettor: bettor, Side: side, Amount: amount, Fee: receipt.Fee,
		YesBps: receipt.YesBps, NoBps: receipt.NoBps,
	})
	e.checkRisk(ctx, slot, now)
	return receipt, nil
}

// ResolveWithPrice settles the market against a caller-supplied final price.
func (e *Engine) ResolveWithPrice(ctx context.Context, id string, caller common.Address, finalPrice, now int64) (types.Outcome, error) {
	return e.resolve(ctx, id, now, false, func(m *market.Market) (types.Outcome, error) {
		return m.Resolve(caller, finalPrice, now)
	})
}

// ResolveFromOracle settles the market against the latest reading of its
// oracle feed.
func (e *Engine) ResolveFromOracle(ctx context.Context, id string, caller common.Address, now int64) (types.Outcome, error) {
	return e.resolve(ctx, id, now, true, func(m *market.Market) (types.Outcome, error) {
		reading, err := e.oracle.Read(ctx, m.OracleFeed)
		if err != nil {
			e.logger.Warn("oracle read failed", "market", m.ID, "feed", m.OracleFeed, "error", err)
			return 0, fmt.Errorf("read oracle: %w", err)
		}
		return m.ResolveFromOracle(caller, reading, e.validateOracle, now)
	})
}

func (e *Engine) resolve(ctx context.Context, id string, now int64, fromOracle bool, fn func(*market.Market) (types.Outcome, error)) (types.Outcome, error) {
	slot, err := e.slot(id)
	if err != nil {
		return 0, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	next := slot.state.Clone()
	outcome, err := fn(next.Market)
	if err != nil {
		return 0, fmt.Errorf("resolve: %w", err)
	}
	if err := e.commit(ctx, slot, next, nil); err != nil {
		return 0, err
	}
	e.riskMgr.RemoveMarket(id)

	final := *next.Market.FinalPrice
	e.logger.Info("market resolved",
		"market", id,
		"outcome", outcome,
		"final_price", final,
		"target_price", next.Market.TargetPrice,
		"oracle", fromOracle,
	)
	e.emit(EventResolved, id, now, ResolvedEvent{Outcome: outcome, FinalPrice: final, FromOracle: fromOracle})
	return outcome, nil
}

// Claim pays claimant's winnings out of the market's vaults.
func (e *Engine) Claim(ctx context.Context, id string, claimant common.Address, now int64) (settlement.Payout, error) {
	slot, err := e.slot(id)
	if err != nil {
		return settlement.Payout{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	next := slot.state.Clone()
	pos, ok := next.Positions[claimant.Hex()]
	if !ok {
		return settlement.Payout{}, fmt.Errorf("claim: %w", market.ErrNoPosition)
	}
	payout, err := settlement.Claim(next.Market, pos, claimant)
	if err != nil {
		return settlement.Payout{}, fmt.Errorf("claim: %w", err)
	}
	if err := e.commit(ctx, slot, next, payout.Transfers(next.Market, claimant)); err != nil {
		return settlement.Payout{}, err
	}

	e.logger.Info("winnings claimed",
		"market", id,
		"claimant", claimant.Hex(),
		"stake", payout.WinningStake,
		"profit", payout.Profit,
		"total", payout.Total,
	)
	e.emit(EventClaimed, id, now, ClaimedEvent{Claimant: claimant, Amount: payout.Total})
	return payout, nil
}

// PendingPayout projects what owner would receive by claiming now.
func (e *Engine) PendingPayout(id string, owner common.Address) (uint64, error) {
	slot, err := e.slot(id)
	if err != nil {
		return 0, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	pos, ok := slot.state.Positions[owner.Hex()]
	if !ok {
		return 0, nil
	}
	return settlement.PendingPayout(slot.state.Market, pos)
}

// InitMarketMaker attaches a liquidity maker to the market.
func (e *Engine) InitMarketMaker(ctx context.Context, id string, authority common.Address, targetSpreadBps, maxExposure uint64, now int64) (*strategy.MarketMaker, error) {
	slot, err := e.slot(id)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.state.Maker != nil {
		return nil, fmt.Errorf("init market maker: %w", market.ErrMakerExists)
	}
	next := slot.state.Clone()
	mm, err := strategy.NewMarketMaker(next.Market, authority, targetSpreadBps, maxExposure, now)
	if err != nil {
		return nil, fmt.Errorf("init market maker: %w", err)
	}
	next.Maker = mm
	if err := e.commit(ctx, slot, next, nil); err != nil {
		return nil, err
	}

	e.logger.Info("market maker initialised",
		"market", id,
		"authority", authority.Hex(),
		"target_spread_bps", targetSpreadBps,
		"max_exposure", maxExposure,
	)
	return mm.Clone(), nil
}

// ProvideLiquidity adds amountPerSide to both pools from the maker's
// authority. The global exposure budget from the risk manager caps it.
func (e *Engine) ProvideLiquidity(ctx context.Context, id string, provider common.Address, amountPerSide uint64, now int64) error {
	slot, err := e.slot(id)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.state.Maker == nil {
		return fmt.Errorf("provide liquidity: %w", market.ErrMakerNotFound)
	}
	if amountPerSide > e.riskMgr.RemainingBudget()/2 {
		return fmt.Errorf("provide liquidity: global budget: %w", market.ErrMaxExposureExceeded)
	}

	next := slot.state.Clone()
	pos := positionFor(next, provider)
	if err := next.Maker.ProvideLiquidity(next.Market, pos, provider, amountPerSide, now); err != nil {
		return fmt.Errorf("provide liquidity: %w", err)
	}
	next.Positions[provider.Hex()] = pos

	from := market.AccountOf(provider)
	asset := next.Market.CollateralAsset
	transfers := []types.Transfer{
		{Asset: asset, From: from, To: types.YesVault(id), Amount: amountPerSide},
		{Asset: asset, From: from, To: types.NoVault(id), Amount: amountPerSide},
	}
	if err := e.commit(ctx, slot, next, transfers); err != nil {
		return err
	}

	e.logger.Info("liquidity provided",
		"market", id,
		"provider", provider.Hex(),
		"amount_per_side", amountPerSide,
		"exposure", next.Maker.CurrentExposure,
	)
	e.emit(EventLiquidity, id, now, LiquidityEvent{
		Provider: provider, AmountPerSide: amountPerSide, Exposure: next.Maker.CurrentExposure,
	})
	e.checkRisk(ctx, slot, now)
	return nil
}

// ConsolidateFees sweeps the market's fee vault according to the fee
// collector's distribution.
func (e *Engine) ConsolidateFees(ctx context.Context, id string, caller common.Address, now int64) (settlement.Consolidation, error) {
	slot, err := e.slot(id)
	if err != nil {
		return settlement.Consolidation{}, err
	}
	e.collectorMu.Lock()
	defer e.collectorMu.Unlock()
	slot.mu.Lock()
	defer slot.mu.Unlock()

	next := slot.state.Clone()
	collector := *e.collector
	balance := e.custody.Balance(next.Market.CollateralAsset, types.FeeVault(id))

	c, err := settlement.Consolidate(&collector, next.Market, next.Maker, caller, balance)
	if err != nil {
		return settlement.Consolidation{}, fmt.Errorf("consolidate fees: %w", err)
	}
	prev := slot.state
	if err := e.commit(ctx, slot, next, c.Transfers); err != nil {
		return settlement.Consolidation{}, err
	}
	if err := e.store.SaveCollector(&collector); err != nil {
		e.compensate(ctx, id, c.Transfers)
		if rerr := e.store.SaveMarket(prev); rerr != nil {
			e.logger.Error("failed to restore market after collector save failure", "market", id, "error", rerr)
		}
		slot.state = prev
		return settlement.Consolidation{}, fmt.Errorf("persist fee collector: %w", err)
	}
	*e.collector = collector

	e.logger.Info("fees consolidated",
		"market", id,
		"amount", c.Amount,
		"treasury", c.Split.Treasury,
		"liquidity", c.Split.Liquidity,
		"creator", c.Split.Creator,
	)
	e.emit(EventConsolidated, id, now, ConsolidatedEvent{
		Amount: c.Amount, Treasury: c.Split.Treasury, Liquidity: c.Split.Liquidity, Creator: c.Split.Creator,
	})
	return c, nil
}

// SetPaused sets or clears the market's emergency pause. A market paused by
// the risk manager cannot be reopened before its cooldown ends.
func (e *Engine) SetPaused(ctx context.Context, id string, caller common.Address, paused bool, now int64) error {
	slot, err := e.slot(id)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	next := slot.state.Clone()
	if err := next.Market.SetPaused(caller, paused); err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if !paused {
		if active, until := e.riskMgr.IsKillSwitchActive(id, now); active {
			return fmt.Errorf("set paused: kill switch cooling down until %d: %w", until, market.ErrMarketPaused)
		}
		next.KillUntil = 0
	}
	if err := e.commit(ctx, slot, next, nil); err != nil {
		return err
	}
	e.logger.Info("market pause updated", "market", id, "caller", caller.Hex(), "paused", paused)
	e.emit(EventPaused, id, now, PauseEvent{Paused: paused})
	return nil
}

// Transition moves an Active market to Disputed or Cancelled.
func (e *Engine) Transition(ctx context.Context, id string, caller common.Address, to types.MarketStatus, now int64) error {
	slot, err := e.slot(id)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	next := slot.state.Clone()
	if err := next.Market.Transition(caller, to); err != nil {
		return fmt.Errorf("transition: %w", err)
	}
	if err := e.commit(ctx, slot, next, nil); err != nil {
		return err
	}
	e.logger.Info("market status changed", "market", id, "caller", caller.Hex(), "status", to)
	e.emit(EventTransition, id, now, TransitionEvent{To: to})
	return nil
}

func positionFor(st *store.MarketState, owner common.Address) *market.Position {
	if p, ok := st.Positions[owner.Hex()]; ok {
		return p
	}
	return market.NewPosition(st.Market.ID, owner)
}
