// Package market holds the Market aggregate: pools, lifecycle, fee config,
// bet bounds, money math and the read-only pricing functions.
//
// Nothing in this package logs, samples the clock or performs I/O. Every
// time-gated guard takes the caller's timestamp so results are replayable.
// Mutating operations compute every new value before writing any of them, so
// a failed call leaves the aggregate untouched.
package market

import (
	"github.com/ethereum/go-ethereum/common"

	"predictpool/pkg/types"
)

// Params are the creation-time policy defaults for new markets.
type Params struct {
	MinBetAmount             uint64 `json:"min_bet_amount"`
	MaxBetAmount             uint64 `json:"max_bet_amount"`
	MinSettlementTime        int64  `json:"min_settlement_time"`
	MaxSettlementTime        int64  `json:"max_settlement_time"`
	MaxPriceConfidence       uint64 `json:"max_price_confidence"`
	MinLiquidity             uint64 `json:"min_liquidity"`
	OracleStalenessThreshold int64  `json:"oracle_staleness_threshold"`
	FeeBps                   uint16 `json:"fee_bps"`
}

// DefaultParams returns the stock market policy: 1% fee, bets between
// 100_000 and 1e12 units, settlement between 10s and one year out.
func DefaultParams() Params {
	return Params{
		MinBetAmount:             100_000,
		MaxBetAmount:             1_000_000_000_000,
		MinSettlementTime:        10,
		MaxSettlementTime:        365 * 24 * 3600,
		MaxPriceConfidence:       500,
		MinLiquidity:             0,
		OracleStalenessThreshold: 60,
		FeeBps:                   100,
	}
}

// Spec describes a market to create.
type Spec struct {
	ID              string
	Creator         common.Address
	Resolver        *common.Address // nil means the creator resolves
	CollateralAsset string
	OracleFeed      string
	InitialPrice    int64
	SettleTime      int64
	Category        types.Category
	Description     string
}

// Market is the central aggregate. It is the sole owner of its pool totals.
type Market struct {
	ID              string         `json:"id"`
	Creator         common.Address `json:"creator"`
	Resolver        common.Address `json:"resolver"`
	CollateralAsset string         `json:"collateral_asset"`
	OracleFeed      string         `json:"oracle_feed"`
	Category        types.Category `json:"category"`
	Description     string         `json:"description,omitempty"`

	TargetPrice int64 `json:"target_price"`
	SettleTime  int64 `json:"settle_time"`
	CreatedAt   int64 `json:"created_at"`

	YesPool uint64 `json:"yes_pool"`
	NoPool  uint64 `json:"no_pool"`

	FeeBps           uint16 `json:"fee_bps"`
	MinBetAmount     uint64 `json:"min_bet_amount"`
	MaxBetAmount     uint64 `json:"max_bet_amount"`
	MinLiquidity     uint64 `json:"min_liquidity"`
	OracleConfidence uint64 `json:"oracle_confidence"`
	StalenessSeconds int64  `json:"staleness_seconds"`

	Status          types.MarketStatus `json:"status"`
	IsResolved      bool               `json:"is_resolved"`
	WinningOutcome  *types.Outcome     `json:"winning_outcome,omitempty"`
	FinalPrice      *int64             `json:"final_price,omitempty"`
	EmergencyPaused bool               `json:"emergency_paused"`

	OracleLastUpdate     int64 `json:"oracle_last_update"`
	LiquidityLockedUntil int64 `json:"liquidity_locked_until"`

	TotalVolume        uint64 `json:"total_volume"`
	TotalFeesCollected uint64 `json:"total_fees_collected"`
}

// New validates s against p and returns a fresh market. The recorded target
// is the initial price, so any later movement resolves YES.
func New(s Spec, p Params, now int64) (*Market, error) {
	if s.ID == "" {
		return nil, ErrInvalidMarket
	}
	if s.InitialPrice <= 0 {
		return nil, ErrInvalidTargetPrice
	}
	if p.FeeBps > BpsDenominator {
		return nil, ErrInvalidParameter
	}
	if p.MinBetAmount == 0 || p.MinBetAmount > p.MaxBetAmount {
		return nil, ErrInvalidParameter
	}
	if s.SettleTime <= now {
		return nil, ErrInvalidSettleTime
	}
	if s.SettleTime <= now+p.MinSettlementTime {
		return nil, ErrSettlementTimeTooSoon
	}
	if s.SettleTime >= now+p.MaxSettlementTime {
		return nil, ErrSettlementTimeTooFar
	}

	resolver := s.Creator
	if s.Resolver != nil {
		resolver = *s.Resolver
	}
	category := s.Category
	if category == "" {
		category = types.CategoryCrypto
	}
	status := types.StatusActive
	if p.MinLiquidity > 0 {
		status = types.StatusPendingLiquidity
	}

	return &Market{
		ID:                   s.ID,
		Creator:              s.Creator,
		Resolver:             resolver,
		CollateralAsset:      s.CollateralAsset,
		OracleFeed:           s.OracleFeed,
		Category:             category,
		Description:          s.Description,
		TargetPrice:          s.InitialPrice,
		SettleTime:           s.SettleTime,
		CreatedAt:            now,
		FeeBps:               p.FeeBps,
		MinBetAmount:         p.MinBetAmount,
		MaxBetAmount:         p.MaxBetAmount,
		MinLiquidity:         p.MinLiquidity,
		OracleConfidence:     p.MaxPriceConfidence,
		StalenessSeconds:     p.OracleStalenessThreshold,
		Status:               status,
		OracleLastUpdate:     now,
		LiquidityLockedUntil: s.SettleTime,
	}, nil
}

// Clone returns a deep copy. Hosts mutate the clone and swap it in only once
// every side effect of the operation has succeeded.
func (m *Market) Clone() *Market {
	c := *m
	if m.WinningOutcome != nil {
		o := *m.WinningOutcome
		c.WinningOutcome = &o
	}
	if m.FinalPrice != nil {
		p := *m.FinalPrice
		c.FinalPrice = &p
	}
	return &c
}

// TotalPot saturates at MaxUint64; pricing paths widen instead.
func (m *Market) TotalPot() uint64 {
	s := m.YesPool + m.NoPool
	if s < m.YesPool {
		return ^uint64(0)
	}
	return s
}

// Pools returns (winning, losing) pool sizes for side.
func (m *Market) Pools(side types.Outcome) (uint64, uint64) {
	if side == types.Yes {
		return m.YesPool, m.NoPool
	}
	return m.NoPool, m.YesPool
}

// HasMinimumLiquidity reports whether the pot has reached MinLiquidity.
func (m *Market) HasMinimumLiquidity() bool {
	return m.TotalPot() >= m.MinLiquidity
}

// CheckOpen applies the lifecycle half of the bet guard. Liquidity
// provision uses the same checks without the amount bounds.
func (m *Market) CheckOpen(now int64) error {
	if m.IsResolved {
		return ErrMarketAlreadyResolved
	}
	if now >= m.SettleTime {
		return ErrMarketClosed
	}
	if m.EmergencyPaused {
		return ErrMarketPaused
	}
	if !m.Status.AcceptsStake() {
		return ErrMarketNotActive
	}
	return nil
}

// ValidateBetAmount checks amount against the market's bet bounds.
func (m *Market) ValidateBetAmount(amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if amount < m.MinBetAmount {
		return ErrBetTooSmall
	}
	if amount > m.MaxBetAmount {
		return ErrBetTooLarge
	}
	return nil
}

// ValidateOraclePrice re-checks an oracle reading against the market's
// confidence and staleness limits. A publish time after now is invalid.
func (m *Market) ValidateOraclePrice(confidence uint64, lastUpdate, now int64) error {
	if confidence > m.OracleConfidence {
		return ErrPriceConfidenceTooHigh
	}
	if lastUpdate > now {
		return ErrInvalidOraclePrice
	}
	// now >= lastUpdate, so the age fits in a uint64 even across the full
	// int64 range.
	age := uint64(now) - uint64(lastUpdate)
	if age > uint64(max(m.StalenessSeconds, 0)) {
		return ErrPriceTooStale
	}
	return nil
}

// Resolve settles the market at finalPrice. YES wins when finalPrice differs
// from the target in any amount; there is no deadband.
func (m *Market) Resolve(caller common.Address, finalPrice, now int64) (types.Outcome, error) {
	if m.IsResolved {
		return 0, ErrMarketAlreadyResolved
	}
	if now < m.SettleTime {
		return 0, ErrSettlementTimeNotReached
	}
	if caller != m.Resolver {
		return 0, ErrUnauthorizedResolver
	}
	if m.Status == types.StatusCancelled {
		return 0, ErrInvalidMarketStatus
	}

	winner := types.No
	if finalPrice != m.TargetPrice {
		winner = types.Yes
	}
	price := finalPrice
	m.IsResolved = true
	m.WinningOutcome = &winner
	m.FinalPrice = &price
	m.Status = types.StatusResolved
	return winner, nil
}

// ResolveFromOracle settles from an oracle reading. Readings are compared
// raw against the target, which was recorded at the same feed exponent.
// When validate is set the reading is first checked with ValidateOraclePrice.
func (m *Market) ResolveFromOracle(caller common.Address, r types.PriceReading, validate bool, now int64) (types.Outcome, error) {
	if m.IsResolved {
		return 0, ErrMarketAlreadyResolved
	}
	if now < m.SettleTime {
		return 0, ErrSettlementTimeNotReached
	}
	if caller != m.Resolver {
		return 0, ErrUnauthorizedResolver
	}
	if r.Price <= 0 {
		return 0, ErrInvalidOraclePrice
	}
	if validate {
		if err := m.ValidateOraclePrice(r.Confidence, r.PublishTime, now); err != nil {
			return 0, err
		}
	}
	winner, err := m.Resolve(caller, r.Price, now)
	if err != nil {
		return 0, err
	}
	m.OracleLastUpdate = now
	return winner, nil
}

// SetPaused toggles the emergency pause. Only the creator or resolver may.
func (m *Market) SetPaused(caller common.Address, paused bool) error {
	if caller != m.Creator && caller != m.Resolver {
		return ErrUnauthorized
	}
	if m.IsResolved {
		return ErrMarketAlreadyResolved
	}
	m.EmergencyPaused = paused
	return nil
}

// Transition moves an Active market into one of the side exits.
func (m *Market) Transition(caller common.Address, to types.MarketStatus) error {
	if caller != m.Resolver {
		return ErrUnauthorized
	}
	if to != types.StatusDisputed && to != types.StatusCancelled {
		return ErrInvalidMarketStatus
	}
	if m.Status != types.StatusActive || m.IsResolved {
		return ErrInvalidMarketStatus
	}
	m.Status = to
	return nil
}

// BetReceipt is what PlaceBet decided.
type BetReceipt struct {
	Side   types.Outcome
	Amount uint64
	Fee    uint64
	Net    uint64
	YesBps uint64
	NoBps  uint64
}

// PlaceBet stakes amount on side for pos. The fee is taken up front, the net
// amount joins the side's pool and the position, and the entry snapshot
// records spot prices after the pool update. Either every field changes or
// none does.
func (m *Market) PlaceBet(pos *Position, side types.Outcome, amount uint64, now int64) (BetReceipt, error) {
	if !side.Valid() {
		return BetReceipt{}, ErrInvalidOutcome
	}
	if err := pos.bindTo(m); err != nil {
		return BetReceipt{}, err
	}
	if err := m.CheckOpen(now); err != nil {
		return BetReceipt{}, err
	}
	if err := m.ValidateBetAmount(amount); err != nil {
		return BetReceipt{}, err
	}

	fee, net, err := CalculateFee(amount, m.FeeBps)
	if err != nil {
		return BetReceipt{}, err
	}

	next := *m
	nextPos := *pos
	if next.TotalFeesCollected, err = checkedAdd(m.TotalFeesCollected, fee); err != nil {
		return BetReceipt{}, err
	}
	if next.TotalVolume, err = checkedAdd(m.TotalVolume, amount); err != nil {
		return BetReceipt{}, err
	}
	if side == types.Yes {
		if next.YesPool, err = checkedAdd(m.YesPool, net); err != nil {
			return BetReceipt{}, err
		}
		if nextPos.YesAmount, err = checkedAdd(pos.YesAmount, net); err != nil {
			return BetReceipt{}, err
		}
	} else {
		if next.NoPool, err = checkedAdd(m.NoPool, net); err != nil {
			return BetReceipt{}, err
		}
		if nextPos.NoAmount, err = checkedAdd(pos.NoAmount, net); err != nil {
			return BetReceipt{}, err
		}
	}
	if nextPos.TotalInvested, err = checkedAdd(pos.TotalInvested, amount); err != nil {
		return BetReceipt{}, err
	}
	next.promoteIfFunded()

	yes, no := next.GetSpotPrices()
	nextPos.EntryOddsYes = yes
	nextPos.EntryOddsNo = no
	nextPos.BetTimestamp = now

	*m = next
	*pos = nextPos
	return BetReceipt{Side: side, Amount: amount, Fee: fee, Net: net, YesBps: yes, NoBps: no}, nil
}

// AddLiquidity adds amountPerSide to both pools. Exposure bookkeeping lives
// with the market maker; this only moves the pools and volume.
func (m *Market) AddLiquidity(pos *Position, amountPerSide uint64, now int64) error {
	if err := pos.bindTo(m); err != nil {
		return err
	}
	if err := m.CheckOpen(now); err != nil {
		return err
	}
	if amountPerSide == 0 {
		return ErrInvalidAmount
	}
	both, err := checkedMul(amountPerSide, 2)
	if err != nil {
		return err
	}

	next := *m
	nextPos := *pos
	if next.YesPool, err = checkedAdd(m.YesPool, amountPerSide); err != nil {
		return err
	}
	if next.NoPool, err = checkedAdd(m.NoPool, amountPerSide); err != nil {
		return err
	}
	if next.TotalVolume, err = checkedAdd(m.TotalVolume, both); err != nil {
		return err
	}
	if nextPos.YesAmount, err = checkedAdd(pos.YesAmount, amountPerSide); err != nil {
		return err
	}
	if nextPos.NoAmount, err = checkedAdd(pos.NoAmount, amountPerSide); err != nil {
		return err
	}
	if nextPos.TotalInvested, err = checkedAdd(pos.TotalInvested, both); err != nil {
		return err
	}
	next.promoteIfFunded()
	nextPos.EntryOddsYes, nextPos.EntryOddsNo = next.GetSpotPrices()
	nextPos.BetTimestamp = now

	*m = next
	*pos = nextPos
	return nil
}

func (m *Market) promoteIfFunded() {
	if m.Status == types.StatusPendingLiquidity && m.HasMinimumLiquidity() {
		m.Status = types.StatusActive
	}
}
