package settlement

import (
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"predictpool/internal/market"
	"predictpool/internal/strategy"
	"predictpool/pkg/types"
)

var (
	creator   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	authority = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	treasury  = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	makerAddr = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

const (
	testNow    int64 = 1_700_000_000
	testSettle int64 = testNow + 3_600
)

func newMarket(t *testing.T) *market.Market {
	t.Helper()
	m, err := market.New(market.Spec{
		ID:              "m1",
		Creator:         creator,
		CollateralAsset: "USDC",
		InitialPrice:    95_000,
		SettleTime:      testSettle,
	}, market.DefaultParams(), testNow)
	if err != nil {
		t.Fatalf("market.New: %v", err)
	}
	return m
}

func bet(t *testing.T, m *market.Market, pos *market.Position, side types.Outcome, amount uint64) {
	t.Helper()
	if _, err := m.PlaceBet(pos, side, amount, testNow); err != nil {
		t.Fatalf("PlaceBet(%s, %d): %v", side, amount, err)
	}
}

func resolve(t *testing.T, m *market.Market, price int64) {
	t.Helper()
	if _, err := m.Resolve(creator, price, testSettle); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
}

func TestClaimSoleWinnerGetsNetStake(t *testing.T) {
	t.Parallel()
	m := newMarket(t)
	pos := market.NewPosition(m.ID, alice)
	bet(t, m, pos, types.Yes, 1_000_000)
	resolve(t, m, 96_000)

	p, err := Claim(m, pos, alice)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if p.Total != 990_000 || p.Profit != 0 {
		t.Errorf("payout = %+v, want total 990000 with no profit", p)
	}
	if !pos.Claimed {
		t.Error("position not marked claimed")
	}
	if m.YesPool != 990_000 {
		t.Error("claim must not debit pools")
	}

	transfers := p.Transfers(m, alice)
	if len(transfers) != 1 {
		t.Fatalf("transfers = %d, want 1 principal leg", len(transfers))
	}
	if transfers[0].From != types.YesVault("m1") || transfers[0].To != market.AccountOf(alice) || transfers[0].Amount != 990_000 {
		t.Errorf("unexpected transfer %+v", transfers[0])
	}
}

func TestClaimProportionalProfit(t *testing.T) {
	t.Parallel()
	m := newMarket(t)
	m.FeeBps = 0
	a := market.NewPosition(m.ID, alice)
	b := market.NewPosition(m.ID, bob)
	bet(t, m, a, types.No, 1_000_000)
	bet(t, m, b, types.Yes, 3_000_000)
	resolve(t, m, 95_000) // unchanged price: NO wins

	pending, err := PendingPayout(m, a)
	if err != nil {
		t.Fatal(err)
	}
	if pending != 4_000_000 {
		t.Errorf("PendingPayout = %d, want 4000000", pending)
	}

	p, err := Claim(m, a, alice)
	if err != nil {
		t.Fatal(err)
	}
	if p.Winner != types.No || p.WinningStake != 1_000_000 || p.Profit != 3_000_000 || p.Total != 4_000_000 {
		t.Errorf("payout = %+v", p)
	}
	legs := p.Transfers(m, alice)
	if len(legs) != 2 || legs[0].From != types.NoVault("m1") || legs[1].From != types.YesVault("m1") {
		t.Errorf("legs = %+v", legs)
	}

	if pending, _ := PendingPayout(m, a); pending != 0 {
		t.Errorf("PendingPayout after claim = %d", pending)
	}

	loser, err := Claim(m, b, bob)
	if err != nil {
		t.Fatalf("loser claim: %v", err)
	}
	if loser.Total != 0 || !b.Claimed {
		t.Errorf("loser payout = %+v claimed=%v", loser, b.Claimed)
	}
	if len(loser.Transfers(m, bob)) != 0 {
		t.Error("loser claim must not move value")
	}
}

func TestClaimIsOneShot(t *testing.T) {
	t.Parallel()
	m := newMarket(t)
	pos := market.NewPosition(m.ID, alice)
	bet(t, m, pos, types.Yes, 500_000)
	resolve(t, m, 1)

	if _, err := Claim(m, pos, alice); err != nil {
		t.Fatal(err)
	}
	if _, err := Claim(m, pos, alice); !errors.Is(err, market.ErrAlreadyClaimed) {
		t.Errorf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
}

func TestClaimGuards(t *testing.T) {
	t.Parallel()
	m := newMarket(t)
	pos := market.NewPosition(m.ID, alice)
	bet(t, m, pos, types.Yes, 500_000)

	if _, err := Claim(m, pos, alice); !errors.Is(err, market.ErrMarketNotResolved) {
		t.Errorf("unresolved err = %v", err)
	}
	if pending, err := PendingPayout(m, pos); err != nil || pending != 0 {
		t.Errorf("PendingPayout before resolution = %d, %v", pending, err)
	}
	resolve(t, m, 1)

	if _, err := Claim(m, pos, bob); !errors.Is(err, market.ErrUnauthorized) {
		t.Errorf("wrong claimant err = %v", err)
	}
	if _, err := Claim(m, market.NewPosition(m.ID, bob), bob); !errors.Is(err, market.ErrNoPosition) {
		t.Errorf("empty position err = %v", err)
	}
	if _, err := Claim(m, market.NewPosition("other", alice), alice); !errors.Is(err, market.ErrInvalidMarket) {
		t.Errorf("foreign position err = %v", err)
	}
	if pos.Claimed {
		t.Error("rejected claims marked the position")
	}
}

func TestClaimOverflowLeavesPositionUnclaimed(t *testing.T) {
	t.Parallel()
	m := newMarket(t)
	pos := market.NewPosition(m.ID, alice)
	pos.YesAmount = math.MaxUint64
	m.YesPool = 1
	m.NoPool = math.MaxUint64
	resolve(t, m, 1)

	if _, err := Claim(m, pos, alice); !errors.Is(err, market.ErrMathOverflow) {
		t.Fatalf("err = %v, want ErrMathOverflow", err)
	}
	if pos.Claimed {
		t.Error("failed claim must not mark the position")
	}
}

func TestFeeDistributionSplit(t *testing.T) {
	t.Parallel()
	d := DefaultDistribution()

	s, err := d.Split(10_001)
	if err != nil {
		t.Fatal(err)
	}
	if s.Liquidity != 3_000 || s.Creator != 2_000 || s.Treasury != 5_001 {
		t.Errorf("split = %+v, want treasury to absorb dust", s)
	}
	if s.Treasury+s.Liquidity+s.Creator != 10_001 {
		t.Error("split does not conserve amount")
	}

	s, err = d.Split(math.MaxUint64)
	if err != nil {
		t.Fatal(err)
	}
	if s.Treasury+s.Liquidity+s.Creator != math.MaxUint64 {
		t.Error("full-range split does not conserve amount")
	}

	bad := FeeDistribution{TreasuryBps: 5000, LiquidityBps: 5000, CreatorBps: 1}
	if _, err := bad.Split(100); !errors.Is(err, market.ErrInvalidParameter) {
		t.Errorf("bad distribution err = %v", err)
	}
}

func newCollector() *FeeCollector {
	return &FeeCollector{Authority: authority, Treasury: treasury, Distribution: DefaultDistribution()}
}

func TestConsolidateWithMaker(t *testing.T) {
	t.Parallel()
	m := newMarket(t)
	resolve(t, m, 1)
	mm := &strategy.MarketMaker{MarketID: m.ID, Authority: makerAddr, IsActive: true, FeesEarned: 7}
	c := newCollector()

	got, err := Consolidate(c, m, mm, authority, 100_000)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if got.Split.Treasury != 50_000 || got.Split.Liquidity != 30_000 || got.Split.Creator != 20_000 {
		t.Errorf("split = %+v", got.Split)
	}
	if c.TotalFeesCollected != 100_000 {
		t.Errorf("collector total = %d", c.TotalFeesCollected)
	}
	if mm.FeesEarned != 30_007 {
		t.Errorf("maker FeesEarned = %d, want 30007", mm.FeesEarned)
	}
	if len(got.Transfers) != 3 {
		t.Fatalf("transfers = %d, want 3", len(got.Transfers))
	}
	want := map[types.Account]uint64{
		market.AccountOf(treasury):  50_000,
		market.AccountOf(makerAddr): 30_000,
		market.AccountOf(creator):   20_000,
	}
	for _, tr := range got.Transfers {
		if tr.From != types.FeeVault("m1") || tr.Asset != "USDC" {
			t.Errorf("unexpected source %+v", tr)
		}
		if want[tr.To] != tr.Amount {
			t.Errorf("transfer to %s = %d, want %d", tr.To, tr.Amount, want[tr.To])
		}
	}
}

func TestConsolidateWithoutMakerRoutesLiquidityToTreasury(t *testing.T) {
	t.Parallel()
	m := newMarket(t)
	resolve(t, m, 1)
	c := newCollector()

	got, err := Consolidate(c, m, nil, authority, 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if got.Split.Treasury != 800 || got.Split.Liquidity != 0 || got.Split.Creator != 200 {
		t.Errorf("split = %+v", got.Split)
	}
	if len(got.Transfers) != 2 {
		t.Errorf("transfers = %+v", got.Transfers)
	}
}

func TestConsolidateGuards(t *testing.T) {
	t.Parallel()
	m := newMarket(t)
	c := newCollector()

	if _, err := Consolidate(c, m, nil, creator, 1_000); !errors.Is(err, market.ErrUnauthorized) {
		t.Errorf("wrong caller err = %v", err)
	}
	if _, err := Consolidate(c, m, nil, authority, 1_000); !errors.Is(err, market.ErrMarketNotResolved) {
		t.Errorf("unresolved err = %v", err)
	}
	resolve(t, m, 1)

	c.TotalFeesCollected = math.MaxUint64
	if _, err := Consolidate(c, m, nil, authority, 1); !errors.Is(err, market.ErrMathOverflow) {
		t.Errorf("overflow err = %v", err)
	}
	if c.TotalFeesCollected != math.MaxUint64 {
		t.Error("failed consolidation changed the collector")
	}

	c = newCollector()
	got, err := Consolidate(c, m, nil, authority, 0)
	if err != nil || len(got.Transfers) != 0 {
		t.Errorf("empty vault = %+v, %v", got, err)
	}
}
