package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"predictpool/internal/custody"
	"predictpool/internal/market"
	"predictpool/internal/settlement"
	"predictpool/internal/strategy"
	"predictpool/pkg/types"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func testState(t *testing.T, id string) *MarketState {
	t.Helper()
	m, err := market.New(market.Spec{
		ID:              id,
		Creator:         creator,
		CollateralAsset: "USDC",
		InitialPrice:    95_000,
		SettleTime:      1_700_003_600,
	}, market.DefaultParams(), 1_700_000_000)
	if err != nil {
		t.Fatalf("market.New: %v", err)
	}
	pos := market.NewPosition(id, alice)
	if _, err := m.PlaceBet(pos, types.Yes, 1_000_000, 1_700_000_000); err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	return &MarketState{
		Market:    m,
		Positions: map[string]*market.Position{alice.Hex(): pos},
		Maker:     &strategy.MarketMaker{MarketID: id, Authority: creator, MaxExposure: 10, IsActive: true},
	}
}

func TestSaveAndLoadMarket(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	st := testState(t, "m1")
	if err := s.SaveMarket(st); err != nil {
		t.Fatalf("SaveMarket: %v", err)
	}

	loaded, err := s.LoadMarket("m1")
	if err != nil {
		t.Fatalf("LoadMarket: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadMarket returned nil")
	}
	if loaded.Market.YesPool != st.Market.YesPool || loaded.Market.Status != types.StatusActive {
		t.Errorf("market = %+v", loaded.Market)
	}
	pos := loaded.Positions[alice.Hex()]
	if pos == nil || pos.YesAmount != 990_000 || pos.Owner != alice {
		t.Errorf("position = %+v", pos)
	}
	if loaded.Maker == nil || loaded.Maker.Authority != creator {
		t.Errorf("maker = %+v", loaded.Maker)
	}
}

func TestLoadMarketMissing(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	st, err := s.LoadMarket("nope")
	if err != nil {
		t.Fatalf("LoadMarket: %v", err)
	}
	if st != nil {
		t.Errorf("expected nil for missing market, got %+v", st)
	}
}

func TestLoadMarketsSortedAndSkipsTmp(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"b", "a"} {
		if err := s.SaveMarket(testState(t, id)); err != nil {
			t.Fatal(err)
		}
	}
	// Leftover from an interrupted write.
	if err := os.WriteFile(filepath.Join(dir, "market_c.json.tmp"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	all, err := s.LoadMarkets()
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	if len(all) != 2 || all[0].Market.ID != "a" || all[1].Market.ID != "b" {
		t.Errorf("LoadMarkets returned %d markets", len(all))
	}
}

func TestLoadMarketCorrupt(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "market_x.json"), []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadMarket("x"); err == nil {
		t.Error("expected error for corrupt document")
	}
}

func TestCollectorAndLedgerRoundTrip(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if c, err := s.LoadCollector(); err != nil || c != nil {
		t.Fatalf("fresh collector = %+v, %v", c, err)
	}
	c := &settlement.FeeCollector{Authority: creator, Treasury: alice, Distribution: settlement.DefaultDistribution(), TotalFeesCollected: 42}
	if err := s.SaveCollector(c); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadCollector()
	if err != nil || got == nil || *got != *c {
		t.Errorf("collector = %+v, %v", got, err)
	}

	ls, err := s.LoadLedger()
	if err != nil || len(ls.Balances) != 0 || ls.Applied == nil {
		t.Fatalf("fresh ledger = %+v, %v", ls, err)
	}
	l := custody.NewLedger()
	_ = l.Deposit("USDC", market.AccountOf(alice), 500)
	if err := s.SaveLedger(&LedgerState{Balances: l.Snapshot(), Applied: map[string]uint64{"m1": 3}}); err != nil {
		t.Fatal(err)
	}
	ls, err = s.LoadLedger()
	if err != nil {
		t.Fatal(err)
	}
	if ls.Balances["USDC"][market.AccountOf(alice)] != 500 || ls.Applied["m1"] != 3 {
		t.Errorf("ledger = %+v", ls)
	}
}

func TestMarketStateCloneIsDeep(t *testing.T) {
	t.Parallel()
	st := testState(t, "m1")
	cp := st.Clone()
	cp.Market.YesPool = 1
	cp.Positions[alice.Hex()].YesAmount = 1
	cp.Maker.CurrentExposure = 9
	if st.Market.YesPool == 1 || st.Positions[alice.Hex()].YesAmount == 1 || st.Maker.CurrentExposure == 9 {
		t.Error("clone shares state with original")
	}
}

func TestJournalFieldsPersist(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	st := testState(t, "m1")
	st.Seq = 4
	st.KillUntil = 1_700_000_300
	st.LastBatch = []types.Transfer{{Asset: "USDC", From: market.AccountOf(alice), To: types.YesVault("m1"), Amount: 7}}

	cp := st.Clone()
	cp.LastBatch[0].Amount = 8
	if st.LastBatch[0].Amount != 7 {
		t.Error("clone shares the batch slice")
	}

	if err := s.SaveMarket(st); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.LoadMarket("m1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Seq != 4 || loaded.KillUntil != 1_700_000_300 || len(loaded.LastBatch) != 1 || loaded.LastBatch[0] != st.LastBatch[0] {
		t.Errorf("loaded journal = seq %d kill %d batch %+v", loaded.Seq, loaded.KillUntil, loaded.LastBatch)
	}
}
