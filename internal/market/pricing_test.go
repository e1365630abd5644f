package market

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"predictpool/pkg/types"
)

func marketWithPools(t *testing.T, yes, no uint64) *Market {
	t.Helper()
	m := newTestMarket(t)
	m.YesPool, m.NoPool = yes, no
	return m
}

func TestCalculateOdds(t *testing.T) {
	t.Parallel()

	yes, no := marketWithPools(t, 0, 0).CalculateOdds()
	if !yes.Equal(decimal.RequireFromString("0.5")) || !no.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("empty odds = %s/%s, want 0.5/0.5", yes, no)
	}

	yes, no = marketWithPools(t, 4_000, 6_000).CalculateOdds()
	if !yes.Equal(decimal.RequireFromString("0.4")) || !no.Equal(decimal.RequireFromString("0.6")) {
		t.Errorf("odds = %s/%s, want 0.4/0.6", yes, no)
	}

	yes, no = marketWithPools(t, 1, 2).CalculateOdds()
	if !yes.Add(no).Equal(decimal.NewFromInt(1)) {
		t.Errorf("odds %s + %s != 1", yes, no)
	}

	yes, no = marketWithPools(t, math.MaxUint64, math.MaxUint64).CalculateOdds()
	if !yes.Equal(decimal.RequireFromString("0.5")) || !no.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("full-range odds = %s/%s", yes, no)
	}
}

func TestGetSpotPrices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		yes, no         uint64
		wantYes, wantNo uint64
	}{
		{0, 0, 5_000, 5_000},
		{4_000, 6_000, 4_000, 6_000},
		{1, 0, 10_000, 0},
		{0, 1, 0, 10_000},
		{1, 2, 3_333, 6_667},
		{math.MaxUint64, math.MaxUint64, 5_000, 5_000},
		{math.MaxUint64, 1, 9_999, 1},
	}
	for _, tt := range tests {
		y, n := marketWithPools(t, tt.yes, tt.no).GetSpotPrices()
		if y != tt.wantYes || n != tt.wantNo {
			t.Errorf("GetSpotPrices(%d, %d) = (%d, %d), want (%d, %d)", tt.yes, tt.no, y, n, tt.wantYes, tt.wantNo)
		}
		if y+n != 10_000 {
			t.Errorf("GetSpotPrices(%d, %d) does not sum to 10000", tt.yes, tt.no)
		}
	}
}

func TestCalculatePriceImpact(t *testing.T) {
	t.Parallel()

	m := marketWithPools(t, 5_000, 5_000)
	impact, err := m.CalculatePriceImpact(10_000, types.Yes)
	if err != nil {
		t.Fatal(err)
	}
	// 15000/20000 = 7500 bps, from 5000.
	if impact != 2_500 {
		t.Errorf("impact = %d, want 2500", impact)
	}

	impact, err = m.CalculatePriceImpact(10_000, types.No)
	if err != nil {
		t.Fatal(err)
	}
	if impact != 2_500 {
		t.Errorf("NO impact = %d, want 2500", impact)
	}

	empty := marketWithPools(t, 0, 0)
	if impact, _ := empty.CalculatePriceImpact(1, types.Yes); impact != 5_000 {
		t.Errorf("first stake impact = %d, want 5000", impact)
	}
	if impact, _ := m.CalculatePriceImpact(0, types.Yes); impact != 0 {
		t.Errorf("zero amount impact = %d", impact)
	}

	if m.YesPool != 5_000 || m.NoPool != 5_000 {
		t.Error("impact simulation mutated pools")
	}

	if _, err := m.CalculatePriceImpact(math.MaxUint64, types.Yes); !errors.Is(err, ErrMathOverflow) {
		t.Errorf("overflow err = %v", err)
	}
}

func TestCalculateArbitrageOpportunity(t *testing.T) {
	t.Parallel()

	m := marketWithPools(t, 4_000, 6_000) // 4000 / 6000 bps

	side, profit, ok := m.CalculateArbitrageOpportunity(4_500)
	if !ok || side != types.Yes || profit != 500 {
		t.Errorf("ext 4500 = (%s, %d, %v), want (YES, 500, true)", side, profit, ok)
	}

	side, profit, ok = m.CalculateArbitrageOpportunity(3_000)
	if !ok || side != types.No || profit != 1_000 {
		t.Errorf("ext 3000 = (%s, %d, %v), want (NO, 1000, true)", side, profit, ok)
	}

	// Exactly at the threshold is not an opportunity on either side.
	if _, _, ok := m.CalculateArbitrageOpportunity(4_100); ok {
		t.Error("ext 4100 should be within threshold")
	}
	if _, _, ok := m.CalculateArbitrageOpportunity(3_900); ok {
		t.Error("ext 3900 should be within threshold")
	}
	if _, _, ok := m.CalculateArbitrageOpportunity(4_000); ok {
		t.Error("fair price should not signal")
	}
	if side, profit, ok := m.CalculateArbitrageOpportunity(4_101); !ok || side != types.Yes || profit != 101 {
		t.Errorf("ext 4101 = (%s, %d, %v)", side, profit, ok)
	}
	if _, _, ok := m.CalculateArbitrageOpportunity(10_001); ok {
		t.Error("external probability above 10000 must not signal")
	}
}

func TestGetExpectedPayout(t *testing.T) {
	t.Parallel()

	m := marketWithPools(t, 4_000, 6_000)
	got, err := m.GetExpectedPayout(1_000, types.Yes)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2_200 {
		t.Errorf("expected payout = %d, want 2200", got)
	}

	cold := marketWithPools(t, 0, 6_000)
	if got, _ := cold.GetExpectedPayout(1_000, types.Yes); got != 2_000 {
		t.Errorf("cold side payout = %d, want 2000", got)
	}
	if _, err := cold.GetExpectedPayout(math.MaxUint64, types.Yes); !errors.Is(err, ErrMathOverflow) {
		t.Errorf("doubling overflow err = %v", err)
	}

	huge := marketWithPools(t, math.MaxUint64-1, 10)
	if _, err := huge.GetExpectedPayout(5, types.Yes); !errors.Is(err, ErrMathOverflow) {
		t.Errorf("pool overflow err = %v", err)
	}

	// Products past 64 bits are fine as long as the quotient fits.
	wide := marketWithPools(t, 1<<40, 1<<40)
	got, err = wide.GetExpectedPayout(1<<40, types.No)
	if err != nil {
		t.Fatal(err)
	}
	// 2^40 * 3*2^40 / 2^41 = 3*2^39
	if got != 3<<39 {
		t.Errorf("wide payout = %d, want %d", got, uint64(3)<<39)
	}
}
