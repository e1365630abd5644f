package oracle

import (
	"context"
	"errors"
	"testing"

	"predictpool/internal/market"
	"predictpool/pkg/types"
)

func TestStaticReadSet(t *testing.T) {
	t.Parallel()
	s := NewStatic()
	ctx := context.Background()

	if _, err := s.Read(ctx, "BTC/USD"); !errors.Is(err, market.ErrPriceUnavailable) {
		t.Fatalf("missing feed err = %v, want ErrPriceUnavailable", err)
	}

	want := types.PriceReading{Price: 9_500_000, Expo: -2, Confidence: 40, PublishTime: 1_700_000_000}
	s.Set("BTC/USD", want)
	got, err := s.Read(ctx, "BTC/USD")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Read = %+v, want %+v", got, want)
	}

	s.Set("BTC/USD", types.PriceReading{Price: 1})
	if got, _ := s.Read(ctx, "BTC/USD"); got.Price != 1 {
		t.Errorf("Set did not replace reading: %+v", got)
	}
}
