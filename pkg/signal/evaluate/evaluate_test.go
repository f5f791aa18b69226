package evaluate

import (
	"context"
	"log"
	"math"
	"testing"
	"time"

	"github.com/pumpmybags/pmb/pkg/price"
	"github.com/pumpmybags/pmb/pkg/signal"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func pending(position, entry string) *signal.Signal {
	return &signal.Signal{
		ID:         "1",
		Coin:       "BTC",
		Position:   position,
		LimitOrder: entry,
		Timestamp:  now.Add(-time.Hour).Format(signal.TimeLayout),
		Timeframe:  signal.TimeframeMid,
		Status:     signal.StatusPending,
	}
}

func almostEqual(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("want %v, got %v", want, got)
	}
}

func TestTierSelectionLong(t *testing.T) {
	s := pending(signal.PositionLong, "80000")
	s.TakeProfitTargets = map[int]string{1: "90000", 2: "95000"}
	s.TakeProfit = "90000"

	if !Evaluate(s, 92000, now) {
		t.Fatal("want transition")
	}
	if s.Status != signal.StatusHitTarget {
		t.Fatalf("want HIT_TARGET, got %s", s.Status)
	}
	if s.HitTP != 1 {
		t.Errorf("want tier 1, got %d", s.HitTP)
	}
	almostEqual(t, *s.Performance, 12.5)
	almostEqual(t, *s.ExitPrice, 90000)
	if s.ExitDate != now.Format(signal.TimeLayout) {
		t.Errorf("wrong exit date: %s", s.ExitDate)
	}
	if s.UnrealizedPerformance != nil {
		t.Error("unrealized performance must be cleared on transition")
	}
}

func TestTierSelectionShort(t *testing.T) {
	s := pending(signal.PositionShort, "100000")
	s.TakeProfitTargets = map[int]string{1: "90k", 2: "85k"}
	s.TakeProfit = "90k"

	// Price fell through tier 1 but not tier 2: the highest reached tier
	// wins for a short.
	if !Evaluate(s, 88000, now) {
		t.Fatal("want transition")
	}
	if s.HitTP != 1 {
		t.Errorf("want tier 1, got %d", s.HitTP)
	}
	almostEqual(t, *s.Performance, 10.0)
	almostEqual(t, *s.ExitPrice, 90000)
}

func TestScalarTargetWithoutTiers(t *testing.T) {
	s := pending(signal.PositionLong, "80k")
	s.TakeProfit = "88k"

	if !Evaluate(s, 89000, now) {
		t.Fatal("want transition")
	}
	if s.Status != signal.StatusHitTarget {
		t.Fatalf("want HIT_TARGET, got %s", s.Status)
	}
	if s.HitTP != 0 {
		t.Errorf("scalar path must not record a tier, got %d", s.HitTP)
	}
	almostEqual(t, *s.Performance, 10.0)
}

func TestImplicitShortStopLoss(t *testing.T) {
	s := pending(signal.PositionShort, "90000")
	s.TakeProfit = "80000"

	if !Evaluate(s, 109000, now) {
		t.Fatal("want transition")
	}
	if s.Status != signal.StatusHitStopLoss {
		t.Fatalf("want HIT_STOPLOSS, got %s", s.Status)
	}
	almostEqual(t, *s.Performance, -20.0)
	almostEqual(t, *s.ExitPrice, 108000)
}

func TestExplicitStopLossLong(t *testing.T) {
	s := pending(signal.PositionLong, "85k")
	s.TakeProfit = "95k"
	s.StopLoss = "80k"

	if !Evaluate(s, 79500, now) {
		t.Fatal("want transition")
	}
	if s.Status != signal.StatusHitStopLoss {
		t.Fatalf("want HIT_STOPLOSS, got %s", s.Status)
	}
	almostEqual(t, *s.ExitPrice, 80000)
	almostEqual(t, *s.Performance, (80000.0-85000.0)/85000.0*100)
}

func TestTargetBeatsStopLossInSamePass(t *testing.T) {
	s := pending(signal.PositionLong, "100")
	s.TakeProfit = "110"
	s.StopLoss = "200"

	if !Evaluate(s, 150, now) {
		t.Fatal("want transition")
	}
	if s.Status != signal.StatusHitTarget {
		t.Fatalf("target must win over stop, got %s", s.Status)
	}
}

func TestExpiry(t *testing.T) {
	s := pending(signal.PositionLong, "85000")
	s.TakeProfit = "95000"
	s.Timeframe = signal.TimeframeShort
	s.Timestamp = now.Add(-48 * time.Hour).Format(signal.TimeLayout)

	// Price neither hit target nor stop, but the 1 day horizon passed.
	if !Evaluate(s, 86000, now) {
		t.Fatal("want transition")
	}
	if s.Status != signal.StatusExpired {
		t.Fatalf("want EXPIRED, got %s", s.Status)
	}
	almostEqual(t, *s.Performance, (86000.0-85000.0)/85000.0*100)
	almostEqual(t, *s.ExitPrice, 86000)
}

func TestExpiryWithoutEntryPrice(t *testing.T) {
	s := pending(signal.PositionLong, "")
	s.TakeProfit = "95000"
	s.Timeframe = signal.TimeframeShort
	s.Timestamp = now.Add(-48 * time.Hour).Format(signal.TimeLayout)

	if !Evaluate(s, 86000, now) {
		t.Fatal("want transition")
	}
	if s.Status != signal.StatusExpired {
		t.Fatalf("want EXPIRED, got %s", s.Status)
	}
	if s.Performance != nil {
		t.Error("performance must stay unset without an entry price")
	}
	almostEqual(t, *s.ExitPrice, 86000)
}

func TestBadTimestampSkipsExpiryOnly(t *testing.T) {
	s := pending(signal.PositionLong, "85000")
	s.TakeProfit = "95000"
	s.Timestamp = "not a date"

	if Evaluate(s, 86000, now) {
		t.Fatal("want no transition")
	}
	if s.Status != signal.StatusPending {
		t.Fatalf("want PENDING, got %s", s.Status)
	}
	// Price-based evaluation still works on a later pass.
	if !Evaluate(s, 96000, now) {
		t.Fatal("want transition")
	}
	if s.Status != signal.StatusHitTarget {
		t.Fatalf("want HIT_TARGET, got %s", s.Status)
	}
}

func TestUnrealizedPerformanceRewritten(t *testing.T) {
	s := pending(signal.PositionLong, "80000")
	s.TakeProfit = "100000"

	if Evaluate(s, 84000, now) {
		t.Fatal("want no transition")
	}
	almostEqual(t, *s.UnrealizedPerformance, 5.0)

	// Overwritten, not accumulated.
	if Evaluate(s, 76000, now) {
		t.Fatal("want no transition")
	}
	almostEqual(t, *s.UnrealizedPerformance, -5.0)
}

func TestTerminalIsIdempotent(t *testing.T) {
	s := pending(signal.PositionLong, "80000")
	s.TakeProfit = "90000"
	if !Evaluate(s, 91000, now) {
		t.Fatal("want transition")
	}
	exitDate := s.ExitDate
	perf := *s.Performance

	for _, price := range []float64{1, 91000, 1000000} {
		if Evaluate(s, price, now.Add(100*24*time.Hour)) {
			t.Fatal("terminal signal must not transition again")
		}
	}
	if s.Status != signal.StatusHitTarget {
		t.Errorf("status reverted to %s", s.Status)
	}
	if s.ExitDate != exitDate || *s.Performance != perf {
		t.Error("terminal fields mutated on re-evaluation")
	}
}

func TestMissingEntrySkipsPriceChecks(t *testing.T) {
	s := pending(signal.PositionLong, "")
	s.TakeProfit = "90000"
	if Evaluate(s, 95000, now) {
		t.Fatal("want no transition without an entry price")
	}
	if s.UnrealizedPerformance != nil {
		t.Error("unrealized performance needs an entry price")
	}
}

type batchOracle struct {
	prices map[string]float64
	calls  map[string]int
}

func (o *batchOracle) Price(ctx context.Context, symbol string) (float64, error) {
	if o.calls == nil {
		o.calls = make(map[string]int)
	}
	o.calls[symbol]++
	p, ok := o.prices[symbol]
	if !ok {
		return 0, price.ErrUnavailable
	}
	return p, nil
}

func TestUpdateAll(t *testing.T) {
	hit := pending(signal.PositionLong, "80000")
	hit.TakeProfit = "90000"

	open := pending(signal.PositionLong, "80000")
	open.ID = "2"
	open.TakeProfit = "200000"

	second := pending(signal.PositionLong, "80000")
	second.ID = "3"
	second.TakeProfit = "90000"

	unavailable := pending(signal.PositionLong, "1")
	unavailable.ID = "4"
	unavailable.Coin = "NOPE"
	unavailable.TakeProfit = "2"

	done := pending(signal.PositionLong, "80000")
	done.ID = "5"
	done.Coin = "ETH"
	done.Status = signal.StatusHitTarget

	oracle := &batchOracle{prices: map[string]float64{"BTC": 92000}}
	u := NewUpdater(log.Println, oracle)
	u.now = func() time.Time { return now }

	signals := []*signal.Signal{hit, open, second, unavailable, done}
	if !u.UpdateAll(context.Background(), signals) {
		t.Fatal("want changed")
	}
	if hit.Status != signal.StatusHitTarget || second.Status != signal.StatusHitTarget {
		t.Error("pending signals at target must transition")
	}
	if open.Status != signal.StatusPending {
		t.Error("signal short of target must stay pending")
	}
	if unavailable.Status != signal.StatusPending || unavailable.UnrealizedPerformance != nil {
		t.Error("signal without a price must be left untouched")
	}
	if oracle.calls["BTC"] != 1 {
		t.Errorf("price must be fetched once per coin per pass, got %d", oracle.calls["BTC"])
	}
	if oracle.calls["ETH"] != 0 {
		t.Errorf("terminal signals must not trigger price lookups, got %d", oracle.calls["ETH"])
	}

	// Second pass with nothing left to transition reports no change.
	oracle.prices["NOPE"] = 1.5
	if u.UpdateAll(context.Background(), signals) {
		t.Error("want unchanged")
	}
	if unavailable.UnrealizedPerformance == nil {
		t.Error("recovered price must mark the open signal to market")
	}
}
