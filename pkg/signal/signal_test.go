package signal

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		display string
		want    float64
		ok      bool
	}{
		{"88k", 88000.0, true},
		{"100K", 100000.0, true},
		{"1,234.5", 1234.5, true},
		{"85000", 85000.0, true},
		{"0.34141", 0.34141, true},
		{" 91k ", 91000.0, true},
		{"", 0, false},
		{"abc", 0, false},
		{"k", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			got, ok := ParsePrice(tt.display)
			if ok != tt.ok {
				t.Fatalf("ok: want %t, got %t", tt.ok, ok)
			}
			if got != tt.want {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSyncTakeProfit(t *testing.T) {
	tests := []struct {
		name    string
		targets map[int]string
		want    string
	}{
		{
			name:    "tier one is canonical",
			targets: map[int]string{1: "90k", 2: "95k"},
			want:    "90k",
		},
		{
			name:    "lowest tier wins when tier one absent",
			targets: map[int]string{3: "99k", 2: "95k"},
			want:    "95k",
		},
		{
			name:    "no tiers leaves scalar untouched",
			targets: nil,
			want:    "80k",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Signal{TakeProfit: "80k", TakeProfitTargets: tt.targets}
			s.SyncTakeProfit()
			if s.TakeProfit != tt.want {
				t.Errorf("want %q, got %q", tt.want, s.TakeProfit)
			}
		})
	}
}

func TestTimeframeDuration(t *testing.T) {
	if got := TimeframeDuration(TimeframeShort); got != 24*time.Hour {
		t.Errorf("short: got %s", got)
	}
	if got := TimeframeDuration(TimeframeLong); got != 30*24*time.Hour {
		t.Errorf("long: got %s", got)
	}
	if got := TimeframeDuration("WHENEVER"); got != 7*24*time.Hour {
		t.Errorf("unknown should default to mid: got %s", got)
	}
}

func TestSignalRoundTrip(t *testing.T) {
	perf := 12.5
	exit := 90000.0
	s := &Signal{
		ID:                "42",
		Text:              "Long BTC at 85k, tp1 is 90k, tp2 is 95k",
		Sender:            "alice",
		Group:             "signals",
		Timestamp:         "2024-03-01 10:00:00",
		Coin:              "BTC",
		Position:          PositionLong,
		LimitOrder:        "85k",
		TakeProfit:        "90k",
		TakeProfitTargets: map[int]string{1: "90k", 2: "95k"},
		StopLoss:          "80k",
		Timeframe:         TimeframeMid,
		Risk:              RiskHigh,
		Status:            StatusHitTarget,
		HitTP:             1,
		Performance:       &perf,
		ExitPrice:         &exit,
		ExitDate:          "2024-03-02 10:00:00",
		Upvotes:           3,
		Voters:            map[string]string{"100": "up"},
	}
	byt, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var got Signal
	if err := json.Unmarshal(byt, &got); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(&got, s) {
		t.Errorf("got: %+v, want: %+v", &got, s)
	}
	if got.TakeProfitTargets[1] != got.TakeProfit {
		t.Errorf("tier 1 must mirror scalar take profit after round trip")
	}
}

func TestIsTerminal(t *testing.T) {
	s := &Signal{}
	if s.IsTerminal() {
		t.Error("missing status must count as pending")
	}
	s.Status = StatusPending
	if s.IsTerminal() {
		t.Error("pending is not terminal")
	}
	for _, status := range []string{StatusHitTarget, StatusHitStopLoss, StatusExpired} {
		s.Status = status
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", status)
		}
	}
}
