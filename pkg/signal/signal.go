package signal

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the format used for signal timestamps and exit dates.
const TimeLayout = "2006-01-02 15:04:05"

// Lifecycle states. Pending is the only non-terminal state.
const (
	StatusPending     = "PENDING"
	StatusHitTarget   = "HIT_TARGET"
	StatusHitStopLoss = "HIT_STOPLOSS"
	StatusExpired     = "EXPIRED"
)

const (
	PositionLong  = "Long"
	PositionShort = "Short"
)

const (
	TimeframeShort = "SHORT"
	TimeframeMid   = "MID"
	TimeframeLong  = "LONG"
)

const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

var Timeframes = []string{TimeframeShort, TimeframeMid, TimeframeLong}
var RiskLevels = []string{RiskLow, RiskMedium, RiskHigh}

// TimeframeDuration returns the expiry horizon for a timeframe.
// Unrecognized timeframes fall back to the mid-term horizon.
func TimeframeDuration(timeframe string) time.Duration {
	switch timeframe {
	case TimeframeShort:
		return 24 * time.Hour
	case TimeframeMid:
		return 7 * 24 * time.Hour
	case TimeframeLong:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Signal is a recorded trading call. Prices extracted from text are kept in
// their display form ("88k", "85000") and only normalized via ParsePrice when
// the evaluator needs numbers. Optional fields are pointers or empty strings
// so that absence survives a store round-trip.
type Signal struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Sender     string `json:"sender,omitempty"`
	Group      string `json:"group,omitempty"`
	Timestamp  string `json:"timestamp"`
	Coin       string `json:"coin,omitempty"`
	Position   string `json:"position,omitempty"`
	LimitOrder string `json:"limit_order,omitempty"`

	// TakeProfit mirrors the lowest tier of TakeProfitTargets when tiers
	// are present.
	TakeProfit        string         `json:"take_profit,omitempty"`
	TakeProfitTargets map[int]string `json:"take_profit_targets,omitempty"`
	StopLoss          string         `json:"stop_loss,omitempty"`

	Timeframe string `json:"timeframe,omitempty"`
	Risk      string `json:"risk,omitempty"`

	Status                string   `json:"status"`
	HitTP                 int      `json:"hit_tp,omitempty"`
	Performance           *float64 `json:"performance,omitempty"`
	UnrealizedPerformance *float64 `json:"unrealized_performance,omitempty"`
	ExitPrice             *float64 `json:"exit_price,omitempty"`
	ExitDate              string   `json:"exit_date,omitempty"`

	Upvotes   int               `json:"upvotes"`
	Downvotes int               `json:"downvotes"`
	Voters    map[string]string `json:"voters,omitempty"`
}

// IsTerminal reports whether the signal has left the pending state.
func (s *Signal) IsTerminal() bool {
	return s.Status != "" && s.Status != StatusPending
}

// Tiers returns the take-profit tier numbers sorted ascending.
func (s *Signal) Tiers() []int {
	tiers := make([]int, 0, len(s.TakeProfitTargets))
	for tier := range s.TakeProfitTargets {
		tiers = append(tiers, tier)
	}
	sort.Ints(tiers)
	return tiers
}

// SyncTakeProfit keeps the scalar take-profit field consistent with the tier
// mapping: the canonical value is the lowest tier number present. Callers
// must invoke this before persisting a signal that carries tiers.
func (s *Signal) SyncTakeProfit() {
	tiers := s.Tiers()
	if len(tiers) == 0 {
		return
	}
	s.TakeProfit = s.TakeProfitTargets[tiers[0]]
}

// ParsePrice normalizes a display price to a number. It strips commas and
// whitespace and multiplies by 1000 on a trailing "k"/"K". Malformed or empty
// input yields ok=false, never an error.
func ParsePrice(display string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(display, ",", ""))
	if raw == "" {
		return 0, false
	}
	mul := decimal.NewFromInt(1)
	if strings.HasSuffix(strings.ToLower(raw), "k") {
		raw = strings.TrimSpace(raw[:len(raw)-1])
		mul = decimal.NewFromInt(1000)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, false
	}
	price, _ := d.Mul(mul).Float64()
	return price, true
}

// Store is an ordered collection of signals keyed by id.
type Store interface {
	List() ([]*Signal, error)
	Get(id string) (*Signal, error)
	Put(*Signal) error
	// NextID returns the next value of the chat-path id sequence.
	NextID() (uint64, error)
}

// CoinStat tracks how often a coin has been called.
type CoinStat struct {
	FirstSeen   string   `json:"first_seen"`
	SignalCount int      `json:"signal_count"`
	Signals     []string `json:"signals"`
}

// Parser turns a raw message into a signal. Implementations fill the trade
// fields only, the caller stamps id, sender and timestamp.
type Parser interface {
	Parse(text string) (*Signal, error)
}

// CoinStats aggregates per-coin signal counters.
type CoinStats interface {
	RecordCoin(coin, signalID, timestamp string) error
	Coins() (map[string]*CoinStat, error)
}
