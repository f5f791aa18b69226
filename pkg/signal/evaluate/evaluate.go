// Package evaluate implements the signal lifecycle state machine: pending
// signals are re-priced against the market and transition to hit-target,
// hit-stoploss or expired. Terminal states are final.
package evaluate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pumpmybags/pmb/pkg/price"
	"github.com/pumpmybags/pmb/pkg/signal"
)

// Signals with no explicit stop carry an implicit 20% adverse-move stop.
const defaultStopLossPct = 0.2

// Evaluate applies the state machine to one signal given the current price,
// mutating status, performance and exit fields in place. It reports whether
// the signal transitioned out of the pending state on this call. Calling it
// on an already-terminal signal is a no-op.
func Evaluate(s *signal.Signal, current float64, now time.Time) bool {
	if s.Status == "" {
		s.Status = signal.StatusPending
	}
	if s.IsTerminal() {
		return false
	}
	position := s.Position
	if position == "" {
		position = signal.PositionLong
	}

	entry, okEntry := signal.ParsePrice(s.LimitOrder)
	if okEntry {
		stop, okStop := signal.ParsePrice(s.StopLoss)
		if !okStop {
			if position == signal.PositionShort {
				stop = entry * (1 + defaultStopLossPct)
			} else {
				stop = entry * (1 - defaultStopLossPct)
			}
		}
		// Target first, stop second: if both are true in the same pass
		// the target wins.
		if !checkTarget(s, position, entry, current, now) {
			checkStopLoss(s, position, entry, stop, current, now)
		}
	}

	if s.Status == signal.StatusPending {
		checkExpiry(s, position, entry, okEntry, current, now)
	}

	if s.Status == signal.StatusPending && okEntry {
		unrealized := pct(position, entry, current)
		s.UnrealizedPerformance = &unrealized
	}
	return s.IsTerminal()
}

// checkTarget scans take-profit tiers in the direction of the trade: a long
// is closed at the lowest-priced tier the price has climbed through, a short
// at the highest-priced tier it has fallen through. With no tier mapping the
// scalar take-profit applies.
func checkTarget(s *signal.Signal, position string, entry, current float64, now time.Time) bool {
	type tier struct {
		number int
		price  float64
	}
	var tiers []tier
	for number, display := range s.TakeProfitTargets {
		p, ok := signal.ParsePrice(display)
		if !ok {
			continue
		}
		tiers = append(tiers, tier{number: number, price: p})
	}
	if len(tiers) > 0 {
		if position == signal.PositionShort {
			sort.Slice(tiers, func(i, j int) bool { return tiers[i].price > tiers[j].price })
		} else {
			sort.Slice(tiers, func(i, j int) bool { return tiers[i].price < tiers[j].price })
		}
		for _, t := range tiers {
			if position == signal.PositionShort && current > t.price {
				continue
			}
			if position != signal.PositionShort && current < t.price {
				continue
			}
			transition(s, signal.StatusHitTarget, pct(position, entry, t.price), t.price, now)
			s.HitTP = t.number
			return true
		}
		return false
	}
	target, ok := signal.ParsePrice(s.TakeProfit)
	if !ok {
		return false
	}
	if position == signal.PositionShort && current <= target ||
		position != signal.PositionShort && current >= target {
		transition(s, signal.StatusHitTarget, pct(position, entry, target), target, now)
		return true
	}
	return false
}

func checkStopLoss(s *signal.Signal, position string, entry, stop, current float64, now time.Time) {
	if position == signal.PositionShort && current >= stop ||
		position != signal.PositionShort && current <= stop {
		transition(s, signal.StatusHitStopLoss, pct(position, entry, stop), stop, now)
	}
}

func checkExpiry(s *signal.Signal, position string, entry float64, okEntry bool, current float64, now time.Time) {
	ts, err := time.Parse(signal.TimeLayout, s.Timestamp)
	if err != nil {
		// Without a creation time the expiry horizon is undecidable.
		// Skip only this check, the signal stays evaluable by price.
		logrus.WithField("signal", s.ID).Warnf("evaluate: couldn't parse timestamp %q: %v", s.Timestamp, err)
		return
	}
	if !now.After(ts.Add(signal.TimeframeDuration(s.Timeframe))) {
		return
	}
	s.Status = signal.StatusExpired
	if okEntry {
		perf := pct(position, entry, current)
		s.Performance = &perf
	}
	exit := current
	s.ExitPrice = &exit
	s.ExitDate = now.Format(signal.TimeLayout)
	s.UnrealizedPerformance = nil
}

// transition stamps status, realized performance and exit fields together.
func transition(s *signal.Signal, status string, performance, exitPrice float64, now time.Time) {
	s.Status = status
	s.Performance = &performance
	s.ExitPrice = &exitPrice
	s.ExitDate = now.Format(signal.TimeLayout)
	s.UnrealizedPerformance = nil
}

// pct is the percentage return of closing at price having entered at entry.
func pct(position string, entry, price float64) float64 {
	if position == signal.PositionShort {
		return (entry - price) / entry * 100
	}
	return (price - entry) / entry * 100
}

// Updater re-prices pending signals in batch.
type Updater struct {
	oracle price.Oracle
	log    func(v ...interface{})
	now    func() time.Time
}

func NewUpdater(log func(v ...interface{}), oracle price.Oracle) *Updater {
	return &Updater{
		oracle: oracle,
		log:    log,
		now:    time.Now,
	}
}

// UpdateAll evaluates every pending signal, fetching each coin's price at
// most once per pass. Signals whose price is unavailable are left untouched.
// It reports whether at least one signal reached a terminal state, which
// tells the caller to persist and notify.
func (u *Updater) UpdateAll(ctx context.Context, signals []*signal.Signal) bool {
	now := u.now()
	prices := make(map[string]float64)
	failed := make(map[string]bool)
	var changed bool
	for _, s := range signals {
		if s.Status == "" {
			s.Status = signal.StatusPending
		}
		if s.IsTerminal() || s.Coin == "" {
			continue
		}
		current, ok := prices[s.Coin]
		if !ok {
			if failed[s.Coin] {
				continue
			}
			p, err := u.oracle.Price(ctx, s.Coin)
			if err != nil {
				u.log(fmt.Errorf("evaluate: couldn't get price for %s: %w", s.Coin, err))
				failed[s.Coin] = true
				continue
			}
			prices[s.Coin] = p
			current = p
		}
		if Evaluate(s, current, now) {
			changed = true
		}
	}
	return changed
}
