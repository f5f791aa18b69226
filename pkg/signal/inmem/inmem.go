// Package inmem implements an in-memory signal store, mostly useful for
// testing and dry runs.
package inmem

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pumpmybags/pmb/pkg/signal"
)

type Store struct {
	mu      sync.Mutex
	signals map[string]*signal.Signal
	coins   map[string]*signal.CoinStat
	seq     uint64
}

func New() *Store {
	return &Store{
		signals: make(map[string]*signal.Signal),
		coins:   make(map[string]*signal.CoinStat),
	}
}

func (s *Store) List() ([]*signal.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	signals := make([]*signal.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		copied := *sig
		signals = append(signals, &copied)
	}
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Timestamp != signals[j].Timestamp {
			return signals[i].Timestamp < signals[j].Timestamp
		}
		return signals[i].ID < signals[j].ID
	})
	return signals, nil
}

func (s *Store) Get(id string) (*signal.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok {
		return nil, fmt.Errorf("inmem: signal %s not found", id)
	}
	copied := *sig
	return &copied, nil
}

func (s *Store) Put(sig *signal.Signal) error {
	sig.SyncTakeProfit()
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sig
	s.signals[sig.ID] = &copied
	return nil
}

func (s *Store) NextID() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *Store) RecordCoin(coin, signalID, timestamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.coins[coin]
	if !ok {
		stat = &signal.CoinStat{FirstSeen: timestamp}
		s.coins[coin] = stat
	}
	stat.SignalCount++
	stat.Signals = append(stat.Signals, signalID)
	return nil
}

func (s *Store) Coins() (map[string]*signal.CoinStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coins := make(map[string]*signal.CoinStat, len(s.coins))
	for coin, stat := range s.coins {
		copied := *stat
		coins[coin] = &copied
	}
	return coins, nil
}
