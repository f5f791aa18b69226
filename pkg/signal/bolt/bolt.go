// Package bolt persists signals and per-coin counters as JSON values in a
// bolt database, one record per key.
package bolt

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/boltdb/bolt"

	"github.com/pumpmybags/pmb/pkg/signal"
)

var (
	signalsBucket = []byte("signals")
	coinsBucket   = []byte("coins")
)

type Store struct {
	db *bolt.DB
}

func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt: couldn't open db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{signalsBucket, coinsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("bolt: couldn't create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

// List returns all signals ordered by creation time.
func (s *Store) List() ([]*signal.Signal, error) {
	var signals []*signal.Signal
	if err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(signalsBucket).ForEach(func(k, v []byte) error {
			var sig signal.Signal
			if err := json.Unmarshal(v, &sig); err != nil {
				return fmt.Errorf("couldn't decode %s: %w", k, err)
			}
			signals = append(signals, &sig)
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("bolt: couldn't query: %w", err)
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
	var sig *signal.Signal
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(signalsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		sig = &signal.Signal{}
		return json.Unmarshal(v, sig)
	}); err != nil {
		return nil, fmt.Errorf("bolt: couldn't get %s: %w", id, err)
	}
	if sig == nil {
		return nil, fmt.Errorf("bolt: signal %s not found", id)
	}
	return sig, nil
}

func (s *Store) Put(sig *signal.Signal) error {
	sig.SyncTakeProfit()
	if err := s.db.Update(func(tx *bolt.Tx) error {
		byt, err := json.Marshal(sig)
		if err != nil {
			return fmt.Errorf("couldn't encode: %w", err)
		}
		return tx.Bucket(signalsBucket).Put([]byte(sig.ID), byt)
	}); err != nil {
		return fmt.Errorf("bolt: couldn't put %s: %w", sig.ID, err)
	}
	return nil
}

func (s *Store) NextID() (uint64, error) {
	var id uint64
	if err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		id, err = tx.Bucket(signalsBucket).NextSequence()
		return err
	}); err != nil {
		return 0, fmt.Errorf("bolt: couldn't get next id: %w", err)
	}
	return id, nil
}

func (s *Store) RecordCoin(coin, signalID, timestamp string) error {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(coinsBucket)
		stat := &signal.CoinStat{FirstSeen: timestamp}
		if v := b.Get([]byte(coin)); v != nil {
			if err := json.Unmarshal(v, stat); err != nil {
				return fmt.Errorf("couldn't decode: %w", err)
			}
		}
		stat.SignalCount++
		stat.Signals = append(stat.Signals, signalID)
		byt, err := json.Marshal(stat)
		if err != nil {
			return fmt.Errorf("couldn't encode: %w", err)
		}
		return b.Put([]byte(coin), byt)
	}); err != nil {
		return fmt.Errorf("bolt: couldn't record coin %s: %w", coin, err)
	}
	return nil
}

func (s *Store) Coins() (map[string]*signal.CoinStat, error) {
	coins := make(map[string]*signal.CoinStat)
	if err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(coinsBucket).ForEach(func(k, v []byte) error {
			var stat signal.CoinStat
			if err := json.Unmarshal(v, &stat); err != nil {
				return fmt.Errorf("couldn't decode %s: %w", k, err)
			}
			coins[string(k)] = &stat
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("bolt: couldn't query coins: %w", err)
	}
	return coins, nil
}
