// Package bolt persists users as JSON values in a bolt database.
package bolt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/boltdb/bolt"

	"github.com/pumpmybags/pmb/pkg/user"
)

var usersBucket = []byte("users")

type Store struct {
	db *bolt.DB
}

func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt: couldn't open db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(usersBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("bolt: couldn't create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) List() ([]*user.User, error) {
	var users []*user.User
	if err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(usersBucket).ForEach(func(k, v []byte) error {
			var u user.User
			if err := json.Unmarshal(v, &u); err != nil {
				return fmt.Errorf("couldn't decode %s: %w", k, err)
			}
			users = append(users, &u)
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("bolt: couldn't query: %w", err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ChatID < users[j].ChatID })
	return users, nil
}

func (s *Store) Get(chatID int64) (*user.User, error) {
	var u *user.User
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(usersBucket).Get(key(chatID))
		if v == nil {
			return nil
		}
		u = &user.User{}
		return json.Unmarshal(v, u)
	}); err != nil {
		return nil, fmt.Errorf("bolt: couldn't get %d: %w", chatID, err)
	}
	if u == nil {
		return nil, fmt.Errorf("bolt: user %d not found", chatID)
	}
	return u, nil
}

func (s *Store) Put(u *user.User) error {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		byt, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("couldn't encode: %w", err)
		}
		return tx.Bucket(usersBucket).Put(key(u.ChatID), byt)
	}); err != nil {
		return fmt.Errorf("bolt: couldn't put %d: %w", u.ChatID, err)
	}
	return nil
}

func key(chatID int64) []byte {
	return []byte(strconv.FormatInt(chatID, 10))
}
