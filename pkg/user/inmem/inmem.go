// Package inmem implements an in-memory user store for tests and dry runs.
package inmem

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pumpmybags/pmb/pkg/user"
)

type Store struct {
	mu    sync.Mutex
	users map[int64]*user.User
}

func New() *Store {
	return &Store{users: make(map[int64]*user.User)}
}

func (s *Store) List() ([]*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]*user.User, 0, len(s.users))
	for _, u := range s.users {
		copied := *u
		users = append(users, &copied)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ChatID < users[j].ChatID })
	return users, nil
}

func (s *Store) Get(chatID int64) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[chatID]
	if !ok {
		return nil, fmt.Errorf("inmem: user %d not found", chatID)
	}
	copied := *u
	return &copied, nil
}

func (s *Store) Put(u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *u
	s.users[u.ChatID] = &copied
	return nil
}
