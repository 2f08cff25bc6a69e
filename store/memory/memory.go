// Package memory is an in-process AccountStore. It keeps no data across
// restarts and is meant for tests, demos and the load-test tool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrEthical07/accessgate"
)

type Store struct {
	mu      sync.RWMutex
	byID    map[string]accessgate.Account
	byEmail map[string]string
	byName  map[string]string
}

func New() *Store {
	return &Store{
		byID:    make(map[string]accessgate.Account),
		byEmail: make(map[string]string),
		byName:  make(map[string]string),
	}
}

func (s *Store) FindByEmail(_ context.Context, email string) (accessgate.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return accessgate.Account{}, false, nil
	}
	return s.byID[id], true, nil
}

func (s *Store) FindByID(_ context.Context, id string) (accessgate.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	return a, ok, nil
}

// Save inserts or replaces the account keyed by ID. Email and username stay
// unique across accounts.
func (s *Store) Save(_ context.Context, account accessgate.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byEmail[account.Email]; ok && owner != account.ID {
		return fmt.Errorf("%w: email", accessgate.ErrAccountExists)
	}
	if owner, ok := s.byName[account.Username]; ok && owner != account.ID {
		return fmt.Errorf("%w: username", accessgate.ErrAccountExists)
	}

	if prev, ok := s.byID[account.ID]; ok {
		delete(s.byEmail, prev.Email)
		delete(s.byName, prev.Username)
	}
	s.byID[account.ID] = account
	s.byEmail[account.Email] = account.ID
	s.byName[account.Username] = account.ID
	return nil
}

func (s *Store) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}
