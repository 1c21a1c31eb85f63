package queue

import (
	"context"
	"sort"
	"sync"
)

// Store persists queue entries. Add must be atomic across all members: either
// every member is admitted or none is.
type Store interface {
	Add(ctx context.Context, e Entry) error
	// RemoveMember deletes the entry that contains userID.
	RemoveMember(ctx context.Context, userID string) (Entry, bool, error)
	// List returns entries ordered by join time.
	List(ctx context.Context) ([]Entry, error)
	// TakeHead atomically removes entries from the head totalling n players.
	TakeHead(ctx context.Context, n int) ([]Entry, error)
	Clear(ctx context.Context) error
}

type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	members map[string]string // user id -> entry id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{members: map[string]string{}}
}

func (s *MemoryStore) Add(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range e.Members {
		if _, ok := s.members[m]; ok {
			return ErrAlreadyQueued
		}
	}
	for _, m := range e.Members {
		s.members[m] = e.ID
	}
	s.entries = append(s.entries, e)
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].JoinedAt.Before(s.entries[j].JoinedAt)
	})
	return nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, userID string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.members[userID]
	if !ok {
		return Entry{}, false, nil
	}
	for i, e := range s.entries {
		if e.ID == id {
			s.removeAt(i)
			return e, true, nil
		}
	}
	delete(s.members, userID)
	return Entry{}, false, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore) TakeHead(_ context.Context, n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	picked := selectHead(s.entries, n)
	if picked == nil {
		return nil, ErrNotEnoughQueued
	}
	for _, p := range picked {
		for i, e := range s.entries {
			if e.ID == p.ID {
				s.removeAt(i)
				break
			}
		}
	}
	return picked, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.members = map[string]string{}
	s.mu.Unlock()
	return nil
}

// removeAt drops entries[i] and its member index. Caller holds the mutex.
func (s *MemoryStore) removeAt(i int) {
	e := s.entries[i]
	for _, m := range e.Members {
		delete(s.members, m)
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
}
