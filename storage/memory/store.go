// Package memory provides an in-process [storage.Repository] for tests and local
// development. All operations are serialized by a single mutex, which gives the
// same uniqueness and isolation guarantees a transactional backend would.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authkit/storage"
	"github.com/google/uuid"
)

// Store is a mutex-guarded in-memory repository.
type Store struct {
	mu         sync.Mutex
	users      map[string]storage.User
	byUsername map[string]string
	byEmail    map[string]string
	tokens     map[string]storage.RefreshToken
	now        func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]storage.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		tokens:     make(map[string]storage.RefreshToken),
		now:        time.Now,
	}
}

func (s *Store) FindUserByID(_ context.Context, id string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) SaveUser(_ context.Context, u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		if _, taken := s.byEmail[u.Email]; taken {
			return &storage.DuplicateError{Field: storage.FieldEmail}
		}
		if _, taken := s.byUsername[u.Username]; taken {
			return &storage.DuplicateError{Field: storage.FieldUsername}
		}
		u.ID = uuid.NewString()
		if u.CreatedAt.IsZero() {
			u.CreatedAt = s.now().UTC()
		}
		s.put(*u)
		return nil
	}

	prev, ok := s.users[u.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if owner, taken := s.byEmail[u.Email]; taken && owner != u.ID {
		return &storage.DuplicateError{Field: storage.FieldEmail}
	}
	if owner, taken := s.byUsername[u.Username]; taken && owner != u.ID {
		return &storage.DuplicateError{Field: storage.FieldUsername}
	}
	delete(s.byEmail, prev.Email)
	delete(s.byUsername, prev.Username)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = prev.CreatedAt
	}
	s.put(*u)
	return nil
}

func (s *Store) put(u storage.User) {
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	s.byUsername[u.Username] = u.ID
}

func (s *Store) FindRefreshTokensByUsername(_ context.Context, username string) ([]storage.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storage.RefreshToken, 0, 4)
	for _, t := range s.tokens {
		if t.Username == username {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) SaveRefreshToken(_ context.Context, token storage.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	u, ok := s.users[token.UserID]
	if !ok {
		return storage.ErrNotFound
	}
	token.Username = u.Username
	s.tokens[token.ID] = token
	return nil
}

func (s *Store) DeleteRefreshToken(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[id]; !ok {
		return false, nil
	}
	delete(s.tokens, id)
	return true, nil
}

func (s *Store) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, t := range s.tokens {
		if !t.ExpiresAt.After(now) {
			delete(s.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

// RefreshTokenCount reports the number of stored refresh token rows.
func (s *Store) RefreshTokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

var _ storage.Repository = (*Store)(nil)
