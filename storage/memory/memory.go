// Package memory provides a mutex-guarded in-memory implementation of
// storage.Store. It backs the engine test suite and local development; the
// semantics (atomic counter updates, newest-first token matching) mirror the
// postgres implementation.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teamdeck/authkit/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is an in-memory storage.Store. The zero value is not usable; call
// New.
type Store struct {
	mu sync.Mutex

	users           map[string]*storage.User
	usersByEmail    map[string]string
	methods         map[string]*storage.TwoFactorMethod
	twoFactorTokens map[string]*storage.TwoFactorToken
	refreshTokens   map[string]*storage.RefreshToken
	resetTokens     map[string]*storage.ResetToken
	audit           []*storage.AuditEntry
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:           make(map[string]*storage.User),
		usersByEmail:    make(map[string]string),
		methods:         make(map[string]*storage.TwoFactorMethod),
		twoFactorTokens: make(map[string]*storage.TwoFactorToken),
		refreshTokens:   make(map[string]*storage.RefreshToken),
		resetTokens:     make(map[string]*storage.ResetToken),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) CreateUser(_ context.Context, user *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(user.Email)
	if _, exists := s.usersByEmail[key]; exists {
		return storage.ErrDuplicateEmail
	}

	clone := *user
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.users[clone.ID] = &clone
	s.usersByEmail[key] = clone.ID
	return nil
}

func (s *Store) UserByID(_ context.Context, id string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByEmail[normalizeEmail(email)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *s.users[id]
	return &clone, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	user.PasswordHash = hash
	return nil
}

func (s *Store) RecordLoginFailure(_ context.Context, userID string, threshold int, at time.Time) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	user.FailedLogins++
	user.LastFailedLoginAt = at
	if user.FailedLogins >= threshold {
		user.Locked = true
	}

	clone := *user
	return &clone, nil
}

func (s *Store) ResetLoginFailures(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	user.FailedLogins = 0
	return nil
}

func (s *Store) Unlock(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	user.Locked = false
	user.FailedLogins = 0
	return nil
}

func (s *Store) SetLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	user.LastLoginAt = at
	return nil
}

func (s *Store) CreateMethod(_ context.Context, method *storage.TwoFactorMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *method
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.methods[clone.ID] = &clone
	return nil
}

func (s *Store) MethodByID(_ context.Context, id string) (*storage.TwoFactorMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	method, ok := s.methods[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *method
	return &clone, nil
}

func (s *Store) MethodsByUser(_ context.Context, userID string) ([]*storage.TwoFactorMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*storage.TwoFactorMethod
	for _, method := range s.methods {
		if method.UserID == userID {
			clone := *method
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ConfirmMethod(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	method, ok := s.methods[id]
	if !ok {
		return storage.ErrNotFound
	}
	method.Confirmed = true
	return nil
}

func (s *Store) SetPrimary(_ context.Context, userID, methodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.methods[methodID]
	if !ok || target.UserID != userID {
		return storage.ErrNotFound
	}
	for _, method := range s.methods {
		if method.UserID == userID {
			method.Primary = method.ID == methodID
		}
	}
	return nil
}

func (s *Store) TouchMethod(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	method, ok := s.methods[id]
	if !ok {
		return storage.ErrNotFound
	}
	method.LastUsedAt = at
	return nil
}

func (s *Store) DeleteMethod(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.methods[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.methods, id)
	for tokenID, token := range s.twoFactorTokens {
		if token.MethodID == id {
			delete(s.twoFactorTokens, tokenID)
		}
	}
	return nil
}

func (s *Store) CreateTwoFactorToken(_ context.Context, token *storage.TwoFactorToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *token
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.twoFactorTokens[clone.ID] = &clone
	return nil
}

func (s *Store) LatestTwoFactorToken(_ context.Context, userID, methodID string, now time.Time) (*storage.TwoFactorToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *storage.TwoFactorToken
	for _, token := range s.twoFactorTokens {
		if token.UserID != userID || token.MethodID != methodID {
			continue
		}
		if token.Used || !now.Before(token.ExpiresAt) {
			continue
		}
		if latest == nil || token.CreatedAt.After(latest.CreatedAt) {
			latest = token
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (s *Store) MarkTwoFactorTokenUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.twoFactorTokens[id]
	if !ok {
		return storage.ErrNotFound
	}
	token.Used = true
	return nil
}

func (s *Store) CreateRefreshToken(_ context.Context, token *storage.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *token
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.refreshTokens[clone.ID] = &clone
	return nil
}

func (s *Store) ListActiveRefreshTokens(_ context.Context, now time.Time) ([]*storage.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*storage.RefreshToken
	for id, token := range s.refreshTokens {
		if !now.Before(token.ExpiresAt) {
			delete(s.refreshTokens, id)
			continue
		}
		clone := *token
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.refreshTokens, id)
	return nil
}

func (s *Store) DeleteRefreshTokensForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, token := range s.refreshTokens {
		if token.UserID == userID {
			delete(s.refreshTokens, id)
		}
	}
	return nil
}

func (s *Store) CreateResetToken(_ context.Context, token *storage.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *token
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.resetTokens[clone.ID] = &clone
	return nil
}

func (s *Store) ListActiveResetTokens(_ context.Context, now time.Time) ([]*storage.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*storage.ResetToken
	for id, token := range s.resetTokens {
		if !now.Before(token.ExpiresAt) {
			delete(s.resetTokens, id)
			continue
		}
		clone := *token
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteResetToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resetTokens[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.resetTokens, id)
	return nil
}

func (s *Store) DeleteResetTokensForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, token := range s.resetTokens {
		if token.UserID == userID {
			delete(s.resetTokens, id)
		}
	}
	return nil
}

func (s *Store) AppendAudit(_ context.Context, entry *storage.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *entry
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.audit = append(s.audit, &clone)
	return nil
}

// SetActive flips the active flag on a user row. Test helper; account
// deactivation is an admin operation outside the engine.
func (s *Store) SetActive(userID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[userID]; ok {
		user.Active = active
	}
}

// AuditEntries returns a copy of the appended audit log, oldest first. Test
// helper; the engine never reads audit rows back.
func (s *Store) AuditEntries() []*storage.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*storage.AuditEntry, 0, len(s.audit))
	for _, entry := range s.audit {
		clone := *entry
		out = append(out, &clone)
	}
	return out
}
