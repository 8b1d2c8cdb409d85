package authkit

import (
	"context"
	"fmt"
	"time"

	"github.com/teamdeck/authkit/storage"
)

// accountGuard enforces the lockout policy on user rows. All state lives on
// the user record; increments happen in a single store round-trip so
// concurrent failed logins cannot lose updates. Only password failures feed
// the counter; second-factor failures are throttled separately by the
// challenge attempt cap.
type accountGuard struct {
	store  storage.UserStore
	config LockoutConfig
	now    func() time.Time
}

// checkLockout gates a login attempt. A locked account inside its window
// fails with ErrAccountLocked; once the window has elapsed the account is
// auto-unlocked (counter zeroed) and the attempt proceeds to password
// verification.
func (g *accountGuard) checkLockout(ctx context.Context, user *storage.User) (*storage.User, error) {
	if !user.Locked {
		return user, nil
	}

	expiry := user.LastFailedLoginAt.Add(g.config.Duration)
	if g.now().Before(expiry) {
		return nil, ErrAccountLocked
	}

	if err := g.store.Unlock(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("unlocking account: %w", err)
	}
	unlocked := *user
	unlocked.Locked = false
	unlocked.FailedLogins = 0
	return &unlocked, nil
}

// recordFailure counts a failed password check and locks the account once
// the threshold is reached.
func (g *accountGuard) recordFailure(ctx context.Context, userID string) (*storage.User, error) {
	return g.store.RecordLoginFailure(ctx, userID, g.config.Threshold, g.now())
}

// recordSuccess zeroes the counter after a correct password. The lock flag
// is untouched here; unlocking is checkLockout's job.
func (g *accountGuard) recordSuccess(ctx context.Context, userID string) error {
	return g.store.ResetLoginFailures(ctx, userID)
}
