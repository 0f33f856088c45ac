package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/repository"
	"github.com/sakif/botnet/internal/repository/repotest"
)

func TestConformance(t *testing.T) {
	repotest.Run(t, repotest.Harness{
		New: func(t *testing.T) repository.Store { return New() },
		BreakEdge: func(t *testing.T, s repository.Store, followerID, targetID string) {
			t.Helper()
			store := s.(*Store)
			r, ok := store.record(targetID)
			require.True(t, ok)
			require.NoError(t, r.sem.Acquire(context.Background(), 1))
			r.p.Followers = append(r.p.Followers, followerID)
			r.sem.Release(1)
		},
	})
}

// A record held by one operation makes a second one wait; when the second
// caller's deadline passes first it gets a Transient error, not a hang.
func TestLockWaitHonoursDeadline(t *testing.T) {
	s := New()
	alice := repotest.CreateProfile(t, s, "alice")
	bob := repotest.CreateProfile(t, s, "bob")

	_, release, err := s.lock(context.Background(), "hold", bob.ID)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = s.RequestFollow(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, apperror.ErrTransient)
}

// lock must return records in argument order even though it acquires them
// sorted.
func TestLockReturnsArgumentOrder(t *testing.T) {
	s := New()
	a := repotest.CreateProfile(t, s, "zed")
	b := repotest.CreateProfile(t, s, "amy")

	recs, release, err := s.lock(context.Background(), "test", b.ID, a.ID)
	require.NoError(t, err)
	defer release()

	assert.Equal(t, "amy", recs[0].p.Username)
	assert.Equal(t, "zed", recs[1].p.Username)
}

func TestLockMissingProfile(t *testing.T) {
	s := New()
	alice := repotest.CreateProfile(t, s, "alice")

	_, _, err := s.lock(context.Background(), "test", alice.ID, "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	// Nothing stayed locked.
	_, err = s.GetByID(context.Background(), alice.ID)
	assert.NoError(t, err)
}

// Snapshots are copies: mutating one never leaks into the store.
func TestSnapshotIsolation(t *testing.T) {
	s := New()
	alice := repotest.CreateProfile(t, s, "alice")

	p, err := s.GetByID(context.Background(), alice.ID)
	require.NoError(t, err)
	p.Followers = append(p.Followers, "intruder")
	p.Bio = "changed"

	again, err := s.GetByID(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Followers)
	assert.Empty(t, again.Bio)
}
