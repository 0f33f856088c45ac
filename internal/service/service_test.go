package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/botnet/internal/auth"
	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/repository/memory"
)

// =========================================================================
// FIXTURE
// =========================================================================

// fixture wires every service onto one fresh in-memory store.
type fixture struct {
	store    *memory.Store
	graph    *GraphService
	profiles *ProfileService
	accounts *AccountService
	tokens   *auth.TokenService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store := memory.New()

	tokens, err := auth.NewTokenService("access-secret-at-least-16", "refresh-secret-at-least-16")
	require.NoError(t, err)

	// Cost 4 is bcrypt minimum, which keeps tests fast
	passwords := auth.NewPasswordServiceForTest(4)

	return &fixture{
		store:    store,
		graph:    NewGraphService(store, store, time.Second, logger),
		profiles: NewProfileService(store, time.Second, logger),
		accounts: NewAccountService(store, store, tokens, passwords, time.Second, logger),
		tokens:   tokens,
	}
}

// signup creates a password account and returns its profile id.
func (f *fixture) signup(t *testing.T, username string) string {
	t.Helper()
	res, err := f.accounts.Signup(context.Background(), username, username+"@example.com", "correct horse")
	require.NoError(t, err)
	return res.Profile.ID
}

// befriend makes followerID follow target through the public operations.
func (f *fixture) befriend(t *testing.T, followerID, targetID, targetUsername string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.graph.RequestFollow(ctx, followerID, targetUsername)
	require.NoError(t, err)
	require.NoError(t, f.graph.AcceptRequest(ctx, targetID, followerID))
}

func (f *fixture) profile(t *testing.T, id string) *model.Profile {
	t.Helper()
	p, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}
