// Package repotest is the conformance suite every repository.Store must pass.
//
// Each backend's own _test.go calls Run with a Harness:
//
//	func TestConformance(t *testing.T) {
//		repotest.Run(t, repotest.Harness{New: ..., BreakEdge: ...})
//	}
package repotest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/repository"
)

// Harness adapts one backend to the suite.
type Harness struct {
	// New returns an empty store. Cleanup is the harness's job.
	New func(t *testing.T) repository.Store

	// BreakEdge writes ONLY the followers half of follower -> target,
	// bypassing the store's own invariants.
	BreakEdge func(t *testing.T, s repository.Store, followerID, targetID string)
}

// Run executes every conformance test as a subtest of t.
func Run(t *testing.T, h Harness) {
	tests := []struct {
		name string
		fn   func(t *testing.T, h Harness)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateConflicts", testCreateConflicts},
		{"GetMissing", testGetMissing},
		{"RequestFollowIsIdempotent", testRequestFollowIdempotent},
		{"RequestFollowWhenAlreadyFollowing", testRequestFollowAlreadyFollowing},
		{"AcceptCreatesBothHalves", testAcceptCreatesBothHalves},
		{"AcceptWithoutRequest", testAcceptWithoutRequest},
		{"AcceptAfterWithdraw", testAcceptAfterWithdraw},
		{"AcceptWithHalfEdgeRollsBack", testAcceptWithHalfEdge},
		{"WithdrawAndDecline", testWithdrawAndDecline},
		{"UnfollowRemovesBothHalves", testUnfollow},
		{"UnfollowHalfEdgeIsInvariant", testUnfollowHalfEdge},
		{"SearchAndSummaries", testSearchAndSummaries},
		{"UpdateAndAddPost", testUpdateAndAddPost},
		{"OutboxFetchAndMark", testOutbox},
		{"AuditFindsHalfEdge", testAudit},
		{"ConcurrentAccept", testConcurrentAccept},
		{"ConcurrentRequestFollow", testConcurrentRequestFollow},
		{"ConcurrentAcceptAndWithdraw", testConcurrentAcceptAndWithdraw},
		{"CancelledContextIsTransient", testCancelledContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.fn(t, h) })
	}
}

// =========================================================================
// HELPERS
// =========================================================================

// CreateProfile registers username with a matching email and fails the test
// on error. Exported so backend tests can build fixtures the same way.
func CreateProfile(t *testing.T, s repository.Store, username string) *model.Profile {
	t.Helper()
	p := &model.Profile{Username: username, DisplayName: username}
	a := &model.Account{Email: username + "@example.com", PasswordHash: "x"}
	require.NoError(t, s.Create(context.Background(), p, a))
	return p
}

func mustGet(t *testing.T, s repository.Store, id string) *model.Profile {
	t.Helper()
	p, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

// befriend runs the full request → accept flow.
func befriend(t *testing.T, s repository.Store, followerID, targetID string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.RequestFollow(ctx, followerID, targetID)
	require.NoError(t, err)
	require.NoError(t, s.AcceptRequest(ctx, targetID, followerID))
}

func eventTypes(t *testing.T, s repository.Store) []model.EdgeEventType {
	t.Helper()
	entries, err := s.FetchUnpublished(context.Background(), 1000)
	require.NoError(t, err)

	types := []model.EdgeEventType{}
	for _, e := range entries {
		var ev model.EdgeEvent
		require.NoError(t, json.Unmarshal(e.Payload, &ev))
		assert.Equal(t, string(ev.Type), e.Topic)
		assert.Equal(t, ev.TargetID, e.Key)
		types = append(types, ev.Type)
	}
	return types
}

// =========================================================================
// PROFILES & ACCOUNTS
// =========================================================================

func testCreateAndGet(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	p := &model.Profile{Username: "alice", DisplayName: "Alice Liddell", Bio: "down the hole"}
	a := &model.Account{Email: "alice@example.com", PasswordHash: "hash", GitHubID: 42}
	require.NoError(t, s.Create(ctx, p, a))

	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
	assert.Equal(t, p.ID, a.ProfileID)

	byID, err := s.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.Equal(t, "Alice Liddell", byID.DisplayName)
	assert.Empty(t, byID.Followers)
	assert.Empty(t, byID.PendingRequests)

	byName, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)

	acct, err := s.GetByProfileID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", acct.Email)
	assert.Equal(t, "hash", acct.PasswordHash)

	gh, err := s.GetByGitHubID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, p.ID, gh.ProfileID)
}

func testCreateConflicts(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	CreateProfile(t, s, "alice")

	err := s.Create(ctx, &model.Profile{Username: "alice"}, &model.Account{Email: "other@example.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	err = s.Create(ctx, &model.Profile{Username: "alice2"}, &model.Account{Email: "alice@example.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	// Two accounts without email are fine: "" is not a value.
	require.NoError(t, s.Create(ctx, &model.Profile{Username: "gh1"}, &model.Account{GitHubID: 1}))
	require.NoError(t, s.Create(ctx, &model.Profile{Username: "gh2"}, &model.Account{GitHubID: 2}))

	// The failed creates left nothing behind.
	_, err = s.GetByUsername(ctx, "alice2")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func testGetMissing(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	_, err := s.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = s.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = s.GetByProfileID(ctx, "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = s.GetByGitHubID(ctx, 7)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// RELATIONSHIPS
// =========================================================================

func testRequestFollowIdempotent(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")

	out, err := s.RequestFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRequested, out)

	out, err = s.RequestFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAlreadyRequested, out)

	assert.Equal(t, []string{alice.ID}, mustGet(t, s, bob.ID).PendingRequests)
	// The requester's own sets are untouched.
	a := mustGet(t, s, alice.ID)
	assert.Empty(t, a.Following)
	assert.Empty(t, a.PendingRequests)

	assert.Equal(t, []model.EdgeEventType{model.EventFollowRequested}, eventTypes(t, s))
}

func testRequestFollowAlreadyFollowing(t *testing.T, h Harness) {
	s := h.New(t)
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")
	befriend(t, s, alice.ID, bob.ID)

	out, err := s.RequestFollow(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAlreadyFollowing, out)
	assert.Empty(t, mustGet(t, s, bob.ID).PendingRequests)
}

func testAcceptCreatesBothHalves(t *testing.T, h Harness) {
	s := h.New(t)
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")
	befriend(t, s, alice.ID, bob.ID)

	b := mustGet(t, s, bob.ID)
	a := mustGet(t, s, alice.ID)
	assert.Equal(t, []string{alice.ID}, b.Followers)
	assert.Empty(t, b.PendingRequests)
	assert.Equal(t, []string{bob.ID}, a.Following)
	assert.Empty(t, a.Followers)

	assert.Equal(t,
		[]model.EdgeEventType{model.EventFollowRequested, model.EventFollowAccepted},
		eventTypes(t, s))
}

func testAcceptWithoutRequest(t *testing.T, h Harness) {
	s := h.New(t)
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")

	err := s.AcceptRequest(context.Background(), bob.ID, alice.ID)
	assert.ErrorIs(t, err, apperror.ErrRequestNotFound)
	assert.Empty(t, mustGet(t, s, bob.ID).Followers)
}

func testAcceptAfterWithdraw(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")

	_, err := s.RequestFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	removed, err := s.WithdrawRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	err = s.AcceptRequest(ctx, bob.ID, alice.ID)
	assert.ErrorIs(t, err, apperror.ErrRequestNotFound)
}

func testAcceptWithHalfEdge(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")

	_, err := s.RequestFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	h.BreakEdge(t, s, alice.ID, bob.ID)

	err = s.AcceptRequest(ctx, bob.ID, alice.ID)
	assert.ErrorIs(t, err, apperror.ErrInvariant)

	// Rolled back: the request is still pending and no following half appeared.
	assert.Equal(t, []string{alice.ID}, mustGet(t, s, bob.ID).PendingRequests)
	assert.Empty(t, mustGet(t, s, alice.ID).Following)
}

func testWithdrawAndDecline(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")

	removed, err := s.WithdrawRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, removed, "withdrawing nothing is a no-op")

	_, err = s.RequestFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	removed, err = s.DeclineRequest(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.DeclineRequest(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Empty(t, mustGet(t, s, bob.ID).PendingRequests)
	assert.Equal(t,
		[]model.EdgeEventType{model.EventFollowRequested, model.EventFollowDeclined},
		eventTypes(t, s))
}

func testUnfollow(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")
	befriend(t, s, alice.ID, bob.ID)

	removed, err := s.Unfollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, mustGet(t, s, bob.ID).Followers)
	assert.Empty(t, mustGet(t, s, alice.ID).Following)

	removed, err = s.Unfollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func testUnfollowHalfEdge(t *testing.T, h Harness) {
	s := h.New(t)
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")
	h.BreakEdge(t, s, alice.ID, bob.ID)

	_, err := s.Unfollow(context.Background(), alice.ID, bob.ID)
	assert.ErrorIs(t, err, apperror.ErrInvariant)

	// Never repaired by guessing: the half edge is still there.
	assert.Equal(t, []string{alice.ID}, mustGet(t, s, bob.ID).Followers)
}

// =========================================================================
// DIRECTORY, UPDATES, OUTBOX, AUDIT
// =========================================================================

func testSearchAndSummaries(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	alice := CreateProfile(t, s, "alice")
	CreateProfile(t, s, "bob")
	malik := CreateProfile(t, s, "malik")

	name := "ÁLIce Cooper"
	_, err := s.Update(ctx, alice.ID, model.ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)

	got, err := s.Search(ctx, "ali")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Username)
	assert.Equal(t, "malik", got[1].Username)

	got, err = s.Search(ctx, "álice coo")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, alice.ID, got[0].ID)

	got, err = s.Search(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, got)

	sums, err := s.Summaries(ctx, []string{malik.ID, "ghost", alice.ID})
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, malik.ID, sums[0].ID)
	assert.Equal(t, alice.ID, sums[1].ID)
	assert.Equal(t, name, sums[1].DisplayName)
}

func testUpdateAndAddPost(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	alice := CreateProfile(t, s, "alice")

	bio := "hello"
	p, err := s.Update(ctx, alice.ID, model.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Bio)
	assert.Equal(t, "alice", p.DisplayName, "unset fields are left alone")

	_, err = s.Update(ctx, "ghost", model.ProfileUpdate{Bio: &bio})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	post := &model.Post{MediaRef: "media/1.jpg", Caption: "first"}
	require.NoError(t, s.AddPost(ctx, alice.ID, post))
	assert.NotEmpty(t, post.ID)
	require.NoError(t, s.AddPost(ctx, alice.ID, &model.Post{MediaRef: "media/2.jpg"}))

	posts := mustGet(t, s, alice.ID).Posts
	require.Len(t, posts, 2)
	assert.Equal(t, "media/1.jpg", posts[0].MediaRef)
	assert.Equal(t, "media/2.jpg", posts[1].MediaRef)

	err = s.AddPost(ctx, "ghost", &model.Post{MediaRef: "x"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func testOutbox(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")
	carol := CreateProfile(t, s, "carol")

	_, err := s.RequestFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = s.RequestFollow(ctx, carol.ID, bob.ID)
	require.NoError(t, err)

	first, err := s.FetchUnpublished(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NoError(t, s.MarkPublished(ctx, first[0].ID))

	rest, err := s.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotEqual(t, first[0].ID, rest[0].ID)

	var ev model.EdgeEvent
	require.NoError(t, json.Unmarshal(rest[0].Payload, &ev))
	assert.Equal(t, carol.ID, ev.ActorID)
	assert.Equal(t, bob.ID, ev.TargetID)
}

func testAudit(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")
	carol := CreateProfile(t, s, "carol")
	befriend(t, s, carol.ID, bob.ID)

	violations, err := s.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)

	h.BreakEdge(t, s, alice.ID, bob.ID)

	violations, err = s.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, model.ViolationMissingFollowing, violations[0].Kind)
	assert.Equal(t, bob.ID, violations[0].ProfileID)
	assert.Equal(t, alice.ID, violations[0].OtherID)
}

// =========================================================================
// CONCURRENCY
// =========================================================================

func testConcurrentAccept(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")
	_, err := s.RequestFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.AcceptRequest(ctx, bob.ID, alice.ID)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperror.ErrRequestNotFound)
	}
	assert.Equal(t, 1, ok, "exactly one accept must win")
	assert.Equal(t, []string{alice.ID}, mustGet(t, s, bob.ID).Followers)
	assert.Equal(t, []string{bob.ID}, mustGet(t, s, alice.ID).Following)
}

func testConcurrentRequestFollow(t *testing.T, h Harness) {
	s := h.New(t)
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")

	const n = 8
	outcomes := make([]model.RequestOutcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.RequestFollow(context.Background(), alice.ID, bob.ID)
			assert.NoError(t, err)
			outcomes[i] = out
		}()
	}
	wg.Wait()

	requested := 0
	for _, o := range outcomes {
		if o == model.OutcomeRequested {
			requested++
		}
	}
	assert.Equal(t, 1, requested)
	assert.Equal(t, []string{alice.ID}, mustGet(t, s, bob.ID).PendingRequests)
}

// Accept and Withdraw race on the same request. Whatever the interleaving,
// alice ends up either a follower or nothing, never both pending and follower.
func testConcurrentAcceptAndWithdraw(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")

	for j := 0; j < 10; j++ {
		_, err := s.Unfollow(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		_, err = s.RequestFollow(ctx, alice.ID, bob.ID)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); _ = s.AcceptRequest(ctx, bob.ID, alice.ID) }()
		go func() { defer wg.Done(); _, _ = s.WithdrawRequest(ctx, alice.ID, bob.ID) }()
		go func() { defer wg.Done(); _, _ = s.RequestFollow(ctx, alice.ID, bob.ID) }()
		wg.Wait()

		violations, err := s.Audit(ctx)
		require.NoError(t, err)
		assert.Empty(t, violations)
	}
}

func testCancelledContext(t *testing.T, h Harness) {
	s := h.New(t)
	alice := CreateProfile(t, s, "alice")
	bob := CreateProfile(t, s, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := s.AcceptRequest(ctx, bob.ID, alice.ID)
	assert.ErrorIs(t, err, apperror.ErrTransient)
}
