// Package repository declares the storage interfaces the services depend on.
//
// Two implementations exist: repository/sqlite (the durable store) and
// repository/memory (an in-process arena used by tests and STORE_DRIVER=memory).
// Both pass the shared conformance suite in repository/repotest.
//
// Every error returned from a store is either an *apperror.AppError kind
// (NotFound, Conflict, RequestNotFound, Invariant, Transient) or a wrapped
// driver error that the service treats as internal.
package repository

import (
	"context"

	"github.com/sakif/botnet/internal/model"
)

// ProfileRepository reads profiles and applies scalar updates.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	GetByUsername(ctx context.Context, username string) (*model.Profile, error)

	// Summaries returns the public cards for ids, in the order of ids.
	// Ids that no longer resolve are skipped.
	Summaries(ctx context.Context, ids []string) ([]model.ProfileSummary, error)

	// Search returns profiles whose username or display name contains the
	// already-lowercased needle, in storage order.
	Search(ctx context.Context, needle string) ([]model.ProfileSummary, error)

	Update(ctx context.Context, id string, upd model.ProfileUpdate) (*model.Profile, error)
	AddPost(ctx context.Context, profileID string, post *model.Post) error
}

// RelationshipRepository owns the follow graph. Each method is one atomic
// store operation and, when it changes state, writes the matching edge event
// to the outbox in the same transaction.
type RelationshipRepository interface {
	// RequestFollow adds requesterID to target's pending requests unless it is
	// already a follower or already pending.
	RequestFollow(ctx context.Context, requesterID, targetID string) (model.RequestOutcome, error)

	// WithdrawRequest removes requesterID from target's pending requests.
	// The bool reports whether a request was removed.
	WithdrawRequest(ctx context.Context, requesterID, targetID string) (bool, error)

	// DeclineRequest is WithdrawRequest initiated by the target.
	DeclineRequest(ctx context.Context, ownerID, requesterID string) (bool, error)

	// AcceptRequest moves requesterID from accepter's pending requests to its
	// followers and adds accepterID to requester's following. It fails with
	// RequestNotFound if there is no pending request and with Invariant if
	// either half of the edge already exists.
	AcceptRequest(ctx context.Context, accepterID, requesterID string) error

	// Unfollow removes both halves of the edge followerID -> targetID. The bool
	// reports whether an edge was removed. Exactly one half present is an
	// Invariant error and nothing is changed.
	Unfollow(ctx context.Context, followerID, targetID string) (bool, error)

	// Audit scans the whole graph for broken invariants.
	Audit(ctx context.Context) ([]model.Violation, error)
}

// AccountRepository stores credential records.
type AccountRepository interface {
	// Create inserts the profile and its account atomically. A taken username,
	// email or GitHub id is a Conflict.
	Create(ctx context.Context, profile *model.Profile, account *model.Account) error
	GetByProfileID(ctx context.Context, profileID string) (*model.Account, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.Account, error)
}

// OutboxRepository is the read side of the transactional outbox.
type OutboxRepository interface {
	// FetchUnpublished returns up to limit rows in write order.
	FetchUnpublished(ctx context.Context, limit int) ([]model.OutboxEntry, error)
	MarkPublished(ctx context.Context, id string) error
}

// Store is everything a backend provides.
type Store interface {
	ProfileRepository
	RelationshipRepository
	AccountRepository
	OutboxRepository
	Close() error
}
