package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/repository"
)

// GraphService is the relationship engine: the only code that changes who
// follows whom.
//
// Each mutation resolves and checks its inputs here, then hands the store ONE
// atomic primitive (repository.RelationshipRepository). The store re-checks
// the preconditions that can race (pending present? half already there?)
// inside its transaction, so nothing decided here can go stale.
type GraphService struct {
	profiles repository.ProfileRepository
	graph    repository.RelationshipRepository
	timeout  time.Duration
	logger   *slog.Logger
}

func NewGraphService(
	profiles repository.ProfileRepository,
	graph repository.RelationshipRepository,
	timeout time.Duration,
	logger *slog.Logger,
) *GraphService {
	return &GraphService{
		profiles: profiles,
		graph:    graph,
		timeout:  timeout,
		logger:   logger,
	}
}

// RequestFollow asks to follow targetUsername.
//
// Already following or already pending is a successful no-op; the outcome
// tells the caller which. Only the target's pending set changes.
func (s *GraphService) RequestFollow(ctx context.Context, requesterID, targetUsername string) (outcome model.RequestOutcome, err error) {
	defer observe("request_follow", time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	target, err := s.profiles.GetByUsername(ctx, normalizeUsername(targetUsername))
	if err != nil {
		return "", fmt.Errorf("request follow: %w", err)
	}
	if target.ID == requesterID {
		return "", apperror.SelfEdge()
	}

	outcome, err = s.graph.RequestFollow(ctx, requesterID, target.ID)
	if err != nil {
		return "", fmt.Errorf("request follow: %w", err)
	}

	if outcome == model.OutcomeRequested {
		s.logger.Info("follow requested",
			slog.String("requesterID", requesterID),
			slog.String("targetID", target.ID),
		)
	} else {
		s.logger.Debug("follow request was a no-op",
			slog.String("requesterID", requesterID),
			slog.String("targetID", target.ID),
			slog.String("outcome", string(outcome)),
		)
	}
	return outcome, nil
}

// WithdrawRequest cancels the caller's own pending request. Withdrawing a
// request that does not exist is a no-op.
func (s *GraphService) WithdrawRequest(ctx context.Context, requesterID, targetUsername string) (err error) {
	defer observe("withdraw_request", time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	target, err := s.profiles.GetByUsername(ctx, normalizeUsername(targetUsername))
	if err != nil {
		return fmt.Errorf("withdraw request: %w", err)
	}

	removed, err := s.graph.WithdrawRequest(ctx, requesterID, target.ID)
	if err != nil {
		return fmt.Errorf("withdraw request: %w", err)
	}
	if removed {
		s.logger.Info("follow request withdrawn",
			slog.String("requesterID", requesterID),
			slog.String("targetID", target.ID),
		)
	}
	return nil
}

// AcceptRequest turns requesterID's pending request on the caller into an edge.
//
// Accepting a request that was never made, was withdrawn, or was already
// accepted by a concurrent call is ErrRequestNotFound.
func (s *GraphService) AcceptRequest(ctx context.Context, accepterID, requesterID string) (err error) {
	defer observe("accept_request", time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.profiles.GetByID(ctx, accepterID); err != nil {
		return fmt.Errorf("accept request: %w", err)
	}
	if _, err := s.profiles.GetByID(ctx, requesterID); err != nil {
		return fmt.Errorf("accept request: %w", err)
	}

	if err := s.graph.AcceptRequest(ctx, accepterID, requesterID); err != nil {
		if errors.Is(err, apperror.ErrInvariant) {
			reportInvariant(s.logger, "accept_request", err,
				slog.String("accepterID", accepterID),
				slog.String("requesterID", requesterID),
			)
		}
		return fmt.Errorf("accept request: %w", err)
	}

	s.logger.Info("follow request accepted",
		slog.String("accepterID", accepterID),
		slog.String("requesterID", requesterID),
	)
	return nil
}

// DeclineRequest drops requesterID's pending request on the caller without
// accepting it. Declining a request that does not exist is a no-op.
func (s *GraphService) DeclineRequest(ctx context.Context, ownerID, requesterID string) (err error) {
	defer observe("decline_request", time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.profiles.GetByID(ctx, ownerID); err != nil {
		return fmt.Errorf("decline request: %w", err)
	}

	removed, err := s.graph.DeclineRequest(ctx, ownerID, requesterID)
	if err != nil {
		return fmt.Errorf("decline request: %w", err)
	}
	if removed {
		s.logger.Info("follow request declined",
			slog.String("ownerID", ownerID),
			slog.String("requesterID", requesterID),
		)
	}
	return nil
}

// Unfollow removes the edge caller -> targetUsername. Unfollowing someone
// the caller does not follow is a no-op.
//
// If the store finds only one half of the edge it refuses to guess which half
// is right: nothing changes and the error is ErrInvariant.
func (s *GraphService) Unfollow(ctx context.Context, requesterID, targetUsername string) (err error) {
	defer observe("unfollow", time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	target, err := s.profiles.GetByUsername(ctx, normalizeUsername(targetUsername))
	if err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	if target.ID == requesterID {
		return apperror.SelfEdge()
	}
	if _, err := s.profiles.GetByID(ctx, requesterID); err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}

	removed, err := s.graph.Unfollow(ctx, requesterID, target.ID)
	if err != nil {
		if errors.Is(err, apperror.ErrInvariant) {
			reportInvariant(s.logger, "unfollow", err,
				slog.String("followerID", requesterID),
				slog.String("targetID", target.ID),
			)
		}
		return fmt.Errorf("unfollow: %w", err)
	}

	if removed {
		s.logger.Info("unfollowed",
			slog.String("followerID", requesterID),
			slog.String("targetID", target.ID),
		)
	}
	return nil
}

// ListPendingRequests returns the cards of everyone waiting for the owner's
// approval, oldest request first.
func (s *GraphService) ListPendingRequests(ctx context.Context, ownerID string) (summaries []model.ProfileSummary, err error) {
	defer observe("list_pending_requests", time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	owner, err := s.profiles.GetByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}

	summaries, err = s.profiles.Summaries(ctx, owner.PendingRequests)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return summaries, nil
}
