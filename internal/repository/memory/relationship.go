package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/model"
)

// addIfAbsent appends id to set unless present. Reports whether it appended.
func addIfAbsent(set *[]string, id string) bool {
	if slices.Contains(*set, id) {
		return false
	}
	*set = append(*set, id)
	return true
}

// removeIfPresent deletes id from set, keeping the order of the rest.
func removeIfPresent(set *[]string, id string) bool {
	i := slices.Index(*set, id)
	if i < 0 {
		return false
	}
	*set = slices.Delete(*set, i, i+1)
	return true
}

func (s *Store) RequestFollow(ctx context.Context, requesterID, targetID string) (model.RequestOutcome, error) {
	recs, release, err := s.lock(ctx, "request follow", requesterID, targetID)
	if err != nil {
		return "", err
	}
	defer release()

	target := &recs[1].p
	if target.HasFollower(requesterID) {
		return model.OutcomeAlreadyFollowing, nil
	}
	if !addIfAbsent(&target.PendingRequests, requesterID) {
		return model.OutcomeAlreadyRequested, nil
	}
	s.appendEvent(model.EventFollowRequested, requesterID, targetID)
	return model.OutcomeRequested, nil
}

func (s *Store) WithdrawRequest(ctx context.Context, requesterID, targetID string) (bool, error) {
	return s.removePending(ctx, "withdraw request", model.EventFollowWithdrawn, targetID, requesterID)
}

func (s *Store) DeclineRequest(ctx context.Context, ownerID, requesterID string) (bool, error) {
	return s.removePending(ctx, "decline request", model.EventFollowDeclined, ownerID, requesterID)
}

func (s *Store) removePending(ctx context.Context, op string, typ model.EdgeEventType, ownerID, requesterID string) (bool, error) {
	recs, release, err := s.lock(ctx, op, ownerID)
	if err != nil {
		return false, err
	}
	defer release()

	if !removeIfPresent(&recs[0].p.PendingRequests, requesterID) {
		return false, nil
	}
	s.appendEvent(typ, requesterID, ownerID)
	return true, nil
}

// AcceptRequest checks everything before writing anything, so a failed check
// leaves both records untouched.
func (s *Store) AcceptRequest(ctx context.Context, accepterID, requesterID string) error {
	recs, release, err := s.lock(ctx, "accept request", accepterID, requesterID)
	if err != nil {
		return err
	}
	defer release()

	accepter, requester := &recs[0].p, &recs[1].p

	if !accepter.HasPendingRequest(requesterID) {
		return apperror.RequestNotFound(requesterID)
	}
	if accepter.HasFollower(requesterID) {
		return apperror.Invariant(fmt.Sprintf("%s already in followers of %s", requesterID, accepterID))
	}
	if requester.IsFollowing(accepterID) {
		return apperror.Invariant(fmt.Sprintf("%s already in following of %s", accepterID, requesterID))
	}

	removeIfPresent(&accepter.PendingRequests, requesterID)
	accepter.Followers = append(accepter.Followers, requesterID)
	requester.Following = append(requester.Following, accepterID)

	s.appendEvent(model.EventFollowAccepted, requesterID, accepterID)
	return nil
}

func (s *Store) Unfollow(ctx context.Context, followerID, targetID string) (bool, error) {
	recs, release, err := s.lock(ctx, "unfollow", followerID, targetID)
	if err != nil {
		return false, err
	}
	defer release()

	follower, target := &recs[0].p, &recs[1].p

	followerHalf := target.HasFollower(followerID)
	followingHalf := follower.IsFollowing(targetID)

	switch {
	case !followerHalf && !followingHalf:
		return false, nil
	case followerHalf != followingHalf:
		return false, apperror.Invariant(fmt.Sprintf(
			"half edge %s -> %s (followers row: %t, following row: %t)",
			followerID, targetID, followerHalf, followingHalf,
		))
	}

	removeIfPresent(&target.Followers, followerID)
	removeIfPresent(&follower.Following, targetID)
	s.appendEvent(model.EventFollowRemoved, followerID, targetID)
	return true, nil
}

// Audit takes every record lock (in id order) so it compares one consistent
// snapshot of the whole graph.
func (s *Store) Audit(ctx context.Context) ([]model.Violation, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	order := slices.Clone(s.order)
	s.mu.RUnlock()
	sort.Strings(ids)

	recs, release, err := s.lock(ctx, "audit graph", ids...)
	if err != nil {
		return nil, err
	}
	defer release()

	byID := make(map[string]*model.Profile, len(ids))
	for i, id := range ids {
		byID[id] = &recs[i].p
	}

	violations := []model.Violation{}
	for _, id := range order {
		p := byID[id]
		for _, f := range p.Followers {
			if f == id {
				violations = append(violations, model.Violation{Kind: model.ViolationSelfEdge, ProfileID: id, OtherID: f, Detail: "profile related to itself"})
				continue
			}
			if other, ok := byID[f]; !ok || !other.IsFollowing(id) {
				violations = append(violations, model.Violation{Kind: model.ViolationMissingFollowing, ProfileID: id, OtherID: f, Detail: "follower row without matching following row"})
			}
			if p.HasPendingRequest(f) {
				violations = append(violations, model.Violation{Kind: model.ViolationPendingFollower, ProfileID: id, OtherID: f, Detail: "id is both follower and pending requester"})
			}
		}
		for _, g := range p.Following {
			if g == id {
				violations = append(violations, model.Violation{Kind: model.ViolationSelfEdge, ProfileID: id, OtherID: g, Detail: "profile related to itself"})
				continue
			}
			if other, ok := byID[g]; !ok || !other.HasFollower(id) {
				violations = append(violations, model.Violation{Kind: model.ViolationMissingFollower, ProfileID: g, OtherID: id, Detail: "following row without matching follower row"})
			}
		}
		if p.HasPendingRequest(id) {
			violations = append(violations, model.Violation{Kind: model.ViolationSelfEdge, ProfileID: id, OtherID: id, Detail: "profile related to itself"})
		}
	}
	return violations, nil
}
