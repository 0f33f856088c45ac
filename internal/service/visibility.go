package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/botnet/internal/model"
)

type relationFlags struct {
	isSelf      bool
	isFollowing bool // viewer ∈ target.Followers
	isRequested bool // viewer ∈ target.PendingRequests
}

// GetProfileView returns what viewerID may see of targetUsername.
//
//	viewer is the target, or follows it  → *model.FullProfileView
//	anyone else                          → *model.RestrictedProfileView
//
// Both views are built field by field from model.Profile; neither copies the
// struct wholesale, so a field added to Profile stays invisible until someone
// classifies it in model.ProfileFieldVisibility and adds it to a view.
func (s *ProfileService) GetProfileView(ctx context.Context, viewerID, targetUsername string) (view model.ProfileView, err error) {
	defer observe("get_profile_view", time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	target, err := s.profiles.GetByUsername(ctx, normalizeUsername(targetUsername))
	if err != nil {
		return nil, fmt.Errorf("get profile view: %w", err)
	}

	flags := relationFlags{
		isSelf:      target.ID == viewerID,
		isFollowing: target.HasFollower(viewerID),
		isRequested: target.HasPendingRequest(viewerID),
	}

	if flags.isSelf || flags.isFollowing {
		return s.fullView(ctx, target, flags)
	}
	return restrictedView(target, flags), nil
}

// fullView expands both relationship sets into summaries. The two lookups are
// independent, so they run concurrently.
func (s *ProfileService) fullView(ctx context.Context, p *model.Profile, flags relationFlags) (*model.FullProfileView, error) {
	var followers, following []model.ProfileSummary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		followers, err = s.profiles.Summaries(gctx, p.Followers)
		return err
	})
	g.Go(func() error {
		var err error
		following, err = s.profiles.Summaries(gctx, p.Following)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("expanding relationship sets of %s: %w", p.ID, err)
	}

	posts := p.Posts
	if posts == nil {
		posts = []model.Post{}
	}

	return &model.FullProfileView{
		View:           model.ViewFull,
		ID:             p.ID,
		Username:       p.Username,
		DisplayName:    p.DisplayName,
		Bio:            p.Bio,
		AvatarRef:      p.AvatarRef,
		ContactPhone:   p.ContactPhone,
		CreatedAt:      p.CreatedAt,
		Posts:          posts,
		Followers:      followers,
		Following:      following,
		FollowerCount:  len(p.Followers),
		FollowingCount: len(p.Following),
		PostCount:      len(p.Posts),
		ViewerFlags: model.ViewerFlags{
			IsFollowing: flags.isFollowing,
			IsRequested: flags.isRequested,
		},
		IsSelf: flags.isSelf,
	}, nil
}

// restrictedView copies the VisibilityPublic fields and the set sizes. It
// never touches set contents.
func restrictedView(p *model.Profile, flags relationFlags) *model.RestrictedProfileView {
	return &model.RestrictedProfileView{
		View:           model.ViewRestricted,
		Username:       p.Username,
		DisplayName:    p.DisplayName,
		Bio:            p.Bio,
		AvatarRef:      p.AvatarRef,
		FollowerCount:  len(p.Followers),
		FollowingCount: len(p.Following),
		PostCount:      len(p.Posts),
		ViewerFlags: model.ViewerFlags{
			IsFollowing: flags.isFollowing,
			IsRequested: flags.isRequested,
		},
	}
}
