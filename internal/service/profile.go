package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/model"
	"github.com/sakif/botnet/internal/repository"
)

// Profile field limits, counted in characters.
const (
	MaxDisplayNameLength  = 50
	MaxBioLength          = 160
	MaxAvatarRefLength    = 2048
	MaxContactPhoneLength = 32
	MaxMediaRefLength     = 2048
	MaxCaptionLength      = 2200
)

// ProfileService serves profile reads (views, search) and the typed update
// path for a profile's own scalar fields and posts.
type ProfileService struct {
	profiles repository.ProfileRepository
	timeout  time.Duration
	logger   *slog.Logger
}

func NewProfileService(profiles repository.ProfileRepository, timeout time.Duration, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		timeout:  timeout,
		logger:   logger,
	}
}

// Me returns the caller's own profile, which is always the full view.
func (s *ProfileService) Me(ctx context.Context, profileID string) (view *model.FullProfileView, err error) {
	defer observe("me", time.Now(), &err)
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	return s.fullView(ctx, p, relationFlags{isSelf: true})
}

// UpdateProfile applies the allow-listed fields of upd to the caller's own
// profile and returns the updated full view.
//
// There is no way to reach username, createdAt or the relationship sets from
// here: model.ProfileUpdate simply has no such fields.
func (s *ProfileService) UpdateProfile(ctx context.Context, profileID string, upd model.ProfileUpdate) (view *model.FullProfileView, err error) {
	defer observe("update_profile", time.Now(), &err)

	if upd.IsEmpty() {
		return nil, apperror.ValidationFailed("", "no fields to update")
	}
	if upd.DisplayName != nil {
		trimmed := strings.TrimSpace(*upd.DisplayName)
		upd.DisplayName = &trimmed
	}

	checks := []struct {
		field string
		value *string
		max   int
	}{
		{"displayName", upd.DisplayName, MaxDisplayNameLength},
		{"bio", upd.Bio, MaxBioLength},
		{"avatarRef", upd.AvatarRef, MaxAvatarRefLength},
		{"contactPhone", upd.ContactPhone, MaxContactPhoneLength},
	}
	for _, c := range checks {
		if c.value != nil && utf8.RuneCountInString(*c.value) > c.max {
			return nil, apperror.ValidationFailed(c.field,
				fmt.Sprintf("%s must be %d characters or fewer", c.field, c.max))
		}
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.profiles.Update(ctx, profileID, upd)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.logger.Info("profile updated", slog.String("profileID", profileID))
	return s.fullView(ctx, p, relationFlags{isSelf: true})
}

// AddPost appends a post to the caller's profile. The media itself is stored
// elsewhere; mediaRef is an opaque reference to it.
func (s *ProfileService) AddPost(ctx context.Context, profileID, mediaRef, caption string) (post *model.Post, err error) {
	defer observe("add_post", time.Now(), &err)

	mediaRef = strings.TrimSpace(mediaRef)
	if mediaRef == "" {
		return nil, apperror.ValidationFailed("mediaRef", "mediaRef is required")
	}
	if utf8.RuneCountInString(mediaRef) > MaxMediaRefLength {
		return nil, apperror.ValidationFailed("mediaRef",
			fmt.Sprintf("mediaRef must be %d characters or fewer", MaxMediaRefLength))
	}
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return nil, apperror.ValidationFailed("caption",
			fmt.Sprintf("caption must be %d characters or fewer", MaxCaptionLength))
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	post = &model.Post{MediaRef: mediaRef, Caption: caption}
	if err := s.profiles.AddPost(ctx, profileID, post); err != nil {
		return nil, fmt.Errorf("add post: %w", err)
	}

	s.logger.Info("post added", slog.String("profileID", profileID), slog.String("postID", post.ID))
	return post, nil
}
