package service

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/botnet/internal/apperror"
	"github.com/sakif/botnet/internal/model"
)

// The alice/bob walk-through: a stranger sees counts, a follower sees sets.
func TestGetProfileView_RequestThenAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.signup(t, "alice")
	bob := f.signup(t, "bob")

	phone := "+1 555 0100"
	_, err := f.profiles.UpdateProfile(ctx, alice, model.ProfileUpdate{ContactPhone: &phone})
	require.NoError(t, err)

	// Before any request: restricted, no flags.
	view, err := f.profiles.GetProfileView(ctx, bob, "alice")
	require.NoError(t, err)
	restricted, ok := view.(*model.RestrictedProfileView)
	require.True(t, ok, "stranger must get the restricted view, got %T", view)
	assert.Equal(t, model.ViewRestricted, restricted.View)
	assert.False(t, restricted.IsFollowing)
	assert.False(t, restricted.IsRequested)

	// Pending: still restricted, but flagged.
	_, err = f.graph.RequestFollow(ctx, bob, "alice")
	require.NoError(t, err)
	view, err = f.profiles.GetProfileView(ctx, bob, "alice")
	require.NoError(t, err)
	require.False(t, view.IsFull())
	assert.True(t, view.(*model.RestrictedProfileView).IsRequested)

	// Accepted: full view with both sets expanded.
	require.NoError(t, f.graph.AcceptRequest(ctx, alice, bob))
	view, err = f.profiles.GetProfileView(ctx, bob, "alice")
	require.NoError(t, err)
	full, ok := view.(*model.FullProfileView)
	require.True(t, ok, "follower must get the full view, got %T", view)

	assert.Equal(t, model.ViewFull, full.View)
	assert.Equal(t, alice, full.ID)
	assert.Equal(t, phone, full.ContactPhone)
	assert.True(t, full.IsFollowing)
	assert.False(t, full.IsRequested)
	assert.False(t, full.IsSelf)
	require.Len(t, full.Followers, 1)
	assert.Equal(t, "bob", full.Followers[0].Username)
	assert.Empty(t, full.Following)
	assert.Equal(t, 1, full.FollowerCount)

	// The edge is one way: alice does not follow bob, so she sees him restricted.
	view, err = f.profiles.GetProfileView(ctx, alice, "bob")
	require.NoError(t, err)
	restricted, ok = view.(*model.RestrictedProfileView)
	require.True(t, ok)
	assert.Equal(t, 1, restricted.FollowingCount)
}

func TestGetProfileView_Self(t *testing.T) {
	f := newFixture(t)
	alice := f.signup(t, "alice")

	view, err := f.profiles.GetProfileView(context.Background(), alice, "Alice")
	require.NoError(t, err)
	full, ok := view.(*model.FullProfileView)
	require.True(t, ok)
	assert.True(t, full.IsSelf)
	assert.NotNil(t, full.Posts)
	assert.NotNil(t, full.Followers)
	assert.NotNil(t, full.Following)
}

func TestGetProfileView_NotFound(t *testing.T) {
	f := newFixture(t)
	alice := f.signup(t, "alice")

	_, err := f.profiles.GetProfileView(context.Background(), alice, "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// Restricted JSON must never carry set contents or full-only fields, however
// the view was populated.
func TestRestrictedViewJSONKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.signup(t, "alice")
	bob := f.signup(t, "bob")
	carol := f.signup(t, "carol")
	f.befriend(t, bob, alice, "alice")

	view, err := f.profiles.GetProfileView(ctx, carol, "alice")
	require.NoError(t, err)

	raw, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	keys := make([]string, 0, len(decoded))
	for k := range decoded {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assert.Equal(t, []string{
		"avatarRef", "bio", "displayName", "followerCount", "followingCount",
		"isFollowing", "isRequested", "postCount", "username", "view",
	}, keys)
	assert.NotContains(t, string(raw), bob, "follower id leaked into restricted view")
}

// Every Profile field must be classified, and each view must hold exactly the
// fields its classification allows.
func TestProfileFieldClassification(t *testing.T) {
	profileType := reflect.TypeOf(model.Profile{})

	fields := map[string]bool{}
	for i := 0; i < profileType.NumField(); i++ {
		name := profileType.Field(i).Name
		fields[name] = true
		_, ok := model.ProfileFieldVisibility[name]
		assert.True(t, ok, "Profile.%s is not classified in model.ProfileFieldVisibility", name)
	}
	for name := range model.ProfileFieldVisibility {
		assert.True(t, fields[name], "model.ProfileFieldVisibility lists %s, which Profile does not have", name)
	}

	viewFields := func(v any) map[string]bool {
		out := map[string]bool{}
		typ := reflect.TypeOf(v)
		for i := 0; i < typ.NumField(); i++ {
			out[typ.Field(i).Name] = true
		}
		return out
	}
	full := viewFields(model.FullProfileView{})
	restricted := viewFields(model.RestrictedProfileView{})

	for name := range fields {
		switch model.FieldVisibility(name) {
		case model.VisibilityPublic:
			assert.True(t, restricted[name], "public field %s missing from RestrictedProfileView", name)
			assert.True(t, full[name], "public field %s missing from FullProfileView", name)
		case model.VisibilityFull:
			assert.False(t, restricted[name], "full-only field %s present in RestrictedProfileView", name)
			assert.True(t, full[name], "full-only field %s missing from FullProfileView", name)
		case model.VisibilityOwner:
			assert.False(t, restricted[name], "owner-only field %s present in RestrictedProfileView", name)
			assert.False(t, full[name], "owner-only field %s present in FullProfileView", name)
		}
	}

	assert.Equal(t, model.VisibilityOwner, model.FieldVisibility("SomethingNew"), "unknown fields fail closed")
}
