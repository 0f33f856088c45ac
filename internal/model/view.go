package model

import "time"

// Visibility classifies a Profile field for the two projections of a profile.
type Visibility int

const (
	// VisibilityOwner fields never appear in a profile view. The owner reads
	// them through dedicated endpoints (e.g. pending requests).
	VisibilityOwner Visibility = iota
	// VisibilityFull fields appear only in the full view (self or follower).
	VisibilityFull
	// VisibilityPublic fields appear in both views.
	VisibilityPublic
)

// ProfileFieldVisibility classifies every field of Profile.
//
// A field missing from this table is treated as VisibilityOwner (omitted from
// every view). A test walks Profile with reflection and fails when a field is
// not listed here, so new fields must be classified explicitly.
var ProfileFieldVisibility = map[string]Visibility{
	"ID":              VisibilityFull,
	"Username":        VisibilityPublic,
	"DisplayName":     VisibilityPublic,
	"Bio":             VisibilityPublic,
	"AvatarRef":       VisibilityPublic,
	"ContactPhone":    VisibilityFull,
	"CreatedAt":       VisibilityFull,
	"Followers":       VisibilityFull,
	"Following":       VisibilityFull,
	"PendingRequests": VisibilityOwner,
	"Posts":           VisibilityFull,
}

// FieldVisibility returns the classification of a Profile field, failing
// closed for unknown names.
func FieldVisibility(field string) Visibility {
	v, ok := ProfileFieldVisibility[field]
	if !ok {
		return VisibilityOwner
	}
	return v
}

// ProfileView is what a viewer gets back for a profile: either a
// *FullProfileView or a *RestrictedProfileView.
type ProfileView interface {
	IsFull() bool
	profileView()
}

// Relationship flags shared by both views.
type ViewerFlags struct {
	IsFollowing bool `json:"isFollowing"`
	IsRequested bool `json:"isRequested"`
}

// FullProfileView is shown to the profile owner and to its followers.
type FullProfileView struct {
	View string `json:"view"`

	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	Bio          string    `json:"bio"`
	AvatarRef    string    `json:"avatarRef"`
	ContactPhone string    `json:"contactPhone"`
	CreatedAt    time.Time `json:"createdAt"`
	Posts        []Post    `json:"posts"`

	Followers []ProfileSummary `json:"followers"`
	Following []ProfileSummary `json:"following"`

	FollowerCount  int `json:"followerCount"`
	FollowingCount int `json:"followingCount"`
	PostCount      int `json:"postCount"`

	ViewerFlags
	IsSelf bool `json:"isSelf"`
}

func (*FullProfileView) IsFull() bool { return true }
func (*FullProfileView) profileView() {}

// RestrictedProfileView is shown to everyone else. It carries counts only,
// never the contents of the relationship sets.
type RestrictedProfileView struct {
	View string `json:"view"`

	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	AvatarRef   string `json:"avatarRef"`

	FollowerCount  int `json:"followerCount"`
	FollowingCount int `json:"followingCount"`
	PostCount      int `json:"postCount"`

	ViewerFlags
}

func (*RestrictedProfileView) IsFull() bool { return false }
func (*RestrictedProfileView) profileView() {}

const (
	ViewFull       = "full"
	ViewRestricted = "restricted"
)
