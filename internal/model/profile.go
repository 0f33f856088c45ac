package model

import "time"

// Profile is a user's durable account/relationship record.
//
// Followers, Following and PendingRequests are sets of profile IDs kept in
// storage (insertion) order. Together they record the follow graph:
//
//	B follows A  ⟺  B.ID ∈ A.Followers  ⟺  A.ID ∈ B.Following
//
// The two halves of one edge live in two different profiles. Only the
// relationship service mutates them, always both halves in one store
// transaction.
//
// Profile is never serialised directly. Callers see it through the projections
// in view.go, which decide field by field what a viewer may see.
type Profile struct {
	ID           string
	Username     string // lowercased, unique, immutable
	DisplayName  string
	Bio          string
	AvatarRef    string
	ContactPhone string
	CreatedAt    time.Time

	Followers       []string
	Following       []string
	PendingRequests []string

	Posts []Post
}

// Post is one entry of a profile's append-only post sequence.
type Post struct {
	ID        string    `json:"id"`
	MediaRef  string    `json:"mediaRef"`
	Caption   string    `json:"caption"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProfileSummary is the public card of a profile used in lists: search
// results, pending requests, expanded follower/following sets.
type ProfileSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
}

// Summary returns the public card of p.
func (p *Profile) Summary() ProfileSummary {
	return ProfileSummary{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarRef:   p.AvatarRef,
	}
}

// HasFollower reports whether id is in p.Followers.
func (p *Profile) HasFollower(id string) bool { return contains(p.Followers, id) }

// HasPendingRequest reports whether id is in p.PendingRequests.
func (p *Profile) HasPendingRequest(id string) bool { return contains(p.PendingRequests, id) }

// IsFollowing reports whether p follows id.
func (p *Profile) IsFollowing(id string) bool { return contains(p.Following, id) }

func contains(set []string, id string) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

// ProfileUpdate is the allow-list of profile fields a user may change.
//
// A nil pointer means "leave unchanged". Username, CreatedAt and the
// relationship sets are absent: they cannot be changed through
// this path, and the JSON decoder rejects requests that try.
type ProfileUpdate struct {
	DisplayName  *string `json:"displayName,omitempty"`
	Bio          *string `json:"bio,omitempty"`
	AvatarRef    *string `json:"avatarRef,omitempty"`
	ContactPhone *string `json:"contactPhone,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.Bio == nil && u.AvatarRef == nil && u.ContactPhone == nil
}

// Apply copies the set fields of u onto p.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.Bio != nil {
		p.Bio = *u.Bio
	}
	if u.AvatarRef != nil {
		p.AvatarRef = *u.AvatarRef
	}
	if u.ContactPhone != nil {
		p.ContactPhone = *u.ContactPhone
	}
}
