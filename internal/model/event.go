package model

import "time"

// EdgeEventType names a state change of the follow graph.
type EdgeEventType string

const (
	EventFollowRequested EdgeEventType = "follow.requested"
	EventFollowWithdrawn EdgeEventType = "follow.withdrawn"
	EventFollowAccepted  EdgeEventType = "follow.accepted"
	EventFollowDeclined  EdgeEventType = "follow.declined"
	EventFollowRemoved   EdgeEventType = "follow.removed"
)

// EdgeEvent is written to the outbox in the same transaction as the graph
// mutation it describes. ActorID is the follower side of the edge, TargetID the
// followed side.
type EdgeEvent struct {
	ID         string        `json:"id"`
	Type       EdgeEventType `json:"type"`
	ActorID    string        `json:"actorId"`
	TargetID   string        `json:"targetId"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// OutboxEntry is an unpublished row of the outbox.
type OutboxEntry struct {
	ID      string
	Topic   string
	Key     string
	Payload []byte
}

// RequestOutcome tells the caller what RequestFollow actually did.
type RequestOutcome string

const (
	OutcomeRequested        RequestOutcome = "requested"
	OutcomeAlreadyRequested RequestOutcome = "already_requested"
	OutcomeAlreadyFollowing RequestOutcome = "already_following"
)

// Violation is one broken invariant found by the graph audit.
type Violation struct {
	Kind      string `json:"kind"`
	ProfileID string `json:"profileId"`
	OtherID   string `json:"otherId"`
	Detail    string `json:"detail"`
}

const (
	ViolationMissingFollowing = "missing_following" // X ∈ A.followers, A ∉ X.following
	ViolationMissingFollower  = "missing_follower"  // A ∈ X.following, X ∉ A.followers
	ViolationPendingFollower  = "pending_and_follower"
	ViolationSelfEdge         = "self_edge"
)
