package models

// Event types fanned out to board subscribers.
const (
	EventResourceUpdated     = "resource.updated"
	EventResourceDeleted     = "resource.deleted"
	EventLockAcquired        = "lock.acquired"
	EventLockReleased        = "lock.released"
	EventContributionUpdated = "contribution.updated"
)

// Event is a broadcastable change record. Seq is assigned by the
// board event log and is strictly increasing per board.
type Event struct {
	Seq        uint64 `json:"seq"`
	TS         int64  `json:"ts"`
	Type       string `json:"type"`
	BoardID    string `json:"board_id"`
	ResourceID string `json:"resource_id,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
	// Payload carries the post-change value (resource or contribution),
	// already encoded so fanout does not re-marshal per subscriber.
	Payload []byte `json:"payload,omitempty"`
}
