package models

// ResourceKind selects the coordination discipline for a resource.
type ResourceKind string

const (
	// KindOwnedLockable resources take the exclusive-lock path: one
	// holder at a time, whole-value replacement on commit.
	KindOwnedLockable ResourceKind = "owned_lockable"
	// KindSharedMergeable resources take the per-actor contribution
	// path: no lock, merged read views.
	KindSharedMergeable ResourceKind = "shared_mergeable"
)

// Resource is a board element under coordination. Owned lockable
// resources carry a Shape payload and the lock fields; shared
// mergeable resources are addressed through their contribution set
// and leave Shape empty.
type Resource struct {
	ID      string       `json:"id"`
	BoardID string       `json:"board_id"`
	Kind    ResourceKind `json:"kind"`
	// OwnerID is the creating actor; only the owner may delete.
	OwnerID string `json:"owner_id"`
	// LockHolderID is empty when the resource is unlocked.
	LockHolderID string `json:"lock_holder_id,omitempty"`
	// LockAcquiredTS records when the current holder took the lock (ns).
	LockAcquiredTS int64 `json:"lock_acquired_ts,omitempty"`
	// Version increments on every committed mutation.
	Version   uint64 `json:"version"`
	CreatedTS int64  `json:"created_ts,omitempty"`
	UpdatedTS int64  `json:"updated_ts,omitempty"`
	// Deleted flag; deletion is a tombstone so subscribers can observe it
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty"`

	Shape *ShapePayload `json:"shape,omitempty"`
}

// ShapePayload is the editable value of an owned lockable resource.
type ShapePayload struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Color string  `json:"color,omitempty"`
	Text  string  `json:"text,omitempty"`
}

// Locked reports whether the resource currently has a lock holder.
func (r *Resource) Locked() bool { return r.LockHolderID != "" }
