package models

// Contribution is one actor's slice of a shared mergeable document.
// Each actor writes only its own contribution; readers combine them
// through the merge views.
type Contribution struct {
	DocID     string `json:"doc_id"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	Content   string `json:"content"`
	// JoinedTS orders contributors in merged views (ns).
	JoinedTS  int64 `json:"joined_ts"`
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}
