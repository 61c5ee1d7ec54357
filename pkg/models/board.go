package models

type Board struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	// Owner is an opaque actor id (clients manage meaning); default empty string
	Owner string `json:"owner"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns) - last time metadata or board activity changed
	UpdatedTS int64 `json:"updated_ts,omitempty"`
	// Deleted marks a board as soft-deleted; DeletedTS records deletion time (ns)
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty"`
}
