package model

import "time"

// Entry maps one or more lookup keys to a single response text.
type Entry struct {
	Keys []string `json:"keys"`
	Text string   `json:"text"`
}

// Clone returns a deep copy so callers never alias the store's key slices.
func (e Entry) Clone() Entry {
	keys := make([]string, len(e.Keys))
	copy(keys, e.Keys)
	return Entry{Keys: keys, Text: e.Text}
}

type DeleteResult struct {
	Deleted  []string `json:"deleted"`
	NotFound []string `json:"not_found"`
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "entry_added"
	ChangeDeleted  ChangeKind = "entry_deleted"
	ChangeEdited   ChangeKind = "entry_edited"
	ChangeReloaded ChangeKind = "entries_reloaded"
)

// Change describes one mutation of the knowledge base.
type Change struct {
	ID        string     `json:"id"`
	Kind      ChangeKind `json:"kind"`
	Keys      []string   `json:"keys"`
	Count     int        `json:"count"`
	// Text is the added or edited text; empty for deletes and reloads.
	Text      string     `json:"text,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
