package models

import "time"

// ChangeAction enumerates auditable mutations.
type ChangeAction string

const (
	ActionCreated  ChangeAction = "created"
	ActionUpdated  ChangeAction = "updated"
	ActionArchived ChangeAction = "archived"
	ActionRestored ChangeAction = "restored"
	ActionVerified ChangeAction = "verified"
	ActionRejected ChangeAction = "rejected"
	ActionPromoted ChangeAction = "promoted"
)

// ChangeSource records who or what caused a mutation.
type ChangeSource string

const (
	SourceManual  ChangeSource = "manual"
	SourceScraper ChangeSource = "scraper"
	SourcePartner ChangeSource = "partner"
)

// FieldChange is one before/after pair in a change-log entry.
type FieldChange struct {
	Field  string `json:"field"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

// ChangeLogEntry is an append-only audit record. Entries are never mutated.
type ChangeLogEntry struct {
	ID         string        `json:"id" db:"id"`
	Timestamp  time.Time     `json:"timestamp" db:"timestamp"`
	Action     ChangeAction  `json:"action" db:"action"`
	Collection string        `json:"collection" db:"collection"`
	DocumentID string        `json:"document_id" db:"document_id"`
	Changes    []FieldChange `json:"changes,omitempty"`
	Source     ChangeSource  `json:"source" db:"source"`
	ActorID    string        `json:"actor_id" db:"actor_id"`
}

// SyncEntityError records one failed entity inside a sync batch.
type SyncEntityError struct {
	EntityID string `json:"entity_id"`
	Kind     string `json:"kind"` // "venue" or "dish"
	Message  string `json:"message"`
}

// SyncHistoryRecord summarises one sync-execute batch.
type SyncHistoryRecord struct {
	ID             string            `json:"id" db:"id"`
	Timestamp      time.Time         `json:"timestamp" db:"timestamp"`
	ActorID        string            `json:"actor_id" db:"actor_id"`
	PromotedVenues []string          `json:"promoted_venues"`
	PromotedDishes []string          `json:"promoted_dishes"`
	Added          int               `json:"added" db:"added"`
	Updated        int               `json:"updated" db:"updated"`
	Failed         int               `json:"failed" db:"failed"`
	Errors         []SyncEntityError `json:"errors,omitempty"`
}
