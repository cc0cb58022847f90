package entity

import "time"

// HistoryEntry is one line of the family audit trail.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	TaskTitle string    `json:"task_title"`
	TaskID    string    `json:"task_id"`
	Details   string    `json:"details,omitempty"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	FamilyID  string    `json:"family_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
