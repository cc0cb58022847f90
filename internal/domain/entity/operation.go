package entity

import (
	"bytes"
	"encoding/json"
	"time"
)

// PendingOperation is one durable entry in the offline operation log.
// Seq is assigned by the log and defines enqueue order.
type PendingOperation struct {
	Seq        int64           `json:"seq"`
	Kind       string          `json:"kind"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
}

// EntityKey identifies the record the operation targets across entity types.
func (o *PendingOperation) EntityKey() string {
	return o.EntityType + "/" + o.EntityID
}

// Rekey rewrites references to oldID in the entity id and the payload.
// It reports whether anything changed.
func (o *PendingOperation) Rekey(oldID, newID string) bool {
	changed := false
	if o.EntityID == oldID {
		o.EntityID = newID
		changed = true
	}
	quotedOld, _ := json.Marshal(oldID)
	quotedNew, _ := json.Marshal(newID)
	if bytes.Contains(o.Payload, quotedOld) {
		o.Payload = bytes.ReplaceAll(o.Payload, quotedOld, quotedNew)
		changed = true
	}
	return changed
}

// DecodeTask unmarshals the payload as a task.
func (o *PendingOperation) DecodeTask() (*Task, error) {
	var t Task
	if err := json.Unmarshal(o.Payload, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DecodeApproval unmarshals the payload as an approval.
func (o *PendingOperation) DecodeApproval() (*TaskApproval, error) {
	var a TaskApproval
	if err := json.Unmarshal(o.Payload, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DecodeHistory unmarshals the payload as a history entry.
func (o *PendingOperation) DecodeHistory() (*HistoryEntry, error) {
	var h HistoryEntry
	if err := json.Unmarshal(o.Payload, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Intent is a mutation the orchestrator hands to the operation queue.
type Intent struct {
	Kind       string
	EntityType string
	EntityID   string
	Payload    interface{}
}

// TaskIntent builds an intent for a task write.
func TaskIntent(kind string, t *Task) Intent {
	in := Intent{Kind: kind, EntityType: EntityTasks, EntityID: t.ID}
	if kind != OpDelete {
		in.Payload = t
	}
	return in
}

// ApprovalIntent builds an intent for an approval write.
func ApprovalIntent(kind string, a *TaskApproval) Intent {
	in := Intent{Kind: kind, EntityType: EntityApprovals, EntityID: a.ID}
	if kind != OpDelete {
		in.Payload = a
	}
	return in
}

// HistoryIntent builds an intent for a history append.
func HistoryIntent(h *HistoryEntry) Intent {
	return Intent{Kind: OpCreate, EntityType: EntityHistory, EntityID: h.ID, Payload: h}
}
