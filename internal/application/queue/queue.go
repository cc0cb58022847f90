// Package queue makes local mutations durable before the remote store confirms them.
//
// Every intent is appended to the operation log first. When online, the queue
// then attempts the remote write through its fallback policy and removes the
// entry once confirmed. Entries that could not be applied stay in the log and
// are retried by Drain in enqueue order, per entity.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/garyjia/tasksync/internal/application/dispatcher"
	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/application/retry"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/domain/event"
)

var (
	// ErrRemoteWriteFailed marks a remote attempt that failed on every strategy.
	ErrRemoteWriteFailed = errors.New("remote write failed")

	// ErrTotalFailure means the operation was neither logged nor applied.
	ErrTotalFailure = errors.New("operation could not be persisted")
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Policy is the fallback chain used to apply one operation remotely.
type Policy = retry.Policy[*entity.PendingOperation, string]

// Result describes what happened to a submitted intent.
type Result struct {
	Op *entity.PendingOperation

	// Applied is true when the remote side confirmed the operation.
	Applied bool

	// Queued is true when the operation waits in the log for a later drain.
	Queued bool

	// RemoteID is the confirmed id; it differs from Op.EntityID after a temporary id was replaced.
	RemoteID string

	// Strategy names the strategy that applied the operation.
	Strategy string

	// Deduplicated is true when an identical queued operation was reused.
	Deduplicated bool
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Attempted int
	Confirmed int
	Failed    int
	Blocked   int
	Remaining int
	Skipped   bool
}

// Queue is the offline operation queue.
type Queue struct {
	mu sync.Mutex

	log        port.OperationLog
	policy     *Policy
	conn       port.Connectivity
	clock      port.Clock
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

// New creates a queue.
func New(
	log port.OperationLog,
	policy *Policy,
	conn port.Connectivity,
	clock port.Clock,
	d dispatcher.Dispatcher,
	logger Logger,
) *Queue {
	return &Queue{
		log:        log,
		policy:     policy,
		conn:       conn,
		clock:      clock,
		dispatcher: d,
		logger:     logger,
	}
}

// Submit makes intent durable and, when online, applies it remotely.
//
// Earlier queued operations for the same entity are flushed first; if one of
// them fails the new operation stays queued behind it. The returned error is
// non-nil only when the operation was neither logged nor applied.
func (q *Queue) Submit(ctx context.Context, intent entity.Intent) (Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	op, err := q.newOperation(intent)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTotalFailure, err)
	}

	logged, dedup := true, false
	if dup, ok := q.duplicateOf(ctx, op); ok {
		op, dedup = dup, true
	} else if seq, err := q.log.Append(ctx, op); err != nil {
		logged = false
		q.logger.Error("Failed to append operation",
			"entity", op.EntityKey(),
			"kind", op.Kind,
			"error", err,
		)
	} else {
		op.Seq = seq
	}

	if !q.conn.Online() {
		if !logged {
			return Result{Op: op}, fmt.Errorf("%w: offline and log append failed", ErrTotalFailure)
		}
		q.logger.Info("Operation queued while offline", "entity", op.EntityKey(), "kind", op.Kind, "seq", op.Seq)
		return Result{Op: op, Queued: true, Deduplicated: dedup}, nil
	}

	blocked, err := q.flushEarlier(ctx, op)
	if err != nil || blocked {
		if !logged {
			return Result{Op: op}, fmt.Errorf("%w: earlier operations for %s are still queued", ErrTotalFailure, op.EntityKey())
		}
		return Result{Op: op, Queued: true, Deduplicated: dedup}, nil
	}

	out, err := q.policy.Execute(ctx, op)
	if err != nil {
		if !logged {
			return Result{Op: op}, fmt.Errorf("%w: %w", ErrTotalFailure, err)
		}
		q.markFailed(ctx, op, err)
		return Result{Op: op, Queued: true, Deduplicated: dedup}, nil
	}

	q.confirm(ctx, op, out.Value, logged)
	return Result{Op: op, Applied: true, RemoteID: out.Value, Strategy: out.Strategy, Deduplicated: dedup}, nil
}

// Drain applies queued operations in enqueue order. After an operation fails,
// later operations for the same entity are held back until the next drain.
func (q *Queue) Drain(ctx context.Context) (DrainReport, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var report DrainReport
	if !q.conn.Online() {
		report.Skipped = true
		return report, nil
	}

	ops, err := q.log.List(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list pending operations: %w", err)
	}

	blocked := make(map[string]bool)
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if blocked[op.EntityKey()] {
			report.Blocked++
			continue
		}

		report.Attempted++
		out, err := q.policy.Execute(ctx, op)
		if err != nil {
			report.Failed++
			blocked[op.EntityKey()] = true
			q.markFailed(ctx, op, err)
			continue
		}

		report.Confirmed++
		if newID, rekeyed := q.confirm(ctx, op, out.Value, true); rekeyed {
			for _, later := range ops[i+1:] {
				later.Rekey(op.EntityID, newID)
			}
		}
	}

	if n, err := q.log.Count(ctx); err == nil {
		report.Remaining = n
	}

	q.logger.Info("Operation queue drained",
		"attempted", report.Attempted,
		"confirmed", report.Confirmed,
		"failed", report.Failed,
		"blocked", report.Blocked,
		"remaining", report.Remaining,
	)
	q.dispatch(ctx, event.NewEvent(event.TypeQueueDrained, "", map[string]interface{}{
		"confirmed": report.Confirmed,
		"failed":    report.Failed,
		"remaining": report.Remaining,
	}))
	return report, nil
}

// Pending returns the operations still waiting in the log.
func (q *Queue) Pending(ctx context.Context) ([]*entity.PendingOperation, error) {
	return q.log.List(ctx)
}

func (q *Queue) newOperation(intent entity.Intent) (*entity.PendingOperation, error) {
	op := &entity.PendingOperation{
		Kind:       intent.Kind,
		EntityType: intent.EntityType,
		EntityID:   intent.EntityID,
		EnqueuedAt: q.clock.Now(),
	}
	if intent.Payload != nil {
		raw, err := json.Marshal(intent.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		op.Payload = raw
	}
	return op, nil
}

// duplicateOf returns the newest queued operation for the same entity when it
// carries the same intent, so resubmitting does not grow the log.
func (q *Queue) duplicateOf(ctx context.Context, op *entity.PendingOperation) (*entity.PendingOperation, bool) {
	existing, err := q.log.ListByEntity(ctx, op.EntityType, op.EntityID)
	if err != nil || len(existing) == 0 {
		return nil, false
	}
	last := existing[len(existing)-1]
	if last.Kind == op.Kind && string(last.Payload) == string(op.Payload) {
		return last, true
	}
	return nil, false
}

// flushEarlier applies queued operations for op's entity that precede op.
// An op that never reached the log (Seq 0) comes after every queued one.
// It reports blocked when one of them could not be applied.
func (q *Queue) flushEarlier(ctx context.Context, op *entity.PendingOperation) (bool, error) {
	earlier, err := q.log.ListByEntity(ctx, op.EntityType, op.EntityID)
	if err != nil {
		return false, err
	}
	for _, prev := range earlier {
		if op.Seq != 0 && prev.Seq >= op.Seq {
			break
		}
		out, err := q.policy.Execute(ctx, prev)
		if err != nil {
			q.markFailed(ctx, prev, err)
			return true, nil
		}
		if newID, rekeyed := q.confirm(ctx, prev, out.Value, true); rekeyed {
			op.Rekey(prev.EntityID, newID)
		}
	}
	return false, nil
}

// confirm removes a confirmed operation from the log and announces it.
// When a create replaced a temporary task id, queued operations are rewritten
// to the permanent id and the rekey is announced first.
func (q *Queue) confirm(ctx context.Context, op *entity.PendingOperation, remoteID string, logged bool) (string, bool) {
	if logged {
		if err := q.log.Delete(ctx, op.Seq); err != nil {
			q.logger.Error("Failed to delete confirmed operation", "seq", op.Seq, "error", err)
		}
	}

	oldID := op.EntityID
	rekeyed := op.EntityType == entity.EntityTasks && op.Kind == entity.OpCreate &&
		remoteID != "" && remoteID != oldID
	if rekeyed {
		if n, err := q.log.Rekey(ctx, oldID, remoteID); err != nil {
			q.logger.Error("Failed to rekey queued operations", "old_id", oldID, "new_id", remoteID, "error", err)
		} else {
			q.logger.Info("Temporary id replaced", "old_id", oldID, "new_id", remoteID, "operations", n)
		}
		q.dispatch(ctx, event.NewEvent(event.TypeTaskRekeyed, remoteID, map[string]interface{}{
			"old_id": oldID,
			"new_id": remoteID,
		}))
	}

	confirmedID := oldID
	if rekeyed {
		confirmedID = remoteID
	}
	q.dispatch(ctx, event.NewEvent(event.TypeOperationConfirmed, confirmedID, map[string]interface{}{
		"seq":         op.Seq,
		"kind":        op.Kind,
		"entity_type": op.EntityType,
		"entity_id":   confirmedID,
	}))
	return remoteID, rekeyed
}

func (q *Queue) markFailed(ctx context.Context, op *entity.PendingOperation, cause error) {
	op.Attempts++
	op.LastError = cause.Error()
	q.logger.Error("Remote write failed, operation stays queued",
		"entity", op.EntityKey(),
		"kind", op.Kind,
		"seq", op.Seq,
		"error", fmt.Errorf("%w: %w", ErrRemoteWriteFailed, cause),
	)
	if op.Seq == 0 {
		return
	}
	if err := q.log.MarkFailed(ctx, op.Seq, cause.Error()); err != nil {
		q.logger.Error("Failed to record operation failure", "seq", op.Seq, "error", err)
	}
}

func (q *Queue) dispatch(ctx context.Context, evt *event.Event) {
	if q.dispatcher == nil {
		return
	}
	if err := q.dispatcher.Dispatch(ctx, evt); err != nil {
		q.logger.Error("Event handler failed", "event_type", evt.Type, "error", err)
	}
}
