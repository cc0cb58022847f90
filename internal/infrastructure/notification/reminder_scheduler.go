package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/tasksync/internal/application/dispatcher"
	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/internal/domain/event"
	"go.uber.org/zap"
)

// Defaults applied when Config leaves a field zero
const (
	DefaultLeadTime     = 15 * time.Minute
	DefaultThrottle     = 2 * time.Second
	DefaultReminderHour = 9
)

// Config tunes when reminders fire
type Config struct {
	// LeadTime is how long before the due moment a reminder fires
	LeadTime time.Duration
	// Throttle suppresses repeated scheduling of the same task inside the window
	Throttle time.Duration
	// DefaultHour is the hour used for tasks that have a due date but no time
	DefaultHour int
}

func (c Config) withDefaults() Config {
	if c.LeadTime <= 0 {
		c.LeadTime = DefaultLeadTime
	}
	if c.Throttle <= 0 {
		c.Throttle = DefaultThrottle
	}
	if c.DefaultHour <= 0 || c.DefaultHour > 23 {
		c.DefaultHour = DefaultReminderHour
	}
	return c
}

// ReminderScheduler implements port.NotificationScheduler with in-process timers.
// A reminder firing dispatches reminder.due; delivering it to a device is left
// to whoever subscribes.
type ReminderScheduler struct {
	timers     port.TimerScheduler
	clock      port.Clock
	dispatcher dispatcher.Dispatcher
	cfg        Config
	logger     *zap.Logger
}

// NewReminderScheduler creates a reminder scheduler on top of timers
func NewReminderScheduler(timers port.TimerScheduler, clock port.Clock, d dispatcher.Dispatcher, cfg Config, logger *zap.Logger) *ReminderScheduler {
	return &ReminderScheduler{
		timers:     timers,
		clock:      clock,
		dispatcher: d,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

func taskTimer(taskID string) string { return "reminder:" + taskID }

func throttleTimer(taskID string) string { return "reminder-throttle:" + taskID }

func subtaskPrefix(taskID string) string { return "reminder:" + taskID + ":sub:" }

func subtaskTimer(taskID, subID string) string { return subtaskPrefix(taskID) + subID }

// ScheduleTaskReminder arms the reminder for task unless the same task was
// scheduled within the throttle window.
func (r *ReminderScheduler) ScheduleTaskReminder(ctx context.Context, task *entity.Task) error {
	if r.timers.Pending(throttleTimer(task.ID)) {
		r.logger.Debug("Reminder throttled", zap.String("task_id", task.ID))
		return nil
	}
	r.timers.Schedule(throttleTimer(task.ID), r.cfg.Throttle, func() {})
	return r.arm(task)
}

// CancelTaskReminder drops the task reminder and its throttle window
func (r *ReminderScheduler) CancelTaskReminder(ctx context.Context, taskID string) error {
	r.timers.Cancel(taskTimer(taskID))
	r.timers.Cancel(throttleTimer(taskID))
	return nil
}

// RescheduleTaskReminder re-arms the reminder from the task's current due moment
func (r *ReminderScheduler) RescheduleTaskReminder(ctx context.Context, task *entity.Task) error {
	r.timers.Cancel(taskTimer(task.ID))
	r.timers.Schedule(throttleTimer(task.ID), r.cfg.Throttle, func() {})
	return r.arm(task)
}

// ScheduleSubtaskReminders arms one reminder per open subtask with a due date
func (r *ReminderScheduler) ScheduleSubtaskReminders(ctx context.Context, taskID, title string, subtasks []entity.Subtask) error {
	r.timers.CancelPrefix(subtaskPrefix(taskID))
	for _, sub := range subtasks {
		if sub.Done || sub.DueDate == nil {
			continue
		}
		at := r.fireTime(*sub.DueDate, sub.DueTime)
		delay := at.Sub(r.clock.Now())
		if delay < 0 {
			continue
		}
		payload := map[string]interface{}{
			"task_id":    taskID,
			"title":      title,
			"subtask_id": sub.ID,
			"subtask":    sub.Title,
		}
		r.timers.Schedule(subtaskTimer(taskID, sub.ID), delay, r.fire(taskID, payload))
	}
	return nil
}

// CancelAllSubtaskReminders drops every subtask reminder of taskID
func (r *ReminderScheduler) CancelAllSubtaskReminders(ctx context.Context, taskID string) error {
	r.timers.CancelPrefix(subtaskPrefix(taskID))
	return nil
}

func (r *ReminderScheduler) arm(task *entity.Task) error {
	if task.Completed || task.DueDate == nil {
		r.timers.Cancel(taskTimer(task.ID))
		return nil
	}
	if task.ID == "" {
		return fmt.Errorf("cannot schedule reminder for task without id")
	}

	at := r.fireTime(*task.DueDate, task.DueTime)
	delay := at.Sub(r.clock.Now())
	if delay < 0 {
		// already past; nothing to remind about
		r.timers.Cancel(taskTimer(task.ID))
		return nil
	}

	payload := map[string]interface{}{
		"task_id": task.ID,
		"title":   task.Title,
		"due_at":  at.Add(r.cfg.LeadTime),
	}
	r.timers.Schedule(taskTimer(task.ID), delay, r.fire(task.ID, payload))
	r.logger.Debug("Reminder scheduled",
		zap.String("task_id", task.ID),
		zap.Time("fire_at", at))
	return nil
}

// fireTime combines date with clock (or the default hour) and subtracts the lead time
func (r *ReminderScheduler) fireTime(date time.Time, clock *time.Time) time.Time {
	hour, minute := r.cfg.DefaultHour, 0
	if clock != nil {
		hour, minute = clock.Hour(), clock.Minute()
	}
	due := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location())
	return due.Add(-r.cfg.LeadTime)
}

func (r *ReminderScheduler) fire(taskID string, payload map[string]interface{}) func() {
	return func() {
		evt := event.NewEvent(event.TypeReminderDue, taskID, payload)
		if err := r.dispatcher.Dispatch(context.Background(), evt); err != nil {
			r.logger.Error("Reminder handler failed", zap.String("task_id", taskID), zap.Error(err))
		}
	}
}

// Verify interface compliance
var _ port.NotificationScheduler = (*ReminderScheduler)(nil)
