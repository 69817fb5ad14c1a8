package tasks

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/models"
	"courseplatform_echo/internal/notify"
)

const (
	MarkOverdueTaskID     = "mark_overdue_installments"
	SuspendOverdueTaskID  = "suspend_overdue_enrollments"
	ReactivateTaskID      = "reactivate_enrollments"
	AutoUnfreezeTaskID    = "auto_unfreeze_enrollments"
	SalaryRemindersTaskID = "send_salary_reminders"
	AbsenceAlertsTaskID   = "send_absence_alerts"
)

// lockTTL bounds how long a crashed worker can block a job
const lockTTL = 10 * time.Minute

// Locker hands out short-lived exclusive locks
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func(), error)
}

// exclusive wraps a handler so two workers never run the same job at once.
// A nil locker runs the handler unguarded.
func exclusive(locker Locker, name string, handler TaskHandler) TaskHandler {
	if locker == nil {
		return handler
	}
	return func(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
		ok, release, err := locker.TryLock(ctx, "task:lock:"+name, lockTTL)
		if err != nil {
			// redis trouble should not stall the daily jobs, they are idempotent
			logrus.WithError(err).WithField("task", name).Warn("Task lock unavailable, running anyway")
			return handler(ctx, db, task)
		}
		if !ok {
			logrus.WithField("task", name).Info("Task already running elsewhere, skipping")
			return map[string]interface{}{"status": "skipped", "reason": "locked"}, nil
		}
		defer release()
		return handler(ctx, db, task)
	}
}

// ReconcileTaskDef runs the daily enrollment reconciliation jobs
type ReconcileTaskDef struct {
	engine *enrollment.Engine
}

func NewReconcileTaskDef(engine *enrollment.Engine) *ReconcileTaskDef {
	return &ReconcileTaskDef{engine: engine}
}

func (t *ReconcileTaskDef) MarkOverdue(ctx context.Context, _ *gorm.DB, _ models.ScheduledTask) (map[string]interface{}, error) {
	updated, err := t.engine.MarkOverdueInstallments(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"updated": updated}, nil
}

func (t *ReconcileTaskDef) SuspendOverdue(ctx context.Context, _ *gorm.DB, _ models.ScheduledTask) (map[string]interface{}, error) {
	res, err := t.engine.SuspendOverdueEnrollments(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"checked":   res.Scanned,
		"suspended": res.Processed,
		"failed":    res.Failed,
	}, nil
}

func (t *ReconcileTaskDef) Reactivate(ctx context.Context, _ *gorm.DB, _ models.ScheduledTask) (map[string]interface{}, error) {
	res, err := t.engine.ReactivateEnrollments(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"checked":     res.Scanned,
		"reactivated": res.Processed,
		"failed":      res.Failed,
	}, nil
}

func (t *ReconcileTaskDef) AutoUnfreeze(ctx context.Context, _ *gorm.DB, _ models.ScheduledTask) (map[string]interface{}, error) {
	res, err := t.engine.AutoUnfreezeEnrollments(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"processed": res.Processed,
		"activated": res.Outcomes[models.EnrollmentStatusActive],
		"suspended": res.Outcomes[models.EnrollmentStatusSuspended],
		"failed":    res.Failed,
	}, nil
}

// ReminderTaskDef runs the reminder jobs
type ReminderTaskDef struct {
	dispatcher *notify.Dispatcher
}

func NewReminderTaskDef(dispatcher *notify.Dispatcher) *ReminderTaskDef {
	return &ReminderTaskDef{dispatcher: dispatcher}
}

// SalaryReminders honours a "force" argument to send outside the reminder day
func (t *ReminderTaskDef) SalaryReminders(ctx context.Context, _ *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	res, err := t.dispatcher.SendSalaryReminders(ctx, boolArg(task.Arguments, "force"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"sent":    res.Sent,
		"skipped": res.Skipped,
		"failed":  res.Failed,
	}, nil
}

func (t *ReminderTaskDef) AbsenceAlerts(ctx context.Context, _ *gorm.DB, _ models.ScheduledTask) (map[string]interface{}, error) {
	res, err := t.dispatcher.SendAbsenceAlerts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"sent":   res.Sent,
		"failed": res.Failed,
	}, nil
}
