package tasks

import (
	"time"

	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/notify"
)

// Deps are the collaborators task handlers run against
type Deps struct {
	Engine     *enrollment.Engine
	Dispatcher *notify.Dispatcher
	// Locker is optional; without it jobs run unguarded
	Locker Locker
	// Now defaults to time.Now
	Now func() time.Time
}

// DefineTasks registers all available tasks
func DefineTasks(r *Registry, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	// Register general tasks
	r.Register(LogInfoTask.TaskID(), LogInfoTask.HandleExecution)

	// Register reconciliation jobs
	reconcile := NewReconcileTaskDef(deps.Engine)
	r.Register(MarkOverdueTaskID, exclusive(deps.Locker, MarkOverdueTaskID, reconcile.MarkOverdue))
	r.Register(SuspendOverdueTaskID, exclusive(deps.Locker, SuspendOverdueTaskID, reconcile.SuspendOverdue))
	r.Register(ReactivateTaskID, exclusive(deps.Locker, ReactivateTaskID, reconcile.Reactivate))
	r.Register(AutoUnfreezeTaskID, exclusive(deps.Locker, AutoUnfreezeTaskID, reconcile.AutoUnfreeze))

	// Register reminder and notification tasks
	reminders := NewReminderTaskDef(deps.Dispatcher)
	r.Register(SalaryRemindersTaskID, exclusive(deps.Locker, SalaryRemindersTaskID, reminders.SalaryReminders))
	r.Register(AbsenceAlertsTaskID, exclusive(deps.Locker, AbsenceAlertsTaskID, reminders.AbsenceAlerts))

	send := NewSendNotificationTaskDef(deps.Dispatcher).WithClock(deps.Now)
	r.Register(send.TaskID(), send.HandleExecution)
}
