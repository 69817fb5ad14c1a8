package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"
	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
)

// DailyJob is one entry of the default reconciliation schedule (UTC)
type DailyJob struct {
	TaskName string
	Hour     int
	Minute   int
}

// DefaultSchedule is the daily order the reconciliation jobs run in
var DefaultSchedule = []DailyJob{
	{MarkOverdueTaskID, 8, 0},
	{SuspendOverdueTaskID, 8, 10},
	{ReactivateTaskID, 8, 20},
	{AutoUnfreezeTaskID, 8, 25},
	{SalaryRemindersTaskID, 9, 0},
	{AbsenceAlertsTaskID, 9, 30},
}

// Rule is the RRULE the job recurs on
func (j DailyJob) Rule() string {
	return fmt.Sprintf("FREQ=DAILY;BYHOUR=%d;BYMINUTE=%d;BYSECOND=0", j.Hour, j.Minute)
}

// FirstDue is the first run at or after now
func (j DailyJob) FirstDue(now time.Time) time.Time {
	now = now.UTC()
	due := time.Date(now.Year(), now.Month(), now.Day(), j.Hour, j.Minute, 0, 0, time.UTC)
	if due.Before(now) {
		due = due.AddDate(0, 0, 1)
	}
	return due
}

// SeedDefaults creates the recurring daily jobs that are not scheduled yet and
// returns the tasks it created
func SeedDefaults(ctx context.Context, db *gorm.DB, now time.Time) ([]models.ScheduledTask, error) {
	var created []models.ScheduledTask
	for _, job := range DefaultSchedule {
		var existing models.ScheduledTask
		err := db.WithContext(ctx).
			Where("task_name = ? AND task_type = ? AND status IN ?", job.TaskName, models.ScheduledTaskTypeRecurring,
				[]models.ScheduledTaskStatus{models.ScheduledTaskStatusActive, models.ScheduledTaskStatusRunning}).
			First(&existing).Error
		if err == nil {
			logrus.WithField("task", job.TaskName).Info("Already scheduled, skipping")
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, fmt.Errorf("failed to look up %s: %w", job.TaskName, err)
		}

		rule := job.Rule()
		if _, err := rrule.StrToROption(rule); err != nil {
			return created, fmt.Errorf("invalid rule for %s: %w", job.TaskName, err)
		}
		task, err := BuildScheduledTask(job.TaskName, map[string]interface{}{}, job.FirstDue(now), &rule, models.ScheduledTaskTypeRecurring, 1)
		if err != nil {
			return created, err
		}
		if err := db.WithContext(ctx).Create(task).Error; err != nil {
			return created, fmt.Errorf("failed to schedule %s: %w", job.TaskName, err)
		}
		created = append(created, *task)
	}
	return created, nil
}
