package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
)

// Runner executes scheduled tasks whose due time has passed
type Runner struct {
	db       *gorm.DB
	registry *Registry
	now      func() time.Time
}

func NewRunner(db *gorm.DB, registry *Registry) *Runner {
	return &Runner{db: db, registry: registry, now: time.Now}
}

// WithClock swaps the time source
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// ProcessDue runs every active task that is due and reports how many ran
func (r *Runner) ProcessDue(ctx context.Context) (int, error) {
	var pendingTasks []models.ScheduledTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, r.now()).
		Order("due ASC, id ASC").
		Find(&pendingTasks).Error
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending tasks: %w", err)
	}

	if len(pendingTasks) == 0 {
		logrus.Debug("No pending tasks found")
		return 0, nil
	}
	logrus.Infof("Found %d pending tasks", len(pendingTasks))

	ran := 0
	for _, task := range pendingTasks {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		claimed, err := r.claim(ctx, task)
		if err != nil {
			return ran, fmt.Errorf("failed to claim task %d: %w", task.ID, err)
		}
		if !claimed {
			logrus.WithFields(logrus.Fields{"task": task.TaskName, "task_id": task.ID}).Debug("Task taken by another worker")
			continue
		}
		r.execute(ctx, task)
		ran++
	}
	return ran, nil
}

// claim flips a due active task to running. Only one worker gets RowsAffected == 1
// for a given run; execute always moves the row out of running.
func (r *Runner) claim(ctx context.Context, task models.ScheduledTask) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ScheduledTask{}).
		Where("id = ? AND status = ? AND due <= ?", task.ID, models.ScheduledTaskStatusActive, r.now()).
		Update("status", models.ScheduledTaskStatusRunning)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Runner) execute(ctx context.Context, task models.ScheduledTask) {
	log := logrus.WithFields(logrus.Fields{"task": task.TaskName, "task_id": task.ID})
	log.Info("Processing task")

	if task.Arguments == nil {
		task.Arguments = make(map[string]interface{})
	}

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		log.Error("Task handler not found, marking as failure")
		now := r.now()
		r.recordHistory(ctx, task, now, 0, "handler_not_found", map[string]interface{}{"error": "Handler not found"})
		r.updateTask(ctx, task, map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})
		return
	}

	startTime := r.now()
	clock := time.Now()
	result, err := handler(ctx, r.db, task)
	runtimeMs := int(time.Since(clock).Milliseconds())

	status := "success"
	resultData := result
	if err != nil {
		status = "failure"
		if resultData == nil {
			resultData = map[string]interface{}{}
		}
		resultData["error"] = err.Error()
		log.WithError(err).Error("Task failed")
	} else {
		log.Info("Task completed successfully")
	}
	r.recordHistory(ctx, task, startTime, runtimeMs, status, resultData)

	taskUpdates := map[string]interface{}{
		"last_run": &startTime,
	}

	switch task.TaskType {
	case models.ScheduledTaskTypeRecurring:
		// a failed run of a recurring job is retried at its next occurrence
		nextDue := task.NextDue(startTime)
		if nextDue.After(task.Due) {
			taskUpdates["status"] = models.ScheduledTaskStatusActive
			taskUpdates["due"] = nextDue
		} else {
			taskUpdates["status"] = models.ScheduledTaskStatusDone
		}
	default:
		if status == "success" {
			taskUpdates["status"] = models.ScheduledTaskStatusDone
		} else {
			taskUpdates["status"] = models.ScheduledTaskStatusFailure
		}
	}

	r.updateTask(ctx, task, taskUpdates)
}

func (r *Runner) recordHistory(ctx context.Context, task models.ScheduledTask, runAt time.Time, runtimeMs int, status string, result map[string]interface{}) {
	history := models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           runAt,
		Runtime:         runtimeMs,
		Status:          status,
		AttemptNumber:   attemptNumber(task),
		Arguments:       task.Arguments,
		Result:          result,
	}
	if err := r.db.WithContext(ctx).Create(&history).Error; err != nil {
		logrus.WithError(err).WithField("task_id", task.ID).Error("Failed to record task history")
	}
}

func (r *Runner) updateTask(ctx context.Context, task models.ScheduledTask, updates map[string]interface{}) {
	err := r.db.WithContext(ctx).Model(&models.ScheduledTask{ID: task.ID}).Updates(updates).Error
	if err != nil {
		logrus.WithError(err).WithField("task_id", task.ID).Error("Failed to update task")
	}
}

// attemptNumber is the attempt a task row stands for; retries carry it in their arguments
func attemptNumber(task models.ScheduledTask) int {
	if n, ok := task.Arguments["attempt_count"].(float64); ok && n > 0 {
		return int(n)
	}
	return 1
}
