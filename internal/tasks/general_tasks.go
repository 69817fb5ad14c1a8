package tasks

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
)

const LogInfoTaskID = "log_info"

// LogInfoTaskDef writes its message argument to the log. Handy for checking a worker is alive.
type LogInfoTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *LogInfoTaskDef) TaskID() string {
	return LogInfoTaskID
}

// HandleExecution handles logging information
func (t *LogInfoTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	message, ok := task.Arguments["message"].(string)
	if !ok {
		message = "No message provided"
	}
	logrus.WithField("task", t.TaskID()).Info(message)

	return map[string]interface{}{
		"message": message,
	}, nil
}

// LogInfoTask is the singleton instance of LogInfoTaskDef
var LogInfoTask = &LogInfoTaskDef{}
