package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
	"courseplatform_echo/internal/notify"
)

const (
	SendNotificationTaskID = "send_notification"

	notificationMaxAttempt = 3
	notificationRetryDelay = 5 * time.Minute
)

// SendNotificationArgs defines the arguments for a notification task
type SendNotificationArgs struct {
	Message      notify.Message `json:"message"`
	AttemptCount int            `json:"attempt_count"`
}

// SendNotificationTaskDef delivers one queued message over the user's preferred channel
type SendNotificationTaskDef struct {
	dispatcher *notify.Dispatcher
	now        func() time.Time
}

func NewSendNotificationTaskDef(dispatcher *notify.Dispatcher) *SendNotificationTaskDef {
	return &SendNotificationTaskDef{dispatcher: dispatcher, now: time.Now}
}

// WithClock swaps the time source used to schedule retries
func (t *SendNotificationTaskDef) WithClock(now func() time.Time) *SendNotificationTaskDef {
	t.now = now
	return t
}

// TaskID returns the unique identifier for this task
func (t *SendNotificationTaskDef) TaskID() string {
	return SendNotificationTaskID
}

// CreateNotificationTask builds a ScheduledTask record for a queued message
func CreateNotificationTask(args SendNotificationArgs, due time.Time) (*models.ScheduledTask, error) {
	if args.AttemptCount == 0 {
		args.AttemptCount = 1
	}
	return BuildScheduledTask(SendNotificationTaskID, args, due, nil, models.ScheduledTaskTypeOneTime, notificationMaxAttempt)
}

// HandleExecution sends the message. A failed send is rescheduled five minutes later
// until MaxAttempt attempts have been made.
func (t *SendNotificationTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	args, err := decodeArgs[SendNotificationArgs](task)
	if err != nil {
		return nil, err
	}
	if args.AttemptCount == 0 {
		args.AttemptCount = 1
	}
	log := logrus.WithFields(logrus.Fields{
		"task":    t.TaskID(),
		"user_id": args.Message.UserID,
		"kind":    args.Message.Kind,
		"attempt": args.AttemptCount,
	})

	channel, sendErr := t.dispatcher.Deliver(ctx, args.Message)
	if sendErr == nil {
		return map[string]interface{}{"channel": channel, "attempt": args.AttemptCount}, nil
	}

	result := map[string]interface{}{
		"channel": channel,
		"attempt": args.AttemptCount,
		"error":   sendErr.Error(),
	}

	// a missing number will still be missing in five minutes
	if errors.Is(sendErr, notify.ErrNoWhatsappNumber) {
		return result, sendErr
	}

	if args.AttemptCount >= task.MaxAttempt {
		log.WithError(sendErr).Errorf("Max attempts (%d) reached, giving up", task.MaxAttempt)
		return result, fmt.Errorf("max attempts reached: %w", sendErr)
	}

	log.WithError(sendErr).Warn("Failed to send notification, rescheduling")

	retryArgs := args
	retryArgs.AttemptCount++
	retry, err := BuildScheduledTask(t.TaskID(), retryArgs, t.now().Add(notificationRetryDelay), nil, models.ScheduledTaskTypeOneTime, task.MaxAttempt)
	if err != nil {
		return result, fmt.Errorf("failed to build retry task: %w", err)
	}
	if err := db.WithContext(ctx).Create(retry).Error; err != nil {
		return result, fmt.Errorf("failed to schedule retry: %w", err)
	}

	result["status"] = "rescheduled"
	result["retry_task_id"] = retry.ID
	return result, nil
}

// Outbox queues notifications as send_notification tasks for the worker
type Outbox struct {
	db  *gorm.DB
	now func() time.Time
}

func NewOutbox(db *gorm.DB) *Outbox {
	return &Outbox{db: db, now: time.Now}
}

// WithClock swaps the time source
func (o *Outbox) WithClock(now func() time.Time) *Outbox {
	o.now = now
	return o
}

// Enqueue stores msg as a task due immediately
func (o *Outbox) Enqueue(ctx context.Context, msg notify.Message) error {
	task, err := CreateNotificationTask(SendNotificationArgs{Message: msg}, o.now())
	if err != nil {
		return err
	}
	if err := o.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}
