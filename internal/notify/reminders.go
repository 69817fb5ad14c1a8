package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/models"
)

const (
	// SalaryDay is the day of month most students get paid
	SalaryDay = 28
	// ReminderDay is when salary reminders go out
	ReminderDay = 26
	// AbsenceAfter is how long a user may stay away before we write
	AbsenceAfter = 14 * 24 * time.Hour
)

// ReminderResult summarises a salary reminder run
type ReminderResult struct {
	Skipped bool `json:"skipped"`
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
}

// SendSalaryReminders reminds every enrollment with an open installment due between
// the first of the month and salary day. It only runs on ReminderDay unless forced.
// Each enrollment hears about its earliest open installment once.
func (d *Dispatcher) SendSalaryReminders(ctx context.Context, force bool) (ReminderResult, error) {
	today := enrollment.DateOf(d.now())
	if !force && today.Day() != ReminderDay {
		return ReminderResult{Skipped: true}, nil
	}

	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	cutoff := time.Date(today.Year(), today.Month(), SalaryDay, 0, 0, 0, 0, time.UTC)

	var insts []models.Installment
	err := d.db.WithContext(ctx).
		Preload("Enrollment.User").
		Preload("Enrollment.Course").
		Where("status IN ?", []models.InstallmentStatus{models.InstallmentStatusDue, models.InstallmentStatusOverdue}).
		Where("due_date >= ? AND due_date <= ?", monthStart, cutoff).
		Order("enrollment_id ASC, due_date ASC").
		Find(&insts).Error
	if err != nil {
		return ReminderResult{}, fmt.Errorf("failed to load open installments: %w", err)
	}

	var result ReminderResult
	seen := make(map[uint]bool)
	for i := range insts {
		inst := &insts[i]
		enr := inst.Enrollment
		if enr == nil || enr.User == nil || enr.Course == nil || seen[enr.ID] {
			continue
		}
		if enr.User.Email == "" {
			continue
		}

		msg := d.ReminderMessage(enr.User, enr.Course, inst)
		if _, err := d.Deliver(ctx, msg); err != nil {
			// the enrollment's next installment gets a chance instead
			result.Failed++
			logrus.WithError(err).WithField("enrollment_id", enr.ID).Error("Failed to send salary reminder")
			continue
		}
		seen[enr.ID] = true
		result.Sent++
	}

	logrus.WithFields(logrus.Fields{
		"sent":   result.Sent,
		"failed": result.Failed,
		"from":   monthStart.Format(time.DateOnly),
		"to":     cutoff.Format(time.DateOnly),
	}).Info("Salary reminders sent")
	return result, nil
}

// AbsenceResult summarises an absence alert run
type AbsenceResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// SendAbsenceAlerts writes to users with an active enrollment who have been away for
// AbsenceAfter. A user is alerted once per absence.
func (d *Dispatcher) SendAbsenceAlerts(ctx context.Context) (AbsenceResult, error) {
	now := d.now()
	db := d.db.WithContext(ctx)

	var activities []models.UserActivity
	err := db.Preload("User").
		Where("last_seen <= ?", now.Add(-AbsenceAfter)).
		Where("last_absence_email_at IS NULL OR last_absence_email_at < last_seen").
		Where("EXISTS (SELECT 1 FROM enrollments e WHERE e.user_id = user_activities.user_id AND e.status = ?)", models.EnrollmentStatusActive).
		Find(&activities).Error
	if err != nil {
		return AbsenceResult{}, fmt.Errorf("failed to load absent users: %w", err)
	}

	var result AbsenceResult
	for i := range activities {
		act := &activities[i]
		if act.User.ID == 0 {
			continue
		}

		if _, err := d.Deliver(ctx, d.AbsenceMessage(&act.User, act.LastSeen)); err != nil {
			result.Failed++
			logrus.WithError(err).WithField("user_id", act.UserID).Error("Failed to send absence alert")
			continue
		}
		if err := db.Model(&models.UserActivity{ID: act.ID}).Update("last_absence_email_at", now).Error; err != nil {
			logrus.WithError(err).WithField("user_id", act.UserID).Error("Failed to stamp absence alert")
			continue
		}
		result.Sent++
	}

	logrus.WithFields(logrus.Fields{"sent": result.Sent, "failed": result.Failed}).Info("Absence alerts sent")
	return result, nil
}
