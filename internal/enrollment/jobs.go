package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
)

// JobResult summarises one reconciliation run. Processed only counts records that
// were changed successfully; Outcomes splits them by the status they ended in.
type JobResult struct {
	Scanned   int                             `json:"scanned"`
	Processed int                             `json:"processed"`
	Failed    int                             `json:"failed"`
	Outcomes  map[models.EnrollmentStatus]int `json:"outcomes,omitempty"`
}

// transition runs apply against a locked enrollment. When apply reports a change
// the lifecycle fields are saved and, once committed, the user is notified.
func (e *Engine) transition(ctx context.Context, id uint, apply func(tx *gorm.DB, enr *models.Enrollment) (bool, error)) (models.EnrollmentStatus, bool, error) {
	var enr *models.Enrollment
	var prev models.EnrollmentStatus
	changed := false

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		enr, err = lockEnrollment(tx, id)
		if err != nil {
			return err
		}
		prev = enr.Status

		changed, err = apply(tx, enr)
		if err != nil || !changed {
			return err
		}
		return saveLifecycle(tx, enr)
	})
	if err != nil {
		return "", false, err
	}

	if changed {
		e.notifyTransition(ctx, enr.ID, prev, enr.Status)
	}
	return enr.Status, changed, nil
}

func (e *Engine) runEach(ctx context.Context, job string, ids []uint, apply func(tx *gorm.DB, enr *models.Enrollment) (bool, error)) JobResult {
	result := JobResult{Scanned: len(ids), Outcomes: map[models.EnrollmentStatus]int{}}
	for _, id := range ids {
		if ctx.Err() != nil {
			logrus.WithField("job", job).Warn("Job interrupted: ", ctx.Err())
			break
		}

		status, changed, err := e.transition(ctx, id, apply)
		if err != nil {
			result.Failed++
			logrus.WithFields(logrus.Fields{"job": job, "enrollment_id": id}).Error("Failed to process enrollment: ", err)
			continue
		}
		if changed {
			result.Processed++
			result.Outcomes[status]++
		}
	}
	return result
}

// MarkOverdueInstallments flags unpaid installments past their due date as overdue.
// Installments of frozen enrollments stay as they are.
func (e *Engine) MarkOverdueInstallments(ctx context.Context) (int64, error) {
	today := e.today()
	notFrozen := e.db.Model(&models.Enrollment{}).
		Select("id").
		Where("status <> ?", models.EnrollmentStatusFrozen)

	res := e.db.WithContext(ctx).Model(&models.Installment{}).
		Where("status = ? AND paid_at IS NULL AND due_date < ?", models.InstallmentStatusDue, today).
		Where("enrollment_id IN (?)", notFrozen).
		Update("status", models.InstallmentStatusOverdue)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark overdue installments: %w", res.Error)
	}

	logrus.WithField("count", res.RowsAffected).Info("Marked installments overdue")
	return res.RowsAffected, nil
}

func pastDueInstallments(tx *gorm.DB, enrollmentID uint, today time.Time) ([]models.Installment, error) {
	var insts []models.Installment
	err := tx.Where("enrollment_id = ? AND paid_at IS NULL AND due_date < ?", enrollmentID, today).
		Order("due_date ASC").
		Find(&insts).Error
	return insts, err
}

// ShouldSuspend reports whether any of the given unpaid installments is at least
// SuspendAfterDays late once the current freeze window is credited
func ShouldSuspend(enr *models.Enrollment, unpaid []models.Installment, today time.Time) bool {
	for _, inst := range unpaid {
		if EffectiveOverdueDays(inst.DueDate, today, enr) >= SuspendAfterDays {
			return true
		}
	}
	return false
}

// SuspendOverdueEnrollments suspends enrollments carrying an installment that is
// effectively SuspendAfterDays late
func (e *Engine) SuspendOverdueEnrollments(ctx context.Context) (JobResult, error) {
	today := e.today()

	var ids []uint
	err := e.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("status NOT IN ?", []models.EnrollmentStatus{models.EnrollmentStatusCancelled, models.EnrollmentStatusSuspended}).
		Where("EXISTS (SELECT 1 FROM installments i WHERE i.enrollment_id = enrollments.id AND i.paid_at IS NULL AND i.due_date < ?)", today).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return JobResult{}, fmt.Errorf("failed to list suspension candidates: %w", err)
	}

	result := e.runEach(ctx, "suspend_overdue", ids, func(tx *gorm.DB, enr *models.Enrollment) (bool, error) {
		if enr.Status == models.EnrollmentStatusCancelled || enr.Status == models.EnrollmentStatusSuspended {
			return false, nil
		}
		unpaid, err := pastDueInstallments(tx, enr.ID, today)
		if err != nil {
			return false, err
		}
		if !ShouldSuspend(enr, unpaid, today) {
			return false, nil
		}
		enr.TransitionTo(models.EnrollmentStatusSuspended)
		appendNote(enr, fmt.Sprintf("%s suspended: installment over %d days overdue", today.Format(time.DateOnly), SuspendAfterDays))
		return true, nil
	})

	logrus.WithFields(logrus.Fields{"scanned": result.Scanned, "suspended": result.Processed}).Info("Suspension check finished")
	return result, nil
}

// ReactivateEnrollments lifts suspensions whose long-overdue installments are gone
func (e *Engine) ReactivateEnrollments(ctx context.Context) (JobResult, error) {
	today := e.today()
	cutoff := today.AddDate(0, 0, -SuspendAfterDays)

	var ids []uint
	err := e.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("status = ?", models.EnrollmentStatusSuspended).
		Where("NOT EXISTS (SELECT 1 FROM installments i WHERE i.enrollment_id = enrollments.id AND i.status = ? AND i.paid_at IS NULL AND i.due_date <= ?)",
			models.InstallmentStatusOverdue, cutoff).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return JobResult{}, fmt.Errorf("failed to list reactivation candidates: %w", err)
	}

	result := e.runEach(ctx, "reactivate", ids, func(tx *gorm.DB, enr *models.Enrollment) (bool, error) {
		if enr.Status != models.EnrollmentStatusSuspended {
			return false, nil
		}
		owing, err := hasLongOverdue(tx, enr.ID, today, true)
		if err != nil || owing {
			return false, err
		}
		enr.TransitionTo(models.EnrollmentStatusActive)
		appendNote(enr, fmt.Sprintf("%s reactivated", today.Format(time.DateOnly)))
		return true, nil
	})

	logrus.WithFields(logrus.Fields{"scanned": result.Scanned, "reactivated": result.Processed}).Info("Reactivation check finished")
	return result, nil
}

// AutoUnfreezeEnrollments ends freezes that ran out. An enrollment that still owes
// a long-overdue installment goes to suspended instead of active.
func (e *Engine) AutoUnfreezeEnrollments(ctx context.Context) (JobResult, error) {
	today := e.today()

	var ids []uint
	err := e.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("status = ? AND frozen_until IS NOT NULL AND frozen_until <= ?", models.EnrollmentStatusFrozen, today).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return JobResult{}, fmt.Errorf("failed to list expired freezes: %w", err)
	}

	result := e.runEach(ctx, "auto_unfreeze", ids, func(tx *gorm.DB, enr *models.Enrollment) (bool, error) {
		if enr.Status != models.EnrollmentStatusFrozen || enr.FrozenUntil == nil || DateOf(*enr.FrozenUntil).After(today) {
			return false, nil
		}
		enr.ClearFreeze()

		owing, err := hasLongOverdue(tx, enr.ID, today, false)
		if err != nil {
			return false, err
		}
		if !owing {
			enr.TransitionTo(models.EnrollmentStatusActive)
			appendNote(enr, fmt.Sprintf("%s freeze ended", today.Format(time.DateOnly)))
			return true, nil
		}

		err = tx.Model(&models.Installment{}).
			Where("enrollment_id = ? AND paid_at IS NULL AND due_date < ? AND status <> ?", enr.ID, today, models.InstallmentStatusPaid).
			Update("status", models.InstallmentStatusOverdue).Error
		if err != nil {
			return false, fmt.Errorf("failed to mark overdue installments: %w", err)
		}
		enr.TransitionTo(models.EnrollmentStatusSuspended)
		appendNote(enr, fmt.Sprintf("%s freeze ended, suspended for overdue installments", today.Format(time.DateOnly)))
		return true, nil
	})

	logrus.WithFields(logrus.Fields{
		"scanned":   result.Scanned,
		"activated": result.Outcomes[models.EnrollmentStatusActive],
		"suspended": result.Outcomes[models.EnrollmentStatusSuspended],
	}).Info("Auto-unfreeze finished")
	return result, nil
}
