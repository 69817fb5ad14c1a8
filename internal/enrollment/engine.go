package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"courseplatform_echo/internal/models"
)

const (
	// AccessPeriodDays is how long an enrollment grants access when no expiry is given
	AccessPeriodDays = 365
	// SuspendAfterDays is the effective lateness that suspends an enrollment
	SuspendAfterDays = 60
)

// Notifier receives the lifecycle transitions users are told about
type Notifier interface {
	EnrollmentSuspended(ctx context.Context, enrollmentID uint)
	EnrollmentFrozen(ctx context.Context, enrollmentID uint)
}

// Engine owns enrollment state: schedules, part access, and status transitions
type Engine struct {
	db       *gorm.DB
	notifier Notifier
	now      func() time.Time
}

func NewEngine(db *gorm.DB, notifier Notifier) *Engine {
	return &Engine{db: db, notifier: notifier, now: time.Now}
}

// WithClock swaps the time source
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) today() time.Time {
	return DateOf(e.now())
}

// notifyTransition tells the user about a status change into suspended or frozen.
// It must run after the change is committed.
func (e *Engine) notifyTransition(ctx context.Context, enrollmentID uint, prev, next models.EnrollmentStatus) {
	if e.notifier == nil || prev == next {
		return
	}
	switch next {
	case models.EnrollmentStatusSuspended:
		e.notifier.EnrollmentSuspended(ctx, enrollmentID)
	case models.EnrollmentStatusFrozen:
		e.notifier.EnrollmentFrozen(ctx, enrollmentID)
	}
}

// lockEnrollment loads an enrollment row with a row lock held until tx ends
func lockEnrollment(tx *gorm.DB, id uint) (*models.Enrollment, error) {
	var enr models.Enrollment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&enr, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment %d: %w", id, err)
	}
	return &enr, nil
}

func saveLifecycle(tx *gorm.DB, enr *models.Enrollment) error {
	return tx.Model(enr).
		Select("status", "frozen_started_at", "frozen_until", "freeze_days_used", "notes").
		Updates(enr).Error
}

func appendNote(enr *models.Enrollment, note string) {
	if enr.Notes != "" {
		enr.Notes += "\n"
	}
	enr.Notes += note
}

// GetOrCreate returns the user's enrollment in course, creating it with its
// installment schedule and part access plan when it does not exist yet
func (e *Engine) GetOrCreate(tx *gorm.DB, userID uint, course *models.Course) (*models.Enrollment, bool, error) {
	var enr models.Enrollment
	err := tx.Where("user_id = ? AND course_id = ?", userID, course.ID).First(&enr).Error
	if err == nil {
		return &enr, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to load enrollment: %w", err)
	}

	started := e.today()
	expires := started.AddDate(0, 0, AccessPeriodDays)
	enr = models.Enrollment{
		UserID:    userID,
		CourseID:  course.ID,
		Status:    models.EnrollmentStatusActive,
		StartedAt: started,
		ExpiresAt: &expires,
	}
	if err := tx.Create(&enr).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create enrollment: %w", err)
	}

	if course.UsesInstallments() {
		installments := BuildInstallments(course.Price, course.InstallmentsCount, started)
		for i := range installments {
			installments[i].EnrollmentID = enr.ID
		}
		if err := tx.Create(&installments).Error; err != nil {
			return nil, false, fmt.Errorf("failed to create installments: %w", err)
		}
	}

	if _, err := EnsurePartAccessPlan(tx, &enr, course, false); err != nil {
		return nil, false, err
	}

	logrus.WithFields(logrus.Fields{
		"enrollment_id": enr.ID,
		"user_id":       userID,
		"course_id":     course.ID,
	}).Info("Enrollment created")

	return &enr, true, nil
}

// Enroll creates (or returns) an enrollment on behalf of an operator
func (e *Engine) Enroll(ctx context.Context, userID, courseID uint) (*models.Enrollment, error) {
	var enr *models.Enrollment
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var course models.Course
		if err := tx.First(&course, courseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCourseNotFound
			}
			return err
		}

		var err error
		enr, _, err = e.GetOrCreate(tx, userID, &course)
		return err
	})
	return enr, err
}

// PaymentEffect is what a captured payment changed
type PaymentEffect struct {
	Enrollment  *models.Enrollment
	Installment *models.Installment
}

// ApplyPayment records the financial effect of a captured payment inside tx: a full
// payment settles every installment, an installment payment settles its step (or the
// lowest due one). Paid steps unlock their parts and may lift a suspension.
// payment.Course must be loaded.
func (e *Engine) ApplyPayment(tx *gorm.DB, payment *models.Payment) (*PaymentEffect, error) {
	if payment.Course == nil {
		return nil, fmt.Errorf("payment %d has no course loaded", payment.ID)
	}

	enr, _, err := e.GetOrCreate(tx, payment.UserID, payment.Course)
	if err != nil {
		return nil, err
	}
	if _, err := EnsurePartAccessPlan(tx, enr, payment.Course, false); err != nil {
		return nil, err
	}

	now := e.now()
	effect := &PaymentEffect{Enrollment: enr}

	switch payment.Mode {
	case models.PaymentModeFull:
		err := tx.Model(&models.Installment{}).
			Where("enrollment_id = ? AND status <> ?", enr.ID, models.InstallmentStatusPaid).
			Updates(map[string]interface{}{"status": models.InstallmentStatusPaid, "paid_at": now}).Error
		if err != nil {
			return nil, fmt.Errorf("failed to settle installments: %w", err)
		}

	case models.PaymentModeInstallment:
		inst, err := findPayableInstallment(tx, enr.ID, payment.Step)
		if err != nil {
			return nil, err
		}
		if inst != nil && !inst.IsPaid() {
			inst.Status = models.InstallmentStatusPaid
			inst.PaidAt = &now
			if err := tx.Model(inst).Select("status", "paid_at").Updates(inst).Error; err != nil {
				return nil, fmt.Errorf("failed to settle installment %d: %w", inst.ID, err)
			}
		}
		effect.Installment = inst
	}

	links := map[string]interface{}{"enrollment_id": enr.ID}
	payment.EnrollmentID = &enr.ID
	if effect.Installment != nil {
		links["installment_id"] = effect.Installment.ID
		payment.InstallmentID = &effect.Installment.ID
	}
	if err := tx.Model(&models.Payment{ID: payment.ID}).Updates(links).Error; err != nil {
		return nil, fmt.Errorf("failed to link payment: %w", err)
	}

	if err := e.afterInstallmentPaid(tx, enr, now); err != nil {
		return nil, err
	}
	return effect, nil
}

func findPayableInstallment(tx *gorm.DB, enrollmentID uint, step *int) (*models.Installment, error) {
	var inst models.Installment

	if step != nil {
		err := tx.Where("enrollment_id = ? AND step = ?", enrollmentID, *step).First(&inst).Error
		if err == nil {
			return &inst, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	err := tx.Where("enrollment_id = ? AND status = ?", enrollmentID, models.InstallmentStatusDue).
		Order("step ASC").
		First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// afterInstallmentPaid unlocks newly covered parts and reactivates a suspended
// enrollment whose long-overdue debt is gone
func (e *Engine) afterInstallmentPaid(tx *gorm.DB, enr *models.Enrollment, now time.Time) error {
	if _, err := UnlockPaidParts(tx, enr.ID, now); err != nil {
		return fmt.Errorf("failed to unlock parts: %w", err)
	}

	if enr.Status != models.EnrollmentStatusSuspended {
		return nil
	}

	stillOverdue, err := hasLongOverdue(tx, enr.ID, DateOf(now), true)
	if err != nil {
		return err
	}
	if stillOverdue {
		return nil
	}

	enr.TransitionTo(models.EnrollmentStatusActive)
	if err := saveLifecycle(tx, enr); err != nil {
		return fmt.Errorf("failed to reactivate enrollment: %w", err)
	}
	logrus.WithField("enrollment_id", enr.ID).Info("Enrollment reactivated after payment")
	return nil
}

// hasLongOverdue reports whether the enrollment owes an installment at least
// SuspendAfterDays past due, the same boundary the suspension check uses.
// With overdueOnly, only rows already marked overdue count.
func hasLongOverdue(tx *gorm.DB, enrollmentID uint, today time.Time, overdueOnly bool) (bool, error) {
	cutoff := today.AddDate(0, 0, -SuspendAfterDays)

	q := tx.Model(&models.Installment{}).
		Where("enrollment_id = ? AND paid_at IS NULL AND due_date <= ?", enrollmentID, cutoff)
	if overdueOnly {
		q = q.Where("status = ?", models.InstallmentStatusOverdue)
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check overdue installments: %w", err)
	}
	return n > 0, nil
}

// RegeneratePlan rebuilds the part access plan. Steps already paid are unlocked again.
func (e *Engine) RegeneratePlan(ctx context.Context, enrollmentID uint, overwrite bool) (int, error) {
	created := 0
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enr, err := lockEnrollment(tx, enrollmentID)
		if err != nil {
			return err
		}

		var course models.Course
		if err := tx.First(&course, enr.CourseID).Error; err != nil {
			return fmt.Errorf("failed to load course: %w", err)
		}

		created, err = EnsurePartAccessPlan(tx, enr, &course, overwrite)
		if err != nil {
			return err
		}
		_, err = UnlockPaidParts(tx, enr.ID, e.now())
		return err
	})
	return created, err
}

// Cancel ends an enrollment. Operator only.
func (e *Engine) Cancel(ctx context.Context, enrollmentID uint, reason string) (*models.Enrollment, error) {
	var enr *models.Enrollment
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		enr, err = lockEnrollment(tx, enrollmentID)
		if err != nil {
			return err
		}
		if enr.Status == models.EnrollmentStatusCancelled {
			return ErrAlreadyCancelled
		}

		enr.TransitionTo(models.EnrollmentStatusCancelled)
		enr.ClearFreeze()
		appendNote(enr, fmt.Sprintf("%s cancelled: %s", e.today().Format(time.DateOnly), reason))
		return saveLifecycle(tx, enr)
	})
	return enr, err
}
