package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
)

// MaxFreezeDays is the lifetime freeze allowance of one enrollment
const MaxFreezeDays = 90

// FreezeRequest is a user asking to pause their enrollment
type FreezeRequest struct {
	EnrollmentID uint
	UserID       uint
	Days         int
	Password     string
}

// CheckFreezeAllowance validates a freeze of days against what the enrollment has used
func CheckFreezeAllowance(used, days int) error {
	if days < 1 || days > MaxFreezeDays {
		return ErrInvalidFreezeDays
	}
	if used+days > MaxFreezeDays {
		return ErrFreezeCapExceeded
	}
	return nil
}

// Freeze pauses an active enrollment for the requested number of days after the
// owner re-confirms their password
func (e *Engine) Freeze(ctx context.Context, req FreezeRequest) (*models.Enrollment, error) {
	var enr *models.Enrollment
	var prev models.EnrollmentStatus

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		enr, err = lockEnrollment(tx, req.EnrollmentID)
		if err != nil {
			return err
		}
		if enr.UserID != req.UserID {
			return ErrEnrollmentNotFound
		}
		if enr.Status != models.EnrollmentStatusActive {
			return ErrNotActive
		}
		if err := CheckFreezeAllowance(enr.FreezeDaysUsed, req.Days); err != nil {
			return err
		}

		var user models.User
		if err := tx.First(&user, enr.UserID).Error; err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			return ErrWrongPassword
		}

		today := e.today()
		until := today.AddDate(0, 0, req.Days)
		prev = enr.TransitionTo(models.EnrollmentStatusFrozen)
		enr.FrozenStartedAt = &today
		enr.FrozenUntil = &until
		enr.FreezeDaysUsed += req.Days
		appendNote(enr, fmt.Sprintf("%s frozen for %d days until %s",
			today.Format(time.DateOnly), req.Days, until.Format(time.DateOnly)))

		return saveLifecycle(tx, enr)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"enrollment_id": enr.ID,
		"days":          req.Days,
		"used":          enr.FreezeDaysUsed,
	}).Info("Enrollment frozen")

	e.notifyTransition(ctx, enr.ID, prev, enr.Status)
	return enr, nil
}

// Unfreeze ends a freeze early. Used days are not refunded.
func (e *Engine) Unfreeze(ctx context.Context, enrollmentID, userID uint) (*models.Enrollment, error) {
	var enr *models.Enrollment

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		enr, err = lockEnrollment(tx, enrollmentID)
		if err != nil {
			return err
		}
		if enr.UserID != userID {
			return ErrEnrollmentNotFound
		}
		if enr.Status != models.EnrollmentStatusFrozen {
			return ErrNotFrozen
		}

		enr.TransitionTo(models.EnrollmentStatusActive)
		enr.ClearFreeze()
		appendNote(enr, fmt.Sprintf("%s unfrozen by user", e.today().Format(time.DateOnly)))
		return saveLifecycle(tx, enr)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithField("enrollment_id", enr.ID).Info("Enrollment unfrozen")
	return enr, nil
}

// EffectiveOverdueDays is how late an installment due on due is as of today, not
// counting days covered by the enrollment's current freeze window
func EffectiveOverdueDays(due, today time.Time, enr *models.Enrollment) int {
	days := DaysBetween(due, today)

	overlap := 0
	if enr.Status == models.EnrollmentStatusFrozen && enr.FrozenStartedAt != nil && enr.FrozenUntil != nil {
		fs := DateOf(*enr.FrozenStartedAt)
		fu := DateOf(*enr.FrozenUntil)
		if today.Before(fu) {
			fu = today
		}
		if !fs.After(fu) {
			start := DateOf(due)
			if fs.After(start) {
				start = fs
			}
			if fu.After(start) {
				overlap = DaysBetween(start, fu)
			}
		}
	}

	if effective := days - overlap; effective > 0 {
		return effective
	}
	return 0
}
