package enrollment

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
)

// EnsurePartAccessPlan maps the course's first active parts onto installment steps
// 1..N. It leaves an existing plan alone unless overwrite is set, and does nothing
// for courses sold without installments, which keeps those enrollments on full access.
func EnsurePartAccessPlan(tx *gorm.DB, enr *models.Enrollment, course *models.Course, overwrite bool) (int, error) {
	if !course.UsesInstallments() {
		return 0, nil
	}

	var existing int64
	if err := tx.Model(&models.PartAccess{}).Where("enrollment_id = ?", enr.ID).Count(&existing).Error; err != nil {
		return 0, fmt.Errorf("failed to count part access: %w", err)
	}
	if existing > 0 {
		if !overwrite {
			return 0, nil
		}
		if err := tx.Where("enrollment_id = ?", enr.ID).Delete(&models.PartAccess{}).Error; err != nil {
			return 0, fmt.Errorf("failed to clear part access: %w", err)
		}
	}

	var parts []models.CoursePart
	err := tx.Where("course_id = ? AND is_active = ?", course.ID, true).
		Order("order_index ASC, id ASC").
		Limit(course.InstallmentsCount).
		Find(&parts).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load course parts: %w", err)
	}
	if len(parts) == 0 {
		return 0, nil
	}

	rows := make([]models.PartAccess, 0, len(parts))
	for i, part := range parts {
		rows = append(rows, models.PartAccess{
			EnrollmentID: enr.ID,
			PartID:       part.ID,
			UnlockStep:   i + 1,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("failed to create part access: %w", err)
	}
	return len(rows), nil
}

// PaidCount returns how many installments of the enrollment are paid
func PaidCount(tx *gorm.DB, enrollmentID uint) (int, error) {
	var paid int64
	err := tx.Model(&models.Installment{}).
		Where("enrollment_id = ? AND status = ?", enrollmentID, models.InstallmentStatusPaid).
		Count(&paid).Error
	return int(paid), err
}

// UnlockPaidParts stamps unlocked_at on every plan row whose step is covered by the
// paid installments. Rows that are already unlocked are never touched.
func UnlockPaidParts(tx *gorm.DB, enrollmentID uint, now time.Time) (int64, error) {
	paid, err := PaidCount(tx, enrollmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to count paid installments: %w", err)
	}

	res := tx.Model(&models.PartAccess{}).
		Where("enrollment_id = ? AND unlock_step <= ? AND unlocked_at IS NULL", enrollmentID, paid).
		Update("unlocked_at", now)
	return res.RowsAffected, res.Error
}
