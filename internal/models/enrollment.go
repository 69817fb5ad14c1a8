package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatus is the lifecycle state of an enrollment
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusFrozen    EnrollmentStatus = "frozen"
	EnrollmentStatusSuspended EnrollmentStatus = "suspended"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
)

// Enrollment ties a user to a course. Rows are never deleted; cancellation is a status.
type Enrollment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID   uint `gorm:"uniqueIndex:idx_enrollments_user_course" json:"user_id"`
	CourseID uint `gorm:"uniqueIndex:idx_enrollments_user_course;index" json:"course_id"`

	Status          EnrollmentStatus `gorm:"type:varchar(20);default:'active';index" json:"status"`
	StartedAt       time.Time        `gorm:"type:date" json:"started_at"`
	ExpiresAt       *time.Time       `gorm:"type:date" json:"expires_at"`
	FrozenStartedAt *time.Time       `gorm:"type:date" json:"frozen_started_at"`
	FrozenUntil     *time.Time       `gorm:"type:date" json:"frozen_until"`
	FreezeDaysUsed  int              `gorm:"default:0" json:"freeze_days_used"`
	Notes           string           `gorm:"type:text" json:"notes,omitempty"`

	// Relationships
	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Course       *Course       `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Installments []Installment `gorm:"foreignKey:EnrollmentID" json:"installments,omitempty"`
	PartAccesses []PartAccess  `gorm:"foreignKey:EnrollmentID" json:"part_accesses,omitempty"`
}

// TransitionTo moves the enrollment to next and returns the status it had before
func (e *Enrollment) TransitionTo(next EnrollmentStatus) EnrollmentStatus {
	prev := e.Status
	e.Status = next
	return prev
}

// IsActiveForAccess reports whether the enrollment currently grants any content access
func (e Enrollment) IsActiveForAccess(today time.Time) bool {
	if e.Status != EnrollmentStatusActive {
		return false
	}
	return e.ExpiresAt == nil || !e.ExpiresAt.Before(today)
}

// ClearFreeze drops the current freeze window. Used days stay consumed.
func (e *Enrollment) ClearFreeze() {
	e.FrozenStartedAt = nil
	e.FrozenUntil = nil
}

// InstallmentStatus is the payment state of one installment
type InstallmentStatus string

const (
	InstallmentStatusDue     InstallmentStatus = "due"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusOverdue InstallmentStatus = "overdue"
)

// Installment is one step of an enrollment's payment schedule
type Installment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EnrollmentID uint              `gorm:"uniqueIndex:idx_installments_enrollment_step" json:"enrollment_id"`
	Step         int               `gorm:"uniqueIndex:idx_installments_enrollment_step" json:"step"`
	Amount       decimal.Decimal   `gorm:"type:decimal(10,2)" json:"amount"`
	DueDate      time.Time         `gorm:"type:date;index" json:"due_date"`
	Status       InstallmentStatus `gorm:"type:varchar(20);default:'due';index" json:"status"`
	PaidAt       *time.Time        `json:"paid_at"`

	Enrollment *Enrollment `gorm:"foreignKey:EnrollmentID" json:"enrollment,omitempty"`
}

// IsPaid reports whether the installment has been settled
func (i Installment) IsPaid() bool {
	return i.Status == InstallmentStatusPaid
}

// PartAccess says which installment step unlocks a course part for an enrollment
type PartAccess struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EnrollmentID uint       `gorm:"uniqueIndex:idx_part_accesses_enrollment_part;uniqueIndex:idx_part_accesses_enrollment_step" json:"enrollment_id"`
	PartID       uint       `gorm:"uniqueIndex:idx_part_accesses_enrollment_part" json:"part_id"`
	UnlockStep   int        `gorm:"uniqueIndex:idx_part_accesses_enrollment_step" json:"unlock_step"`
	UnlockedAt   *time.Time `json:"unlocked_at"`

	Part *CoursePart `gorm:"foreignKey:PartID" json:"part,omitempty"`
}
