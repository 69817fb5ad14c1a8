package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentMode string

const (
	PaymentModeFull        PaymentMode = "full"
	PaymentModeInstallment PaymentMode = "installment"
)

type PaymentMethod string

const (
	PaymentMethodPaypal PaymentMethod = "paypal"
	PaymentMethodBank   PaymentMethod = "bank"
)

type PaymentStatus string

const (
	PaymentStatusCreated  PaymentStatus = "created"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusCaptured PaymentStatus = "captured"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// Payment records one checkout attempt. Retries create a new row.
type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Reference uuid.UUID     `gorm:"type:uuid;uniqueIndex" json:"reference"`
	UserID    uint          `gorm:"index" json:"user_id"`
	CourseID  uint          `gorm:"index" json:"course_id"`
	Mode      PaymentMode   `gorm:"type:varchar(20)" json:"mode"`
	Method    PaymentMethod `gorm:"type:varchar(20);default:'paypal'" json:"method"`
	Step      *int          `json:"step,omitempty"`

	Amount         decimal.Decimal `gorm:"type:decimal(10,2)" json:"amount"`
	Currency       string          `gorm:"type:varchar(8);default:'USD'" json:"currency"`
	CouponID       *uint           `gorm:"index" json:"coupon_id,omitempty"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2)" json:"discount_amount"`

	OrderID       string         `gorm:"type:varchar(100);index" json:"order_id,omitempty"`
	CaptureID     string         `gorm:"type:varchar(100)" json:"capture_id,omitempty"`
	Status        PaymentStatus  `gorm:"type:varchar(20);default:'created';index" json:"status"`
	FailureReason string         `gorm:"type:varchar(100)" json:"failure_reason,omitempty"`
	RawResponse   datatypes.JSON `json:"raw_response,omitempty"`

	EnrollmentID  *uint `gorm:"index" json:"enrollment_id,omitempty"`
	InstallmentID *uint `json:"installment_id,omitempty"`

	User        *User        `gorm:"foreignKey:UserID" json:"-"`
	Course      *Course      `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Coupon      *Coupon      `gorm:"foreignKey:CouponID" json:"coupon,omitempty"`
	Enrollment  *Enrollment  `gorm:"foreignKey:EnrollmentID" json:"-"`
	Installment *Installment `gorm:"foreignKey:InstallmentID" json:"-"`
}
