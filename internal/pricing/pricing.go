// Package pricing computes what a checkout costs: the base amount for the chosen
// payment mode and the discount of an optional coupon.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
)

var (
	ErrInvalidMode        = errors.New("payment mode must be full or installment")
	ErrInstallmentsNotSet = errors.New("course is not sold in installments")
	ErrStepAlreadyPaid    = errors.New("installment is already paid")
)

var hundred = decimal.NewFromInt(100)

// Request describes what the user wants to pay for
type Request struct {
	Course     *models.Course
	UserID     uint
	Mode       models.PaymentMode
	CouponCode string
	Step       *int
}

// Quote is the priced checkout
type Quote struct {
	Base     decimal.Decimal `json:"base_amount"`
	Discount decimal.Decimal `json:"discount_amount"`
	Final    decimal.Decimal `json:"final_amount"`
	Currency string          `json:"currency"`
	Coupon   *models.Coupon  `json:"coupon,omitempty"`
	// Step is the installment being paid, when known
	Step *int `json:"step,omitempty"`
}

type Engine struct {
	db  *gorm.DB
	now func() time.Time
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db, now: time.Now}
}

// WithClock swaps the time source used for coupon windows
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Quote prices a checkout. A coupon that does not apply is ignored rather than
// reported, so the quote falls back to the base amount.
func (e *Engine) Quote(ctx context.Context, req Request) (*Quote, error) {
	db := e.db.WithContext(ctx)

	q := &Quote{Currency: req.Course.Currency}
	switch req.Mode {
	case models.PaymentModeFull:
		q.Base = req.Course.Price
	case models.PaymentModeInstallment:
		if !req.Course.UsesInstallments() {
			return nil, ErrInstallmentsNotSet
		}
		base, step, err := installmentBase(db, req)
		if err != nil {
			return nil, err
		}
		q.Base, q.Step = base, step
	default:
		return nil, ErrInvalidMode
	}

	q.Discount = decimal.Zero
	q.Final = q.Base

	if code := strings.TrimSpace(req.CouponCode); code != "" {
		coupon, err := e.ResolveCoupon(db, code, req.Course)
		if err != nil {
			return nil, err
		}
		if coupon != nil {
			q.Discount, q.Final = ApplyDiscount(q.Base, coupon.Percent)
			q.Coupon = coupon
		}
	}
	return q, nil
}

// installmentBase prices one installment: the requested step, else the next unpaid
// one. Before the schedule exists it is an even share of the price.
func installmentBase(db *gorm.DB, req Request) (decimal.Decimal, *int, error) {
	var enr models.Enrollment
	err := db.Where("user_id = ? AND course_id = ?", req.UserID, req.Course.ID).First(&enr).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil, fmt.Errorf("failed to load enrollment: %w", err)
	}

	if err == nil {
		var inst models.Installment
		var found bool
		if req.Step != nil {
			found, err = first(db.Where("enrollment_id = ? AND step = ?", enr.ID, *req.Step), &inst)
		} else {
			for _, status := range []models.InstallmentStatus{models.InstallmentStatusDue, models.InstallmentStatusOverdue} {
				found, err = first(db.Where("enrollment_id = ? AND status = ?", enr.ID, status).Order("step ASC"), &inst)
				if err != nil || found {
					break
				}
			}
		}
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("failed to load installment: %w", err)
		}
		if found {
			if inst.IsPaid() {
				return decimal.Zero, nil, ErrStepAlreadyPaid
			}
			step := inst.Step
			return inst.Amount, &step, nil
		}
		// every step of an existing schedule is settled
		var scheduled int64
		if err := db.Model(&models.Installment{}).Where("enrollment_id = ?", enr.ID).Count(&scheduled).Error; err != nil {
			return decimal.Zero, nil, fmt.Errorf("failed to count installments: %w", err)
		}
		if req.Step == nil && scheduled > 0 {
			return decimal.Zero, nil, ErrStepAlreadyPaid
		}
	}

	share := req.Course.Price.Div(decimal.NewFromInt(int64(req.Course.InstallmentsCount))).Round(2)
	return share, req.Step, nil
}

func first(q *gorm.DB, dest *models.Installment) (bool, error) {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ResolveCoupon looks a code up case-insensitively and returns it only when it is
// usable for course right now
func (e *Engine) ResolveCoupon(db *gorm.DB, code string, course *models.Course) (*models.Coupon, error) {
	var coupon models.Coupon
	err := db.Preload("Courses").
		Where("LOWER(code) = ?", strings.ToLower(strings.TrimSpace(code))).
		First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}

	if !coupon.IsActiveNow(e.now()) || !coupon.IsValidFor(*course) {
		logrus.WithFields(logrus.Fields{"coupon": coupon.Code, "course_id": course.ID}).Debug("Coupon rejected")
		return nil, nil
	}
	return &coupon, nil
}

// ApplyDiscount takes percent off base, rounding the discount half-up to cents
func ApplyDiscount(base, percent decimal.Decimal) (discount, final decimal.Decimal) {
	discount = base.Mul(percent).Div(hundred).Round(2)
	if discount.GreaterThan(base) {
		discount = base
	}
	return discount, base.Sub(discount)
}
