package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/models"
	"courseplatform_echo/internal/services"
)

type Outcome string

const (
	OutcomeCaptured        Outcome = "captured"
	OutcomeAlreadyCaptured Outcome = "already_captured"
	OutcomeNeedsApproval   Outcome = "needs_approval"
)

// CaptureResult is what a return from the gateway led to
type CaptureResult struct {
	Payment     *models.Payment           `json:"payment"`
	Outcome     Outcome                   `json:"outcome"`
	ApprovalURL string                    `json:"approval_url,omitempty"`
	Effect      *enrollment.PaymentEffect `json:"-"`
}

// PaymentByReference loads a payment of userID together with its course and instructor
func (s *Service) PaymentByReference(ctx context.Context, ref uuid.UUID, userID uint) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Preload("Course.Instructor").
		Where("reference = ? AND user_id = ?", ref, userID).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &payment, nil
}

// Return handles the payer coming back from PayPal. The order state is always read
// from PayPal, never taken from the request. orderID may be empty, in which case
// the order stored at checkout is used.
func (s *Service) Return(ctx context.Context, ref uuid.UUID, userID uint, orderID string) (*CaptureResult, error) {
	payment, err := s.PaymentByReference(ctx, ref, userID)
	if err != nil {
		return nil, err
	}
	s.record(s.db.WithContext(ctx), payment.ID, "return", map[string]string{"token": orderID})

	if orderID == "" {
		orderID = payment.OrderID
	}
	if orderID == "" {
		return nil, s.fail(ctx, payment, ReasonMissingOrder, nil)
	}

	creds, err := s.credentialsFor(payment.Course)
	if err != nil {
		return nil, s.fail(ctx, payment, ReasonGatewayError, err)
	}

	order, err := s.SafeCapture(ctx, creds, orderID)
	if err != nil {
		var fe *FailedError
		if errors.As(err, &fe) {
			return nil, s.fail(ctx, payment, fe.Reason, errors.New(fe.Detail))
		}
		return nil, s.fail(ctx, payment, ReasonGatewayError, err)
	}

	if order.Status == services.PaypalOrderPayerActionRequired {
		return &CaptureResult{Payment: payment, Outcome: OutcomeNeedsApproval, ApprovalURL: order.ApproveURL()}, nil
	}
	return s.Reconcile(ctx, payment, order)
}

// SafeCapture captures an order only when PayPal says it is ready. A completed order
// is returned as is, and an order that needs the payer again comes back with
// PAYER_ACTION_REQUIRED for the caller to redirect.
func (s *Service) SafeCapture(ctx context.Context, creds services.PaypalCredentials, orderID string) (*services.PaypalOrder, error) {
	order, err := s.gateway.GetOrder(ctx, creds, orderID)
	if err != nil {
		return nil, &FailedError{Reason: ReasonGatewayError, Detail: err.Error(), Err: err}
	}

	switch order.Status {
	case services.PaypalOrderCompleted, services.PaypalOrderPayerActionRequired:
		return order, nil
	case services.PaypalOrderApproved:
	default:
		return nil, &FailedError{Reason: ReasonOrderNotReady, Detail: "status=" + order.Status}
	}

	captured, err := s.gateway.CaptureOrder(ctx, creds, orderID)
	if services.IsAlreadyCaptured(err) {
		captured, err = s.gateway.GetOrder(ctx, creds, orderID)
	}
	if err != nil {
		return nil, &FailedError{Reason: ReasonGatewayError, Detail: err.Error(), Err: err}
	}
	return captured, nil
}

// VerifyCapture checks the settled amount and currency against what the payment asked for
func VerifyCapture(payment *models.Payment, order *services.PaypalOrder) (captureID string, err error) {
	captureID, amount := order.CapturedAmount()
	if amount == nil || amount.Value == "" || amount.CurrencyCode == "" {
		return "", &FailedError{Reason: ReasonMissingAmount, Detail: "status=" + order.Status}
	}

	got, perr := decimal.NewFromString(amount.Value)
	if perr != nil {
		return "", &FailedError{Reason: ReasonMissingAmount, Detail: perr.Error()}
	}
	if !got.Round(2).Equal(payment.Amount.Round(2)) {
		return "", &FailedError{
			Reason: ReasonAmountMismatch,
			Detail: fmt.Sprintf("got=%s expected=%s", got.StringFixed(2), payment.Amount.StringFixed(2)),
		}
	}
	if !strings.EqualFold(amount.CurrencyCode, payment.Currency) {
		return "", &FailedError{
			Reason: ReasonCurrencyMismatch,
			Detail: fmt.Sprintf("got=%s expected=%s", amount.CurrencyCode, payment.Currency),
		}
	}

	if order.Status != services.PaypalOrderCompleted && captureID == "" {
		return "", &FailedError{Reason: ReasonUnexpectedStatus, Detail: "status=" + order.Status}
	}
	return captureID, nil
}

// Reconcile verifies a captured order and commits its effect exactly once
func (s *Service) Reconcile(ctx context.Context, payment *models.Payment, order *services.PaypalOrder) (*CaptureResult, error) {
	payment.RawResponse = datatypes.JSON(order.Raw)
	s.record(s.db.WithContext(ctx), payment.ID, "capture", order.Raw)

	captureID, err := VerifyCapture(payment, order)
	if err != nil {
		var fe *FailedError
		errors.As(err, &fe)
		return nil, s.fail(ctx, payment, fe.Reason, errors.New(fe.Detail))
	}

	return s.commitCapture(ctx, payment.ID, captureID, order.Raw)
}

// commitCapture marks the payment captured under a row lock. The coupon use and the
// enrollment effect are applied only by the call that performs the transition.
func (s *Service) commitCapture(ctx context.Context, paymentID uint, captureID string, raw []byte) (*CaptureResult, error) {
	result := &CaptureResult{Outcome: OutcomeAlreadyCaptured}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, paymentID).Error; err != nil {
			return fmt.Errorf("failed to lock payment: %w", err)
		}
		first := locked.Status != models.PaymentStatusCaptured

		updates := map[string]interface{}{
			"status":         models.PaymentStatusCaptured,
			"failure_reason": "",
		}
		if captureID != "" {
			updates["capture_id"] = captureID
		}
		if len(raw) > 0 {
			updates["raw_response"] = datatypes.JSON(raw)
		}
		if err := tx.Model(&models.Payment{ID: locked.ID}).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to mark payment captured: %w", err)
		}
		locked.Status = models.PaymentStatusCaptured
		if captureID != "" {
			locked.CaptureID = captureID
		}
		result.Payment = &locked

		if !first {
			return nil
		}
		result.Outcome = OutcomeCaptured

		if locked.CouponID != nil {
			err := tx.Model(&models.Coupon{}).
				Where("id = ?", *locked.CouponID).
				UpdateColumn("used_count", gorm.Expr("used_count + ?", 1)).Error
			if err != nil {
				return fmt.Errorf("failed to count coupon use: %w", err)
			}
		}

		var course models.Course
		if err := tx.First(&course, locked.CourseID).Error; err != nil {
			return fmt.Errorf("failed to load course: %w", err)
		}
		locked.Course = &course

		effect, err := s.engine.ApplyPayment(tx, &locked)
		if err != nil {
			return err
		}
		result.Effect = effect
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomeCaptured {
		logrus.WithFields(logrus.Fields{
			"payment_id":    paymentID,
			"enrollment_id": result.Effect.Enrollment.ID,
		}).Info("Payment captured")
		if s.confirmer != nil {
			s.confirmer.PaymentCaptured(ctx, paymentID)
		}
	}
	return result, nil
}

// CancelReturn handles the payer abandoning the PayPal page
func (s *Service) CancelReturn(ctx context.Context, ref uuid.UUID, userID uint) (*models.Payment, error) {
	payment, err := s.PaymentByReference(ctx, ref, userID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusCaptured {
		return nil, ErrAlreadyCaptured
	}

	s.record(s.db.WithContext(ctx), payment.ID, "cancelled", nil)
	_ = s.fail(ctx, payment, ReasonCancelled, nil)
	return payment, nil
}

// BankCapture confirms a bank transfer. Operator only.
func (s *Service) BankCapture(ctx context.Context, paymentID, operatorID uint) (*CaptureResult, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).First(&payment, paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment.Method != models.PaymentMethodBank {
		return nil, ErrNotBankTransfer
	}

	s.record(s.db.WithContext(ctx), payment.ID, "bank_capture", map[string]uint{"operator_id": operatorID})
	return s.commitCapture(ctx, payment.ID, "", nil)
}
