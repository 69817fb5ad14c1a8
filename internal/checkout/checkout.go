// Package checkout turns quotes into payments: it opens gateway orders, captures
// them safely, and hands verified payments to the enrollment engine.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/models"
	"courseplatform_echo/internal/pricing"
	"courseplatform_echo/internal/services"
)

// Gateway is the payment processor
type Gateway interface {
	CreateOrder(ctx context.Context, creds services.PaypalCredentials, in services.CreateOrderRequest) (*services.PaypalOrder, error)
	GetOrder(ctx context.Context, creds services.PaypalCredentials, orderID string) (*services.PaypalOrder, error)
	CaptureOrder(ctx context.Context, creds services.PaypalCredentials, orderID string) (*services.PaypalOrder, error)
}

// Confirmer is told about payments once their effect is committed
type Confirmer interface {
	PaymentCaptured(ctx context.Context, paymentID uint)
}

// Options carries the settings a Service needs besides its collaborators
type Options struct {
	AppURL              string
	PlatformCredentials services.PaypalCredentials
	BankDetails         string
}

type Service struct {
	db          *gorm.DB
	gateway     Gateway
	pricer      *pricing.Engine
	engine      *enrollment.Engine
	secrets     SecretOpener
	confirmer   Confirmer
	platform    services.PaypalCredentials
	appURL      string
	bankDetails string
}

func NewService(db *gorm.DB, gateway Gateway, pricer *pricing.Engine, engine *enrollment.Engine, secrets SecretOpener, confirmer Confirmer, opts Options) *Service {
	return &Service{
		db:          db,
		gateway:     gateway,
		pricer:      pricer,
		engine:      engine,
		secrets:     secrets,
		confirmer:   confirmer,
		platform:    opts.PlatformCredentials,
		appURL:      strings.TrimRight(opts.AppURL, "/"),
		bankDetails: opts.BankDetails,
	}
}

// Request is a user starting a checkout
type Request struct {
	UserID     uint
	CourseID   uint
	Mode       models.PaymentMode
	Method     models.PaymentMethod
	Step       *int
	CouponCode string
}

// Result tells the client where to go next
type Result struct {
	Payment     *models.Payment `json:"payment"`
	Quote       *pricing.Quote  `json:"quote"`
	ApprovalURL string          `json:"approval_url,omitempty"`
	BankDetails string          `json:"bank_details,omitempty"`
}

func (s *Service) loadCourse(db *gorm.DB, courseID uint) (*models.Course, error) {
	var course models.Course
	err := db.Preload("Instructor").First(&course, courseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load course: %w", err)
	}
	return &course, nil
}

// Quote prices a checkout without creating anything
func (s *Service) Quote(ctx context.Context, req Request) (*pricing.Quote, error) {
	course, err := s.loadCourse(s.db.WithContext(ctx), req.CourseID)
	if err != nil {
		return nil, err
	}
	return s.pricer.Quote(ctx, pricing.Request{
		Course:     course,
		UserID:     req.UserID,
		Mode:       req.Mode,
		CouponCode: req.CouponCode,
		Step:       req.Step,
	})
}

// Checkout records a new payment attempt. PayPal payments get a gateway order and an
// approval link; bank transfers wait for an operator to confirm the money arrived.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	if req.Method == "" {
		req.Method = models.PaymentMethodPaypal
	}
	if req.Method != models.PaymentMethodPaypal && req.Method != models.PaymentMethodBank {
		return nil, ErrInvalidMethod
	}

	db := s.db.WithContext(ctx)
	course, err := s.loadCourse(db, req.CourseID)
	if err != nil {
		return nil, err
	}

	quote, err := s.pricer.Quote(ctx, pricing.Request{
		Course:     course,
		UserID:     req.UserID,
		Mode:       req.Mode,
		CouponCode: req.CouponCode,
		Step:       req.Step,
	})
	if err != nil {
		return nil, err
	}
	if !quote.Final.IsPositive() {
		return nil, ErrAmountNotPositive
	}

	payment := &models.Payment{
		Reference:      uuid.New(),
		UserID:         req.UserID,
		CourseID:       course.ID,
		Mode:           req.Mode,
		Method:         req.Method,
		Step:           quote.Step,
		Amount:         quote.Final,
		Currency:       course.Currency,
		DiscountAmount: quote.Discount,
		Status:         models.PaymentStatusCreated,
	}
	if quote.Coupon != nil {
		payment.CouponID = &quote.Coupon.ID
	}
	if err := db.Create(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	result := &Result{Payment: payment, Quote: quote}
	if req.Method == models.PaymentMethodBank {
		result.BankDetails = s.bankDetails
		logrus.WithField("payment_id", payment.ID).Info("Bank transfer payment created")
		return result, nil
	}

	creds, err := s.credentialsFor(course)
	if err != nil {
		return nil, s.fail(ctx, payment, ReasonGatewayError, err)
	}

	ref := payment.Reference.String()
	order, err := s.gateway.CreateOrder(ctx, creds, services.CreateOrderRequest{
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		ReturnURL:   fmt.Sprintf("%s/payments/%s/return", s.appURL, ref),
		CancelURL:   fmt.Sprintf("%s/payments/%s/cancel", s.appURL, ref),
		Description: course.Title,
		CustomID:    ref,
	})
	if err != nil {
		return nil, s.fail(ctx, payment, ReasonGatewayError, err)
	}
	s.record(db, payment.ID, "create_order", order.Raw)

	if order.ID == "" {
		return nil, s.fail(ctx, payment, ReasonMissingOrder, nil)
	}
	payment.OrderID = order.ID
	payment.RawResponse = datatypes.JSON(order.Raw)
	if err := db.Model(payment).Select("order_id", "raw_response").Updates(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to store order id: %w", err)
	}

	result.ApprovalURL = order.ApproveURL()
	logrus.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"order_id":   order.ID,
		"amount":     payment.Amount.StringFixed(2),
	}).Info("PayPal order created")
	return result, nil
}

// fail marks a payment failed and returns the matching error. Captured payments
// are never downgraded.
func (s *Service) fail(ctx context.Context, payment *models.Payment, reason string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}

	if payment.Status != models.PaymentStatusCaptured {
		payment.Status = models.PaymentStatusFailed
		payment.FailureReason = reason
		err := s.db.WithContext(ctx).Model(payment).
			Where("status <> ?", models.PaymentStatusCaptured).
			Select("status", "failure_reason", "raw_response").
			Updates(payment).Error
		if err != nil {
			logrus.WithError(err).WithField("payment_id", payment.ID).Error("Failed to mark payment failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"reason":     reason,
	}).Warn("Payment failed: ", detail)
	return &FailedError{Reason: reason, Detail: detail, Err: cause}
}

// record appends a gateway round-trip to the payment's callback history
func (s *Service) record(db *gorm.DB, paymentID uint, kind string, payload interface{}) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		raw, _ = json.Marshal(v)
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	gateway := models.PaymentGatewayPaypal
	if strings.HasPrefix(kind, "bank_") || kind == "cancelled" {
		gateway = models.PaymentGatewayManual
	}
	entry := models.PaymentCallbackHistory{
		PaymentID:      paymentID,
		PaymentGateway: gateway,
		Kind:           kind,
		Metadata:       datatypes.JSON(raw),
		CreatedAt:      time.Now(),
	}
	if err := db.Create(&entry).Error; err != nil {
		logrus.WithError(err).WithField("payment_id", paymentID).Warn("Failed to record payment callback")
	}
}
