package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"courseplatform_echo/internal/checkout"
	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/middleware"
	"courseplatform_echo/internal/models"
	"courseplatform_echo/internal/pricing"
)

// CheckoutRequest is the body of POST /courses/:id/checkout
type CheckoutRequest struct {
	Mode       models.PaymentMode   `json:"mode" validate:"required,oneof=full installment"`
	Method     models.PaymentMethod `json:"method" validate:"omitempty,oneof=paypal bank"`
	Step       *int                 `json:"step" validate:"omitempty,min=1"`
	CouponCode string               `json:"coupon_code" validate:"max=50"`
}

// FreezeRequest is the body of POST /enrollments/:id/freeze
type FreezeRequest struct {
	Days     int    `json:"days" validate:"required,min=1,max=90"`
	Password string `json:"password" validate:"required"`
}

// EnrollRequest is the body of POST /admin/enrollments
type EnrollRequest struct {
	UserID   uint `json:"user_id" validate:"required"`
	CourseID uint `json:"course_id" validate:"required"`
}

// CancelRequest is the body of POST /admin/enrollments/:id/cancel
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RegeneratePlanRequest is the body of POST /admin/enrollments/:id/plan
type RegeneratePlanRequest struct {
	Overwrite bool `json:"overwrite"`
}

// PaypalCredentialsRequest is the body of PUT /instructor/paypal. Empty values clear them.
type PaypalCredentialsRequest struct {
	ClientID string `json:"client_id" validate:"required_with=Secret,max=255"`
	Secret   string `json:"secret" validate:"required_with=ClientID"`
}

// PreferenceRequest is the body of PUT /me/preferences
type PreferenceRequest struct {
	Channel        models.NotificationChannel `json:"channel" validate:"required,oneof=email whatsapp none"`
	WhatsappNumber string                     `json:"whatsapp_number" validate:"required_if=Channel whatsapp,max=50"`
}

// bindAndValidate decodes the request body into req and runs the validator
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	return c.Validate(req)
}

func parseID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}

func parseRef(c echo.Context) (uuid.UUID, error) {
	ref, err := uuid.Parse(c.Param("ref"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "Payment not found")
	}
	return ref, nil
}

func currentUser(c echo.Context) (*models.User, error) {
	user := middleware.CurrentUser(c)
	if user == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized)
	}
	return user, nil
}

// domainError turns package errors into HTTP errors. Unknown errors pass through as 500s.
func domainError(err error) error {
	if reason, ok := checkout.FailureReason(err); ok {
		code := http.StatusUnprocessableEntity
		if reason == checkout.ReasonGatewayError {
			code = http.StatusBadGateway
		}
		return &middleware.ReasonError{Code: code, Reason: reason, Message: "The payment could not be completed."}
	}

	switch {
	case errors.Is(err, enrollment.ErrEnrollmentNotFound),
		errors.Is(err, enrollment.ErrCourseNotFound),
		errors.Is(err, enrollment.ErrLessonNotFound),
		errors.Is(err, checkout.ErrPaymentNotFound),
		errors.Is(err, checkout.ErrCourseNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, enrollment.ErrNoAccess):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())

	case errors.Is(err, checkout.ErrAlreadyCaptured):
		return echo.NewHTTPError(http.StatusConflict, err.Error())

	case errors.Is(err, checkout.ErrAmountNotPositive):
		return &middleware.ReasonError{Code: http.StatusUnprocessableEntity, Reason: "nothing_to_pay", Message: err.Error()}

	case errors.Is(err, enrollment.ErrInvalidFreezeDays),
		errors.Is(err, enrollment.ErrFreezeCapExceeded),
		errors.Is(err, enrollment.ErrNotActive),
		errors.Is(err, enrollment.ErrNotFrozen),
		errors.Is(err, enrollment.ErrWrongPassword),
		errors.Is(err, enrollment.ErrAlreadyCancelled),
		errors.Is(err, pricing.ErrInvalidMode),
		errors.Is(err, pricing.ErrInstallmentsNotSet),
		errors.Is(err, pricing.ErrStepAlreadyPaid),
		errors.Is(err, checkout.ErrInvalidMethod),
		errors.Is(err, checkout.ErrNotBankTransfer):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return err
}
