package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"courseplatform_echo/internal/checkout"
	"courseplatform_echo/internal/middleware"
)

type PaymentHandler struct {
	checkout *checkout.Service
}

func NewPaymentHandler(svc *checkout.Service) *PaymentHandler {
	return &PaymentHandler{checkout: svc}
}

// Return is where PayPal sends the payer back. PayPal passes the order id as ?token=.
func (h *PaymentHandler) Return(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ref, err := parseRef(c)
	if err != nil {
		return err
	}

	result, err := h.checkout.Return(c.Request().Context(), ref, user.ID, c.QueryParam("token"))
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// Cancel is where PayPal sends a payer who gave up
func (h *PaymentHandler) Cancel(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ref, err := parseRef(c)
	if err != nil {
		return err
	}

	payment, err := h.checkout.CancelReturn(c.Request().Context(), ref, user.ID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, payment)
}

// BankCapture confirms that a bank transfer arrived
func (h *PaymentHandler) BankCapture(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if !middleware.Can(user, middleware.ActionCaptureBank, nil) {
		return echo.NewHTTPError(http.StatusForbidden)
	}
	paymentID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	result, err := h.checkout.BankCapture(c.Request().Context(), paymentID, user.ID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, result)
}
