package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"courseplatform_echo/internal/checkout"
	"courseplatform_echo/internal/models"
)

type CourseHandler struct {
	checkout *checkout.Service
}

func NewCourseHandler(svc *checkout.Service) *CourseHandler {
	return &CourseHandler{checkout: svc}
}

// Quote prices a checkout without creating a payment
func (h *CourseHandler) Quote(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	courseID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	req := checkout.Request{
		UserID:     user.ID,
		CourseID:   courseID,
		Mode:       models.PaymentMode(c.QueryParam("mode")),
		CouponCode: c.QueryParam("coupon"),
	}
	if req.Mode == "" {
		req.Mode = models.PaymentModeFull
	}
	if s := c.QueryParam("step"); s != "" {
		step, err := strconv.Atoi(s)
		if err != nil || step < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid step")
		}
		req.Step = &step
	}

	quote, err := h.checkout.Quote(c.Request().Context(), req)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, quote)
}

// Checkout starts a payment. PayPal payments answer with the approval URL.
func (h *CourseHandler) Checkout(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	courseID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var body CheckoutRequest
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}

	result, err := h.checkout.Checkout(c.Request().Context(), checkout.Request{
		UserID:     user.ID,
		CourseID:   courseID,
		Mode:       body.Mode,
		Method:     body.Method,
		Step:       body.Step,
		CouponCode: body.CouponCode,
	})
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusCreated, result)
}
