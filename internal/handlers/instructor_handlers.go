package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"courseplatform_echo/internal/checkout"
	"courseplatform_echo/internal/middleware"
)

type InstructorHandler struct {
	db     *gorm.DB
	sealer checkout.Sealer
}

func NewInstructorHandler(db *gorm.DB, sealer checkout.Sealer) *InstructorHandler {
	return &InstructorHandler{db: db, sealer: sealer}
}

// UpdatePaypal stores the instructor's own PayPal app. The secret never leaves the server.
func (h *InstructorHandler) UpdatePaypal(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if !middleware.Can(user, middleware.ActionSetPaypalAccount, &user.ID) {
		return echo.NewHTTPError(http.StatusForbidden)
	}
	if h.sealer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Secret storage is not configured")
	}

	var body PaypalCredentialsRequest
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}

	err = checkout.SaveInstructorCredentials(c.Request().Context(), h.db, h.sealer, user.ID, body.ClientID, body.Secret)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"client_id":  body.ClientID,
		"configured": body.ClientID != "",
	})
}
