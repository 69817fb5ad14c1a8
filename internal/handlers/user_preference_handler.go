package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
)

type UserPreferenceHandler struct {
	DB *gorm.DB
}

func NewUserPreferenceHandler(db *gorm.DB) *UserPreferenceHandler {
	return &UserPreferenceHandler{DB: db}
}

type preferenceResponse struct {
	Channel        models.NotificationChannel `json:"channel"`
	WhatsappNumber string                     `json:"whatsapp_number"`
}

// GetUserPreference returns how the current user wants to be notified
func (h *UserPreferenceHandler) GetUserPreference(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var pref models.UserNotifPreference
	err = h.DB.WithContext(c.Request().Context()).Where("user_id = ?", user.ID).First(&pref).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load preference: %w", err)
		}
		pref.Channel = models.NotificationChannelEmail
	}

	return c.JSON(http.StatusOK, preferenceResponse{Channel: pref.Channel, WhatsappNumber: user.WhatsappNumber})
}

// UpdateUserPreference saves the channel and, for whatsapp, the number to use
func (h *UserPreferenceHandler) UpdateUserPreference(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var body PreferenceRequest
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}

	err = h.DB.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		var pref models.UserNotifPreference
		err := tx.Where("user_id = ?", user.ID).First(&pref).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			pref = models.UserNotifPreference{UserID: user.ID}
		}
		pref.Channel = body.Channel
		if err := tx.Save(&pref).Error; err != nil {
			return err
		}

		if body.WhatsappNumber != "" {
			return tx.Model(&models.User{ID: user.ID}).Update("whatsapp_number", body.WhatsappNumber).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}

	number := user.WhatsappNumber
	if body.WhatsappNumber != "" {
		number = body.WhatsappNumber
	}
	return c.JSON(http.StatusOK, preferenceResponse{Channel: body.Channel, WhatsappNumber: number})
}
