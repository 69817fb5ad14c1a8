package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
)

const (
	SessionCookieName = "session"
	userContextKey    = "user"
)

// TokenVerifier checks Firebase credentials. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifySessionCookie(ctx context.Context, sessionCookie string) (*auth.Token, error)
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// RequireAuth verifies the Firebase session cookie, or a bearer ID token, and loads
// the local user it belongs to
func RequireAuth(verifier TokenVerifier, db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "Authentication is not configured")
			}

			ctx := c.Request().Context()
			var token *auth.Token
			var err error

			if cookie, cerr := c.Cookie(SessionCookieName); cerr == nil && cookie.Value != "" {
				token, err = verifier.VerifySessionCookie(ctx, cookie.Value)
				if err != nil {
					c.SetCookie(&http.Cookie{
						Name:     SessionCookieName,
						Value:    "",
						MaxAge:   -1,
						HttpOnly: true,
						Path:     "/",
					})
				}
			} else if bearer := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer "); bearer != "" && bearer != c.Request().Header.Get(echo.HeaderAuthorization) {
				token, err = verifier.VerifyIDToken(ctx, bearer)
			} else {
				return echo.NewHTTPError(http.StatusUnauthorized, "Please log in to continue.")
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Session expired, please log in again.")
			}

			user, err := LocalUser(ctx, db, token)
			if err != nil {
				return fmt.Errorf("failed to resolve user: %w", err)
			}

			c.Set(userContextKey, user)
			c.Set("userUID", token.UID)
			c.Set("userEmail", user.Email)
			return next(c)
		}
	}
}

// LocalUser maps a verified Firebase identity to our user row. An unknown uid is
// linked to the user with the same email, or a new student is created.
func LocalUser(ctx context.Context, db *gorm.DB, token *auth.Token) (*models.User, error) {
	db = db.WithContext(ctx)

	var user models.User
	err := db.Where("firebase_uid = ?", token.UID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email, _ := token.Claims["email"].(string)
	name, _ := token.Claims["name"].(string)
	uid := token.UID

	if email != "" {
		err = db.Where("email = ?", email).First(&user).Error
		if err == nil {
			if err := db.Model(&user).Update("firebase_uid", uid).Error; err != nil {
				return nil, err
			}
			user.FirebaseUID = &uid
			logrus.WithField("user_id", user.ID).Info("Linked firebase account")
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	user = models.User{
		Name:        name,
		Email:       email,
		FirebaseUID: &uid,
		UserType:    models.UserTypeStudent,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	logrus.WithField("user_id", user.ID).Info("Created user from firebase login")
	return &user, nil
}

// CurrentUser returns the user RequireAuth loaded, or nil
func CurrentUser(c echo.Context) *models.User {
	user, _ := c.Get(userContextKey).(*models.User)
	return user
}

// SetCurrentUser stores user on the request context
func SetCurrentUser(c echo.Context, user *models.User) {
	c.Set(userContextKey, user)
}
