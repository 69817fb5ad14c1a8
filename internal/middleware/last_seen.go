package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"courseplatform_echo/internal/models"
)

// LastSeenInterval is the most often a user's activity is written
const LastSeenInterval = 15 * time.Minute

// Throttle claims a key for a while. *services.RedisCache satisfies it.
type Throttle interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

// TrackLastSeen records activity of the authenticated user. Without a throttle every
// request writes.
func TrackLastSeen(db *gorm.DB, throttle Throttle, now func() time.Time) echo.MiddlewareFunc {
	if now == nil {
		now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := CurrentUser(c)
			if user == nil {
				return next(c)
			}

			ctx := c.Request().Context()
			if throttle != nil {
				fresh, err := throttle.SetNX(ctx, fmt.Sprintf("last_seen:%d", user.ID), 1, LastSeenInterval)
				if err == nil && !fresh {
					return next(c)
				}
			}

			if err := TouchLastSeen(ctx, db, user.ID, now()); err != nil {
				logrus.WithError(err).WithField("user_id", user.ID).Warn("Failed to record activity")
			}
			return next(c)
		}
	}
}

// TouchLastSeen upserts the user's activity row
func TouchLastSeen(ctx context.Context, db *gorm.DB, userID uint, at time.Time) error {
	activity := models.UserActivity{UserID: userID, LastSeen: at}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen", "updated_at"}),
	}).Create(&activity).Error
}
