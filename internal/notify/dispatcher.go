// Package notify builds user notifications and delivers them over the channel each
// user prefers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/models"
)

var ErrNoWhatsappNumber = errors.New("user has no whatsapp number")

// Mailer sends plain text email
type Mailer interface {
	SendEmail(to []string, subject, body string) error
}

// Messenger sends chat messages
type Messenger interface {
	SendMessage(ctx context.Context, to, text string) error
}

// Outbox queues a message for later delivery
type Outbox interface {
	Enqueue(ctx context.Context, msg Message) error
}

// Dispatcher turns lifecycle events into messages. Failures are logged and never
// returned to the code that triggered the event.
type Dispatcher struct {
	db        *gorm.DB
	mailer    Mailer
	messenger Messenger
	outbox    Outbox
	resolver  *enrollment.Resolver
	appURL    string
	now       func() time.Time
}

func NewDispatcher(db *gorm.DB, mailer Mailer, messenger Messenger, appURL string) *Dispatcher {
	return &Dispatcher{
		db:        db,
		mailer:    mailer,
		messenger: messenger,
		resolver:  enrollment.NewResolver(db),
		appURL:    strings.TrimRight(appURL, "/"),
		now:       time.Now,
	}
}

// WithOutbox routes lifecycle notifications through a queue instead of sending inline
func (d *Dispatcher) WithOutbox(outbox Outbox) *Dispatcher {
	d.outbox = outbox
	return d
}

// WithClock swaps the time source
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// publish queues msg, or delivers it right away when there is no queue
func (d *Dispatcher) publish(ctx context.Context, msg Message) {
	log := logrus.WithFields(logrus.Fields{"user_id": msg.UserID, "kind": msg.Kind})

	if d.outbox != nil {
		err := d.outbox.Enqueue(ctx, msg)
		if err == nil {
			return
		}
		log.WithError(err).Warn("Failed to queue notification, sending inline")
	}

	if _, err := d.Deliver(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to send notification")
	}
}

// Deliver sends msg over the user's preferred channel and reports the channel used
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) (models.NotificationChannel, error) {
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, msg.UserID).Error; err != nil {
		return "", fmt.Errorf("failed to load user %d: %w", msg.UserID, err)
	}

	channel := models.NotificationChannelEmail
	var pref models.UserNotifPreference
	err := d.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&pref).Error
	switch {
	case err == nil:
		channel = pref.Channel
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return "", fmt.Errorf("failed to load notification preference: %w", err)
	}

	switch channel {
	case models.NotificationChannelNone:
		logrus.WithField("user_id", user.ID).Debug("Notifications disabled, skipping")
		return channel, nil

	case models.NotificationChannelWhatsapp:
		if d.messenger == nil {
			return channel, errors.New("whatsapp is not configured")
		}
		if user.WhatsappNumber == "" {
			return channel, ErrNoWhatsappNumber
		}
		text := fmt.Sprintf("*%s*\n\n%s", msg.Subject, msg.Body)
		return channel, d.messenger.SendMessage(ctx, user.WhatsappNumber, text)

	default:
		if d.mailer == nil {
			return models.NotificationChannelEmail, errors.New("email is not configured")
		}
		return models.NotificationChannelEmail, d.mailer.SendEmail([]string{user.Email}, msg.Subject, msg.Body)
	}
}

func (d *Dispatcher) loadEnrollment(ctx context.Context, id uint) (*models.Enrollment, error) {
	var enr models.Enrollment
	err := d.db.WithContext(ctx).Preload("User").Preload("Course").First(&enr, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment %d: %w", id, err)
	}
	if enr.User == nil || enr.Course == nil {
		return nil, fmt.Errorf("enrollment %d has no user or course", id)
	}
	return &enr, nil
}

// EnrollmentSuspended tells the user their access was suspended
func (d *Dispatcher) EnrollmentSuspended(ctx context.Context, enrollmentID uint) {
	enr, err := d.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		logrus.WithError(err).Error("Failed to build suspension notice")
		return
	}
	d.publish(ctx, d.SuspendedMessage(enr.User, enr.Course))
}

// EnrollmentFrozen tells the user their freeze started
func (d *Dispatcher) EnrollmentFrozen(ctx context.Context, enrollmentID uint) {
	enr, err := d.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		logrus.WithError(err).Error("Failed to build freeze notice")
		return
	}
	d.publish(ctx, d.FrozenMessage(enr.User, enr.Course, enr))
}

// PaymentCaptured sends the enrollment confirmation with progress and schedule
func (d *Dispatcher) PaymentCaptured(ctx context.Context, paymentID uint) {
	var payment models.Payment
	err := d.db.WithContext(ctx).Preload("User").Preload("Course").First(&payment, paymentID).Error
	if err != nil || payment.User == nil || payment.Course == nil || payment.EnrollmentID == nil {
		logrus.WithError(err).WithField("payment_id", paymentID).Error("Failed to build enrollment confirmation")
		return
	}

	var insts []models.Installment
	if err := d.db.WithContext(ctx).Where("enrollment_id = ?", *payment.EnrollmentID).Order("step ASC").Find(&insts).Error; err != nil {
		logrus.WithError(err).WithField("payment_id", paymentID).Warn("Failed to load installment schedule")
	}

	progress, err := d.resolver.Progress(ctx, payment.UserID, payment.CourseID)
	if err != nil {
		logrus.WithError(err).WithField("payment_id", paymentID).Warn("Failed to compute progress")
	}

	d.publish(ctx, d.ConfirmationMessage(payment.User, payment.Course, &payment, progress, insts))
}
