package checkout

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"courseplatform_echo/internal/models"
	"courseplatform_echo/internal/services"
)

// SecretOpener decrypts sealed merchant secrets
type SecretOpener interface {
	Open(sealed string) (string, error)
}

// credentialsFor picks the merchant account that receives money for course: the
// instructor's own PayPal app when configured, the platform account otherwise.
// course.Instructor must be loaded.
func (s *Service) credentialsFor(course *models.Course) (services.PaypalCredentials, error) {
	instructor := course.Instructor
	if instructor == nil || !instructor.HasPaypalCredentials() || s.secrets == nil {
		return s.platform, nil
	}

	secret, err := s.secrets.Open(instructor.PaypalSecretEncrypted)
	if err != nil {
		return services.PaypalCredentials{}, fmt.Errorf("failed to open paypal secret of instructor %d: %w", instructor.ID, err)
	}
	return services.PaypalCredentials{ClientID: instructor.PaypalClientID, Secret: secret}, nil
}

// Sealer encrypts merchant secrets for storage
type Sealer interface {
	Seal(plaintext string) (string, error)
}

// SaveInstructorCredentials seals secret and stores the PayPal app on the user.
// Empty values clear the credentials so the platform account is used again.
func SaveInstructorCredentials(ctx context.Context, db *gorm.DB, sealer Sealer, userID uint, clientID, secret string) error {
	sealed := ""
	if clientID != "" && secret != "" {
		var err error
		if sealed, err = sealer.Seal(secret); err != nil {
			return fmt.Errorf("failed to seal paypal secret: %w", err)
		}
	} else {
		clientID = ""
	}

	res := db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"paypal_client_id":        clientID,
			"paypal_secret_encrypted": sealed,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save paypal credentials: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
