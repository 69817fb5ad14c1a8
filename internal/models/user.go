package models

import (
	"time"

	"gorm.io/gorm"
)

// UserType represents the type of user
type UserType string

const (
	UserTypeAdmin      UserType = "Admin"
	UserTypeInstructor UserType = "Instructor"
	UserTypeStudent    UserType = "Student"
)

// User represents a user in the system
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name           string   `gorm:"type:varchar(255)" json:"name"`
	Email          string   `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	WhatsappNumber string   `gorm:"type:varchar(50)" json:"whatsapp_number"`
	UserType       UserType `gorm:"type:varchar(20);default:'Student'" json:"user_type"`
	FirebaseUID    *string  `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	PasswordHash   string   `gorm:"type:varchar(255)" json:"-"`

	// Merchant credentials used for the courses this user teaches.
	PaypalClientID        string `gorm:"type:varchar(255)" json:"paypal_client_id,omitempty"`
	PaypalSecretEncrypted string `gorm:"type:text" json:"-"`

	// Relationships
	Enrollments []Enrollment `gorm:"foreignKey:UserID" json:"enrollments,omitempty"`
}

// HasPaypalCredentials reports whether the user configured their own PayPal app
func (u User) HasPaypalCredentials() bool {
	return u.PaypalClientID != "" && u.PaypalSecretEncrypted != ""
}

// UserActivity tracks when a user was last seen and when we last nudged them about it
type UserActivity struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID             uint       `gorm:"uniqueIndex" json:"user_id"`
	LastSeen           time.Time  `gorm:"index" json:"last_seen"`
	LastAbsenceEmailAt *time.Time `json:"last_absence_email_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
