package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentGateway string

const (
	PaymentGatewayPaypal PaymentGateway = "paypal"
	PaymentGatewayManual PaymentGateway = "manual"
)

// PaymentCallbackHistory is an append-only log of gateway round-trips and return callbacks
type PaymentCallbackHistory struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	PaymentID      uint           `gorm:"index" json:"payment_id"`
	PaymentGateway PaymentGateway `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	Kind           string         `gorm:"type:varchar(50)" json:"kind"`
	Metadata       datatypes.JSON `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}
