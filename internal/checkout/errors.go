package checkout

import (
	"errors"
	"fmt"
)

// Machine readable reasons a payment failed
const (
	ReasonAmountMismatch   = "amount_mismatch"
	ReasonCurrencyMismatch = "currency_mismatch"
	ReasonOrderNotReady    = "order_not_ready_for_capture"
	ReasonGatewayError     = "gateway_error"
	ReasonMissingAmount    = "missing_amount"
	ReasonUnexpectedStatus = "unexpected_status"
	ReasonMissingOrder     = "missing_order"
	ReasonCancelled        = "cancelled"
)

var (
	ErrAmountNotPositive = errors.New("nothing to pay")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrCourseNotFound    = errors.New("course not found")
	ErrInvalidMethod     = errors.New("payment method must be paypal or bank")
	ErrNotBankTransfer   = errors.New("payment is not a bank transfer")
	ErrAlreadyCaptured   = errors.New("payment is already captured")
)

// FailedError reports a payment that was marked failed
type FailedError struct {
	Reason string
	Detail string
	Err    error
}

func (e *FailedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("payment failed: %s (%s)", e.Reason, e.Detail)
	}
	return "payment failed: " + e.Reason
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

// FailureReason extracts the reason code of a failed payment, if err is one
func FailureReason(err error) (string, bool) {
	var fe *FailedError
	if errors.As(err, &fe) {
		return fe.Reason, true
	}
	return "", false
}
