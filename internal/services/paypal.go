package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PayPal order statuses we branch on
const (
	PaypalOrderCreated              = "CREATED"
	PaypalOrderApproved             = "APPROVED"
	PaypalOrderPayerActionRequired  = "PAYER_ACTION_REQUIRED"
	PaypalOrderCompleted            = "COMPLETED"
	PaypalIssueOrderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"
)

// PaypalCredentials is one merchant REST app
type PaypalCredentials struct {
	ClientID string
	Secret   string
}

type PaypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type PaypalLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type PaypalCapture struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Amount *PaypalAmount `json:"amount,omitempty"`
}

type PaypalPurchaseUnit struct {
	Description string        `json:"description,omitempty"`
	CustomID    string        `json:"custom_id,omitempty"`
	Amount      *PaypalAmount `json:"amount,omitempty"`
	Payments    *struct {
		Captures []PaypalCapture `json:"captures"`
	} `json:"payments,omitempty"`
}

// PaypalOrder is the subset of the v2 order resource we read. Raw keeps the full body.
type PaypalOrder struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	Links         []PaypalLink         `json:"links"`
	PurchaseUnits []PaypalPurchaseUnit `json:"purchase_units"`

	Raw json.RawMessage `json:"-"`
}

// ApproveURL returns the payer approval link, if PayPal sent one
func (o *PaypalOrder) ApproveURL() string {
	for _, link := range o.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}

// CapturedAmount returns the first capture id and the settled amount. The capture
// amount wins over the purchase unit amount.
func (o *PaypalOrder) CapturedAmount() (captureID string, amount *PaypalAmount) {
	if len(o.PurchaseUnits) == 0 {
		return "", nil
	}
	unit := o.PurchaseUnits[0]

	if unit.Payments != nil && len(unit.Payments.Captures) > 0 {
		capture := unit.Payments.Captures[0]
		captureID = capture.ID
		if capture.Amount != nil && capture.Amount.Value != "" {
			return captureID, capture.Amount
		}
	}
	if unit.Amount != nil && unit.Amount.Value != "" {
		return captureID, unit.Amount
	}
	return captureID, nil
}

// PaypalError is a non-2xx answer from the REST API
type PaypalError struct {
	StatusCode int
	Issue      string
	Body       string
}

func (e *PaypalError) Error() string {
	if e.Issue != "" {
		return fmt.Sprintf("paypal request failed with status %d: %s", e.StatusCode, e.Issue)
	}
	return fmt.Sprintf("paypal request failed with status %d", e.StatusCode)
}

// IsAlreadyCaptured reports whether err is PayPal refusing a second capture
func IsAlreadyCaptured(err error) bool {
	var perr *PaypalError
	return errors.As(err, &perr) && perr.StatusCode == http.StatusUnprocessableEntity && perr.Issue == PaypalIssueOrderAlreadyCaptured
}

// CreateOrderRequest describes one checkout order
type CreateOrderRequest struct {
	Amount      decimal.Decimal
	Currency    string
	ReturnURL   string
	CancelURL   string
	Description string
	CustomID    string
}

// PaypalService calls the PayPal Orders v2 REST API
type PaypalService struct {
	baseURL   string
	brandName string
	client    *http.Client
	cache     *RedisCache
}

func NewPaypalService(baseURL, brandName string, timeout time.Duration, cache *RedisCache) *PaypalService {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PaypalService{
		baseURL:   strings.TrimRight(baseURL, "/"),
		brandName: brandName,
		client:    &http.Client{Timeout: timeout},
		cache:     cache,
	}
}

type paypalToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *PaypalService) accessToken(ctx context.Context, creds PaypalCredentials) (string, error) {
	token, err := GetOrSet(s.cache, ctx, "paypal:token:"+creds.ClientID, 30*time.Minute, func() (paypalToken, error) {
		form := url.Values{"grant_type": {"client_credentials"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return paypalToken{}, fmt.Errorf("failed to create token request: %w", err)
		}
		req.SetBasicAuth(creds.ClientID, creds.Secret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		var tok paypalToken
		if _, err := s.do(req, &tok); err != nil {
			return paypalToken{}, err
		}
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

func (s *PaypalService) do(req *http.Request, dest interface{}) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		perr := &PaypalError{StatusCode: resp.StatusCode, Body: string(body)}
		var payload struct {
			Name    string `json:"name"`
			Details []struct {
				Issue string `json:"issue"`
			} `json:"details"`
		}
		if json.Unmarshal(body, &payload) == nil {
			if len(payload.Details) > 0 {
				perr.Issue = payload.Details[0].Issue
			} else {
				perr.Issue = payload.Name
			}
		}
		return body, perr
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return body, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return body, nil
}

func (s *PaypalService) orderRequest(ctx context.Context, creds PaypalCredentials, method, endpoint string, payload interface{}) (*PaypalOrder, error) {
	token, err := s.accessToken(ctx, creds)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		bodyReader = bytes.NewBuffer(data)
	} else if method == http.MethodPost {
		bodyReader = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var order PaypalOrder
	raw, err := s.do(req, &order)
	if err != nil {
		return nil, err
	}
	order.Raw = raw
	return &order, nil
}

// paypalDescriptionLimit is PayPal's purchase unit description cap, in characters
const paypalDescriptionLimit = 127

// CreateOrder opens a CAPTURE intent order and returns it with its approval link
func (s *PaypalService) CreateOrder(ctx context.Context, creds PaypalCredentials, in CreateOrderRequest) (*PaypalOrder, error) {
	description := in.Description
	if chars := []rune(description); len(chars) > paypalDescriptionLimit {
		description = string(chars[:paypalDescriptionLimit])
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []PaypalPurchaseUnit{{
			Description: description,
			CustomID:    in.CustomID,
			Amount: &PaypalAmount{
				CurrencyCode: strings.ToUpper(in.Currency),
				Value:        in.Amount.StringFixed(2),
			},
		}},
		"application_context": map[string]string{
			"brand_name":          s.brandName,
			"return_url":          in.ReturnURL,
			"cancel_url":          in.CancelURL,
			"user_action":         "PAY_NOW",
			"shipping_preference": "NO_SHIPPING",
		},
	}

	return s.orderRequest(ctx, creds, http.MethodPost, "/v2/checkout/orders", payload)
}

// GetOrder fetches the authoritative order state
func (s *PaypalService) GetOrder(ctx context.Context, creds PaypalCredentials, orderID string) (*PaypalOrder, error) {
	return s.orderRequest(ctx, creds, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil)
}

// CaptureOrder captures an approved order
func (s *PaypalService) CaptureOrder(ctx context.Context, creds PaypalCredentials, orderID string) (*PaypalOrder, error) {
	return s.orderRequest(ctx, creds, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", nil)
}
