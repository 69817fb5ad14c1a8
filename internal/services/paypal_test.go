package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaypalTestServer(t *testing.T, handler http.HandlerFunc) (*PaypalService, *int) {
	t.Helper()
	tokenCalls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 32400})
	})
	mux.HandleFunc("/v2/checkout/orders/", handler)
	mux.HandleFunc("/v2/checkout/orders", handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return NewPaypalService(server.URL, "Courses", 5*time.Second, nil), &tokenCalls
}

var testCreds = PaypalCredentials{ClientID: "client", Secret: "secret"}

func TestPaypalCreateOrder(t *testing.T) {
	svc, _ := newPaypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body struct {
			Intent        string               `json:"intent"`
			PurchaseUnits []PaypalPurchaseUnit `json:"purchase_units"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body.Intent)
		assert.Equal(t, "33.40", body.PurchaseUnits[0].Amount.Value)
		assert.Equal(t, "USD", body.PurchaseUnits[0].Amount.CurrencyCode)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"CREATED","links":[{"rel":"self","href":"https://x/self"},{"rel":"approve","href":"https://x/approve"}]}`))
	})

	order, err := svc.CreateOrder(context.Background(), testCreds, CreateOrderRequest{
		Amount:    decimal.RequireFromString("33.4"),
		Currency:  "usd",
		ReturnURL: "https://app/return",
		CancelURL: "https://app/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", order.ID)
	assert.Equal(t, "https://x/approve", order.ApproveURL())
	assert.Contains(t, string(order.Raw), "ORDER-1")
}

func TestPaypalCreateOrderTruncatesDescriptionByCharacter(t *testing.T) {
	title := strings.Repeat("دورة ", 40)
	var got string
	svc, _ := newPaypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PurchaseUnits []PaypalPurchaseUnit `json:"purchase_units"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = body.PurchaseUnits[0].Description

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-2","status":"CREATED"}`))
	})

	_, err := svc.CreateOrder(context.Background(), testCreds, CreateOrderRequest{
		Amount:      decimal.RequireFromString("10"),
		Currency:    "USD",
		Description: title,
	})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 127, utf8.RuneCountInString(got))
	assert.True(t, strings.HasPrefix(title, got))
}

func TestPaypalCaptureAlreadyCaptured(t *testing.T) {
	svc, _ := newPaypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`))
	})

	_, err := svc.CaptureOrder(context.Background(), testCreds, "ORDER-1")
	require.Error(t, err)
	assert.True(t, IsAlreadyCaptured(err))

	var perr *PaypalError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnprocessableEntity, perr.StatusCode)
}

func TestPaypalGetOrderServerError(t *testing.T) {
	svc, tokenCalls := newPaypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := svc.GetOrder(context.Background(), testCreds, "ORDER-1")
	require.Error(t, err)
	assert.False(t, IsAlreadyCaptured(err))
	assert.Equal(t, 1, *tokenCalls)
}

func TestPaypalOrderCapturedAmount(t *testing.T) {
	var order PaypalOrder
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "ORDER-1",
		"status": "COMPLETED",
		"purchase_units": [{
			"amount": {"currency_code": "USD", "value": "100.00"},
			"payments": {"captures": [{"id": "CAP-1", "status": "COMPLETED", "amount": {"currency_code": "USD", "value": "85.00"}}]}
		}]
	}`), &order))

	captureID, amount := order.CapturedAmount()
	assert.Equal(t, "CAP-1", captureID)
	require.NotNil(t, amount)
	assert.Equal(t, "85.00", amount.Value)

	var approved PaypalOrder
	require.NoError(t, json.Unmarshal([]byte(`{"status":"APPROVED","purchase_units":[{"amount":{"currency_code":"EUR","value":"10.00"}}]}`), &approved))
	captureID, amount = approved.CapturedAmount()
	assert.Empty(t, captureID)
	assert.Equal(t, "EUR", amount.CurrencyCode)

	_, amount = (&PaypalOrder{}).CapturedAmount()
	assert.Nil(t, amount)
}
