package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pagecart/pagecart/internal/constants"
	"github.com/pagecart/pagecart/internal/payment"
)

func testConfig(baseURL string) map[string]interface{} {
	return map[string]interface{}{
		"client_id":     "client_test",
		"client_secret": "secret_test",
		"base_url":      baseURL,
		"webhook_id":    "wh_test_1",
	}
}

func verifyHeaders() map[string]string {
	return map[string]string{
		"Paypal-Transmission-Id":   "tx-1",
		"Paypal-Transmission-Time": "2026-01-01T00:00:00Z",
		"Paypal-Cert-Url":          "https://api.paypal.com/cert",
		"Paypal-Auth-Algo":         "SHA256withRSA",
		"Paypal-Transmission-Sig":  "sig-1",
	}
}

func newPaypalTestServer(t *testing.T, verificationStatus string, orderHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"token_test","token_type":"Bearer"}`)
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"verification_status":"%s"}`, verificationStatus)
	})
	if orderHandler != nil {
		mux.HandleFunc("/v2/checkout/orders", orderHandler)
	}
	return httptest.NewServer(mux)
}

func TestCreateCheckoutBuildsOrderPayload(t *testing.T) {
	var captured map[string]interface{}
	server := newPaypalTestServer(t, "SUCCESS", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request body failed: %v", err)
		}
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode request body failed: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"5O190127TN364715T","links":[{"rel":"approve","href":"https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T"}]}`)
	})
	defer server.Close()

	adapter := NewAdapter()
	result, err := adapter.CreateCheckout(context.Background(), testConfig(server.URL), payment.CheckoutInput{
		OrderID:    9,
		OrderNo:    "PC20260101000000654321",
		Currency:   "usd",
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
		Items: []payment.CheckoutItem{
			{CatalogItemID: 1, Title: "Starter Plan", Quantity: 2, UnitAmountCents: 2500},
			{CatalogItemID: 2, Title: "Setup", Quantity: 1, UnitAmountCents: 5000},
		},
	})
	if err != nil {
		t.Fatalf("create checkout failed: %v", err)
	}
	if result.ProviderRef != "5O190127TN364715T" {
		t.Fatalf("unexpected provider ref: %s", result.ProviderRef)
	}
	if result.URL == "" {
		t.Fatalf("expected approval url")
	}

	units, ok := captured["purchase_units"].([]interface{})
	if !ok || len(units) != 1 {
		t.Fatalf("unexpected purchase units: %+v", captured["purchase_units"])
	}
	unit := units[0].(map[string]interface{})
	if unit["invoice_id"] != "PC20260101000000654321" {
		t.Fatalf("unexpected invoice id: %v", unit["invoice_id"])
	}
	if unit["custom_id"] != "9" {
		t.Fatalf("unexpected custom id: %v", unit["custom_id"])
	}
	amount := unit["amount"].(map[string]interface{})
	if amount["value"] != "100.00" || amount["currency_code"] != "USD" {
		t.Fatalf("unexpected amount: %+v", amount)
	}
}

func TestParseWebhookCaptureCompleted(t *testing.T) {
	server := newPaypalTestServer(t, "SUCCESS", nil)
	defer server.Close()

	body := []byte(`{
		"id": "WH-1",
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "CAP-1",
			"custom_id": "9",
			"invoice_id": "PC20260101000000654321",
			"amount": {"currency_code": "USD", "value": "100.00"},
			"supplementary_data": {"related_ids": {"order_id": "5O190127TN364715T"}}
		}
	}`)

	adapter := NewAdapter()
	event, err := adapter.ParseWebhook(context.Background(), testConfig(server.URL), body, verifyHeaders(), time.Now())
	if err != nil {
		t.Fatalf("parse webhook failed: %v", err)
	}
	if event.Type != constants.WebhookEventPaymentSucceeded {
		t.Fatalf("expected payment succeeded, got %s", event.Type)
	}
	if event.OrderID != 9 || event.OrderNo != "PC20260101000000654321" {
		t.Fatalf("unexpected order reference: %+v", event)
	}
	if event.ProviderPaymentID != "5O190127TN364715T" {
		t.Fatalf("expected related order id as payment id, got %s", event.ProviderPaymentID)
	}
	if event.AmountCents != 10000 {
		t.Fatalf("expected amount 10000, got %d", event.AmountCents)
	}
}

func TestParseWebhookVerificationFailure(t *testing.T) {
	server := newPaypalTestServer(t, "FAILURE", nil)
	defer server.Close()

	body := []byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1"}}`)
	adapter := NewAdapter()
	_, err := adapter.ParseWebhook(context.Background(), testConfig(server.URL), body, verifyHeaders(), time.Now())
	if !errors.Is(err, payment.ErrSignatureInvalid) {
		t.Fatalf("expected signature error, got: %v", err)
	}
}

func TestParseWebhookMissingTransmissionHeaders(t *testing.T) {
	server := newPaypalTestServer(t, "SUCCESS", nil)
	defer server.Close()

	body := []byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1"}}`)
	adapter := NewAdapter()
	_, err := adapter.ParseWebhook(context.Background(), testConfig(server.URL), body, nil, time.Now())
	if !errors.Is(err, payment.ErrSignatureInvalid) {
		t.Fatalf("expected signature error, got: %v", err)
	}
}

func TestClassifyEventType(t *testing.T) {
	cases := map[string]string{
		"PAYMENT.CAPTURE.COMPLETED": constants.WebhookEventPaymentSucceeded,
		"CHECKOUT.ORDER.COMPLETED":  constants.WebhookEventPaymentSucceeded,
		"PAYMENT.CAPTURE.DENIED":    constants.WebhookEventPaymentFailed,
		"PAYMENT.CAPTURE.REFUNDED":  constants.WebhookEventRefundSucceeded,
		"PAYMENT.CAPTURE.REVERSED":  constants.WebhookEventRefundSucceeded,
		"CHECKOUT.ORDER.APPROVED":   constants.WebhookEventIgnored,
	}
	for eventType, want := range cases {
		if got := classifyEventType(eventType); got != want {
			t.Fatalf("classify %s: expected %s, got %s", eventType, want, got)
		}
	}
}

func TestRelatedPaymentIDRefundKeepsOwnResource(t *testing.T) {
	resource := map[string]interface{}{
		"id": "REFUND-1",
		"supplementary_data": map[string]interface{}{
			"related_ids": map[string]interface{}{"order_id": "ORDER-1"},
		},
	}
	if got := relatedPaymentID("PAYMENT.CAPTURE.REFUNDED", resource); got != "REFUND-1" {
		t.Fatalf("expected refund resource id, got %s", got)
	}
	if got := relatedPaymentID("PAYMENT.CAPTURE.COMPLETED", resource); got != "ORDER-1" {
		t.Fatalf("expected related order id, got %s", got)
	}
}

func TestFormatAmountRoundTrip(t *testing.T) {
	if got := formatAmount(1050); got != "10.50" {
		t.Fatalf("expected 10.50, got %s", got)
	}
	if got := formatAmount(100); got != "1.00" {
		t.Fatalf("expected 1.00, got %s", got)
	}
	if got := parseAmountCents("10.50"); got != 1050 {
		t.Fatalf("expected 1050, got %d", got)
	}
	if got := parseAmountCents("0.01"); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := parseAmountCents(""); got != 0 {
		t.Fatalf("expected 0 for empty value, got %d", got)
	}
	if got := parseAmountCents("not-a-number"); got != 0 {
		t.Fatalf("expected 0 for invalid value, got %d", got)
	}
}

func TestValidateConfigRequiresCredentials(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{"client_id": "client_test"})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if err := ValidateConfig(cfg); !errors.Is(err, payment.ErrConfigInvalid) {
		t.Fatalf("expected config invalid for missing client secret, got: %v", err)
	}
}
