package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pagecart/pagecart/internal/constants"
	"github.com/pagecart/pagecart/internal/payment"

	"github.com/shopspring/decimal"
)

const (
	defaultSandboxBaseURL = "https://api-m.sandbox.paypal.com"
	defaultTimeout        = 12 * time.Second
)

// Config PayPal 账户配置。
type Config struct {
	ClientID           string `json:"client_id"`
	ClientSecret       string `json:"client_secret"`
	BaseURL            string `json:"base_url"`
	WebhookID          string `json:"webhook_id"`
	BrandName          string `json:"brand_name"`
	Locale             string `json:"locale"`
	LandingPage        string `json:"landing_page"`
	UserAction         string `json:"user_action"`
	ShippingPreference string `json:"shipping_preference"`
}

// Adapter PayPal 适配器。
type Adapter struct{}

// NewAdapter 创建 PayPal 适配器。
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Provider 返回提供方标识。
func (a *Adapter) Provider() string {
	return constants.PaymentProviderPaypal
}

// SupportsSplit PayPal 实现不支持平台分账。
func (a *Adapter) SupportsSplit() bool {
	return false
}

// ParseConfig 解析配置。
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: paypal empty config", payment.ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: paypal marshal config failed", payment.ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: paypal unmarshal config failed", payment.ErrConfigInvalid)
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: paypal config is nil", payment.ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return fmt.Errorf("%w: paypal client_id is required", payment.ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return fmt.Errorf("%w: paypal client_secret is required", payment.ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("%w: paypal base_url is required", payment.ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.BaseURL)); err != nil {
		return fmt.Errorf("%w: paypal base_url is invalid", payment.ErrConfigInvalid)
	}
	return nil
}

// CreateCheckout 创建 PayPal 订单并返回批准链接。
func (a *Adapter) CreateCheckout(ctx context.Context, config map[string]interface{}, input payment.CheckoutInput) (*payment.CheckoutResult, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	orderNo := strings.TrimSpace(input.OrderNo)
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if orderNo == "" || currency == "" {
		return nil, fmt.Errorf("%w: paypal order input is invalid", payment.ErrConfigInvalid)
	}
	returnURL := strings.TrimSpace(input.SuccessURL)
	cancelURL := strings.TrimSpace(input.CancelURL)
	if returnURL == "" || cancelURL == "" {
		return nil, fmt.Errorf("%w: paypal return_url and cancel_url are required", payment.ErrConfigInvalid)
	}
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: paypal line items are empty", payment.ErrConfigInvalid)
	}

	totalCents := int64(0)
	paypalItems := make([]map[string]interface{}, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 || item.UnitAmountCents < 0 {
			return nil, fmt.Errorf("%w: paypal line item is invalid", payment.ErrConfigInvalid)
		}
		totalCents += item.UnitAmountCents * int64(item.Quantity)
		paypalItems = append(paypalItems, map[string]interface{}{
			"name":     strings.TrimSpace(item.Title),
			"quantity": strconv.Itoa(item.Quantity),
			"unit_amount": map[string]string{
				"currency_code": currency,
				"value":         formatAmount(item.UnitAmountCents),
			},
		})
	}

	token, err := getAccessToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"invoice_id": orderNo,
				"custom_id":  strconv.FormatUint(uint64(input.OrderID), 10),
				"items":      paypalItems,
				"amount": map[string]interface{}{
					"currency_code": currency,
					"value":         formatAmount(totalCents),
					"breakdown": map[string]interface{}{
						"item_total": map[string]string{
							"currency_code": currency,
							"value":         formatAmount(totalCents),
						},
					},
				},
			},
		},
		"application_context": buildApplicationContext(cfg, returnURL, cancelURL),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: paypal marshal request failed", payment.ErrRequestFailed)
	}

	respBody, statusCode, err := doJSONRequest(ctx, cfg, http.MethodPost, "/v2/checkout/orders", token, body)
	if err != nil {
		return nil, err
	}
	if statusCode >= 500 {
		return nil, fmt.Errorf("%w: paypal create order status %d", payment.ErrRequestFailed, statusCode)
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: paypal create order status %d", payment.ErrResponseInvalid, statusCode)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: paypal decode response failed", payment.ErrResponseInvalid)
	}

	orderID := strings.TrimSpace(readString(raw, "id"))
	approvalURL := extractLinkByRel(raw, "approve")
	if orderID == "" || approvalURL == "" {
		return nil, fmt.Errorf("%w: paypal missing order id or approve url", payment.ErrResponseInvalid)
	}
	return &payment.CheckoutResult{
		URL:         approvalURL,
		ProviderRef: orderID,
		Raw:         raw,
	}, nil
}

// ParseWebhook 调用 PayPal 验签接口后解析事件。
func (a *Adapter) ParseWebhook(ctx context.Context, config map[string]interface{}, body []byte, headers map[string]string, now time.Time) (*payment.WebhookEvent, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.WebhookID) == "" {
		return nil, fmt.Errorf("%w: paypal webhook_id is required", payment.ErrConfigInvalid)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: paypal webhook body is empty", payment.ErrResponseInvalid)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: paypal webhook body invalid", payment.ErrResponseInvalid)
	}
	eventType := strings.TrimSpace(readString(raw, "event_type"))
	if eventType == "" {
		return nil, fmt.Errorf("%w: paypal event_type is missing", payment.ErrResponseInvalid)
	}

	if err := verifyWebhookSignature(ctx, cfg, headers, raw); err != nil {
		return nil, err
	}

	resource := readMapValue(raw, "resource")
	event := &payment.WebhookEvent{
		ID:      strings.TrimSpace(readString(raw, "id")),
		Type:    classifyEventType(eventType),
		OrderID: parseOrderID(resource),
		OrderNo: strings.TrimSpace(readString(resource, "invoice_id")),
		Raw:     raw,
	}
	event.ProviderPaymentID = relatedPaymentID(eventType, resource)
	event.AmountCents = parseAmountCents(readString(resource, "amount", "value"))
	return event, nil
}

// relatedPaymentID 捕获类事件统一取关联订单号作为幂等键，退款事件保留自身资源 ID。
func relatedPaymentID(eventType string, resource map[string]interface{}) string {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(eventType)), "PAYMENT.CAPTURE.REFUND") ||
		strings.HasPrefix(strings.ToUpper(strings.TrimSpace(eventType)), "PAYMENT.CAPTURE.REVERS") {
		return strings.TrimSpace(readString(resource, "id"))
	}
	if val := strings.TrimSpace(readString(resource, "supplementary_data", "related_ids", "order_id")); val != "" {
		return val
	}
	return strings.TrimSpace(readString(resource, "id"))
}

// classifyEventType 收敛提供方事件名，未识别的事件归入 ignored。
func classifyEventType(eventType string) string {
	switch strings.ToUpper(strings.TrimSpace(eventType)) {
	case "PAYMENT.CAPTURE.COMPLETED", "CHECKOUT.ORDER.COMPLETED":
		return constants.WebhookEventPaymentSucceeded
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED", "PAYMENT.CAPTURE.FAILED", "CHECKOUT.ORDER.DENIED":
		return constants.WebhookEventPaymentFailed
	case "PAYMENT.CAPTURE.REFUNDED", "PAYMENT.CAPTURE.REVERSED":
		return constants.WebhookEventRefundSucceeded
	default:
		return constants.WebhookEventIgnored
	}
}

func verifyWebhookSignature(ctx context.Context, cfg *Config, headers map[string]string, event map[string]interface{}) error {
	token, err := getAccessToken(ctx, cfg)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"transmission_id":   getHeaderValue(headers, "Paypal-Transmission-Id"),
		"transmission_time": getHeaderValue(headers, "Paypal-Transmission-Time"),
		"cert_url":          getHeaderValue(headers, "Paypal-Cert-Url"),
		"auth_algo":         getHeaderValue(headers, "Paypal-Auth-Algo"),
		"transmission_sig":  getHeaderValue(headers, "Paypal-Transmission-Sig"),
		"webhook_id":        strings.TrimSpace(cfg.WebhookID),
		"webhook_event":     event,
	}
	for _, key := range []string{"transmission_id", "transmission_time", "cert_url", "auth_algo", "transmission_sig"} {
		if strings.TrimSpace(readString(payload, key)) == "" {
			return fmt.Errorf("%w: paypal missing %s", payment.ErrSignatureInvalid, key)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: paypal marshal verify payload failed", payment.ErrSignatureInvalid)
	}

	respBody, statusCode, err := doJSONRequest(ctx, cfg, http.MethodPost, "/v1/notifications/verify-webhook-signature", token, body)
	if err != nil {
		return err
	}
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("%w: paypal verify status %d", payment.ErrSignatureInvalid, statusCode)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("%w: paypal decode verify response failed", payment.ErrSignatureInvalid)
	}
	if strings.ToUpper(strings.TrimSpace(readString(resp, "verification_status"))) != "SUCCESS" {
		return fmt.Errorf("%w: paypal verify result is not success", payment.ErrSignatureInvalid)
	}
	return nil
}

func parseOrderID(resource map[string]interface{}) uint {
	raw := strings.TrimSpace(readString(resource, "custom_id"))
	if raw == "" {
		raw = strings.TrimSpace(readString(resource, "purchase_units", "0", "custom_id"))
	}
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0
	}
	return uint(id)
}

func formatAmount(cents int64) string {
	return decimal.NewFromInt(cents).Shift(-2).StringFixed(2)
}

func parseAmountCents(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return 0
	}
	return parsed.Shift(2).Round(0).IntPart()
}

func (c *Config) normalize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultSandboxBaseURL
	}
	c.WebhookID = strings.TrimSpace(c.WebhookID)
	c.BrandName = strings.TrimSpace(c.BrandName)
	c.Locale = strings.TrimSpace(c.Locale)
	c.LandingPage = strings.TrimSpace(c.LandingPage)
	c.UserAction = strings.TrimSpace(c.UserAction)
	if c.UserAction == "" {
		c.UserAction = "PAY_NOW"
	}
	c.ShippingPreference = strings.TrimSpace(c.ShippingPreference)
	if c.ShippingPreference == "" {
		c.ShippingPreference = "NO_SHIPPING"
	}
}

func buildApplicationContext(cfg *Config, returnURL, cancelURL string) map[string]string {
	ctx := map[string]string{
		"return_url":          strings.TrimSpace(returnURL),
		"cancel_url":          strings.TrimSpace(cancelURL),
		"user_action":         strings.TrimSpace(cfg.UserAction),
		"shipping_preference": strings.TrimSpace(cfg.ShippingPreference),
	}
	if cfg.BrandName != "" {
		ctx["brand_name"] = cfg.BrandName
	}
	if cfg.Locale != "" {
		ctx["locale"] = cfg.Locale
	}
	if cfg.LandingPage != "" {
		ctx["landing_page"] = cfg.LandingPage
	}
	return ctx
}

func getAccessToken(ctx context.Context, cfg *Config) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	values := url.Values{}
	values.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(cfg.BaseURL, "/")+"/v1/oauth2/token", strings.NewReader(values.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: paypal build token request failed", payment.ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: paypal request token failed", payment.ErrRequestFailed)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: paypal read token response failed", payment.ErrRequestFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: paypal token status %d", payment.ErrRequestFailed, resp.StatusCode)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: paypal decode token response failed", payment.ErrResponseInvalid)
	}
	token := strings.TrimSpace(readString(parsed, "access_token"))
	if token == "" {
		return "", fmt.Errorf("%w: paypal access_token is empty", payment.ErrResponseInvalid)
	}
	return token, nil
}

func doJSONRequest(ctx context.Context, cfg *Config, method, endpoint, token string, body []byte) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(cfg.BaseURL, "/")+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: paypal build request failed", payment.ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: paypal http request failed", payment.ErrRequestFailed)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: paypal read response failed", payment.ErrRequestFailed)
	}
	return respBody, resp.StatusCode, nil
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}

func extractLinkByRel(raw map[string]interface{}, rel string) string {
	links, ok := raw["links"].([]interface{})
	if !ok {
		return ""
	}
	rel = strings.ToLower(strings.TrimSpace(rel))
	for _, item := range links {
		linkMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if strings.ToLower(strings.TrimSpace(readString(linkMap, "rel"))) != rel {
			continue
		}
		if href := strings.TrimSpace(readString(linkMap, "href")); href != "" {
			return href
		}
	}
	return ""
}

func getHeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 || strings.TrimSpace(key) == "" {
		return ""
	}
	for h, value := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func readMapValue(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return map[string]interface{}{}
	}
	value, ok := raw[key].(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return value
}

func readString(raw map[string]interface{}, path ...string) string {
	if raw == nil {
		return ""
	}
	var current interface{} = raw
	for _, seg := range path {
		if idx, err := strconv.Atoi(seg); err == nil {
			arr, ok := current.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return ""
			}
			current = arr[idx]
			continue
		}
		next, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = next[seg]
	}
	if current == nil {
		return ""
	}
	if str, ok := current.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", current)
}
