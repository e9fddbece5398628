package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pagecart/pagecart/internal/constants"
	"github.com/pagecart/pagecart/internal/payment"
)

const (
	defaultAPIBaseURL        = "https://api.stripe.com"
	defaultTimeout           = 12 * time.Second
	defaultWebhookToleranceS = 300
)

// Config Stripe 账户配置。
type Config struct {
	SecretKey               string   `json:"secret_key"`
	PublishableKey          string   `json:"publishable_key"`
	WebhookSecret           string   `json:"webhook_secret"`
	APIBaseURL              string   `json:"api_base_url"`
	WebhookToleranceSeconds int      `json:"webhook_tolerance_seconds"`
	PaymentMethodTypes      []string `json:"payment_method_types"`
}

// Adapter Stripe 适配器。
type Adapter struct{}

// NewAdapter 创建 Stripe 适配器。
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Provider 返回提供方标识。
func (a *Adapter) Provider() string {
	return constants.PaymentProviderStripe
}

// SupportsSplit Stripe Connect 支持平台分账。
func (a *Adapter) SupportsSplit() bool {
	return true
}

// ParseConfig 解析配置。
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: stripe empty config", payment.ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe marshal config failed", payment.ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: stripe unmarshal config failed", payment.ErrConfigInvalid)
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: stripe config is nil", payment.ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: stripe secret_key is required", payment.ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: stripe webhook_secret is required", payment.ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("%w: stripe api_base_url is required", payment.ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: stripe api_base_url is invalid", payment.ErrConfigInvalid)
	}
	if len(cfg.PaymentMethodTypes) == 0 {
		return fmt.Errorf("%w: stripe payment_method_types is empty", payment.ErrConfigInvalid)
	}
	return nil
}

// CreateCheckout 创建 Stripe Checkout Session。
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
	if orderNo == "" {
		return nil, fmt.Errorf("%w: stripe order_no is required", payment.ErrConfigInvalid)
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: stripe currency is required", payment.ErrConfigInvalid)
	}
	successURL := strings.TrimSpace(input.SuccessURL)
	cancelURL := strings.TrimSpace(input.CancelURL)
	if successURL == "" || cancelURL == "" {
		return nil, fmt.Errorf("%w: stripe success_url and cancel_url are required", payment.ErrConfigInvalid)
	}
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: stripe line items are empty", payment.ErrConfigInvalid)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("client_reference_id", orderNo)
	for i, item := range input.Items {
		if item.Quantity <= 0 || item.UnitAmountCents < 0 {
			return nil, fmt.Errorf("%w: stripe line item is invalid", payment.ErrConfigInvalid)
		}
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
		form.Set(prefix+"[price_data][currency]", currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitAmountCents, 10))
		form.Set(prefix+"[price_data][product_data][name]", strings.TrimSpace(item.Title))
	}
	form.Set("metadata[order_id]", strconv.FormatUint(uint64(input.OrderID), 10))
	form.Set("metadata[order_no]", orderNo)
	form.Set("payment_intent_data[metadata][order_id]", strconv.FormatUint(uint64(input.OrderID), 10))
	form.Set("payment_intent_data[metadata][order_no]", orderNo)
	for key, value := range input.Metadata {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		form.Set("metadata["+trimmed+"]", value)
	}
	if strings.TrimSpace(input.CaptureMethod) == constants.CaptureMethodManual {
		form.Set("payment_intent_data[capture_method]", "manual")
	}
	// 分账指令挂在 payment intent 层，异步支付方式完成时同样生效
	if input.PlatformFeeCents > 0 && strings.TrimSpace(input.DestinationAccount) != "" {
		form.Set("payment_intent_data[application_fee_amount]", strconv.FormatInt(input.PlatformFeeCents, 10))
		form.Set("payment_intent_data[transfer_data][destination]", strings.TrimSpace(input.DestinationAccount))
	}
	for _, pmType := range cfg.PaymentMethodTypes {
		form.Add("payment_method_types[]", pmType)
	}

	respBody, statusCode, err := doFormRequest(ctx, cfg, http.MethodPost, "/v1/checkout/sessions", form)
	if err != nil {
		return nil, err
	}
	if statusCode >= 500 {
		return nil, fmt.Errorf("%w: stripe create checkout session status %d", payment.ErrRequestFailed, statusCode)
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: stripe create checkout session status %d", payment.ErrResponseInvalid, statusCode)
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	sessionID := strings.TrimSpace(readString(raw, "id"))
	checkoutURL := strings.TrimSpace(readString(raw, "url"))
	if sessionID == "" || checkoutURL == "" {
		return nil, fmt.Errorf("%w: stripe missing session id or url", payment.ErrResponseInvalid)
	}
	return &payment.CheckoutResult{
		URL:         checkoutURL,
		ProviderRef: sessionID,
		Raw:         raw,
	}, nil
}

// ParseWebhook 校验并解析 Stripe webhook，签名校验为本地 HMAC 不发起网络请求。
func (a *Adapter) ParseWebhook(_ context.Context, config map[string]interface{}, body []byte, headers map[string]string, now time.Time) (*payment.WebhookEvent, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: stripe webhook_secret is required", payment.ErrConfigInvalid)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: stripe body is empty", payment.ErrResponseInvalid)
	}
	if now.IsZero() {
		now = time.Now()
	}

	signatureHeader := getHeaderValue(headers, "Stripe-Signature")
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("%w: Stripe-Signature is required", payment.ErrSignatureInvalid)
	}
	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}
	if cfg.WebhookToleranceSeconds > 0 {
		delta := math.Abs(float64(now.Unix() - timestamp))
		if delta > float64(cfg.WebhookToleranceSeconds) {
			return nil, fmt.Errorf("%w: stripe timestamp outside tolerance", payment.ErrSignatureInvalid)
		}
	}

	expected := computeSignature(cfg.WebhookSecret, timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: stripe verify failed", payment.ErrSignatureInvalid)
	}

	eventRaw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	eventType := strings.TrimSpace(readString(eventRaw, "type"))
	if eventType == "" {
		return nil, fmt.Errorf("%w: stripe missing event type", payment.ErrResponseInvalid)
	}
	dataRaw, ok := eventRaw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: stripe missing data object", payment.ErrResponseInvalid)
	}
	objectRaw, ok := dataRaw["object"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: stripe missing event object", payment.ErrResponseInvalid)
	}

	metadata := readMap(objectRaw, "metadata")
	event := &payment.WebhookEvent{
		ID:      strings.TrimSpace(readString(eventRaw, "id")),
		Type:    classifyEventType(eventType),
		OrderID: parseOrderID(metadata),
		OrderNo: strings.TrimSpace(readString(metadata, "order_no")),
		Raw:     eventRaw,
	}
	event.ProviderPaymentID = readProviderPaymentID(objectRaw, event.Type)
	event.AmountCents = readEventAmount(objectRaw, event.Type)
	return event, nil
}

// readProviderPaymentID 支付类事件统一取 payment intent 作为支付流水号，
// 同一笔支付的 checkout.session 与 payment_intent 事件收敛到同一个幂等键。
// 退款类事件必须用自身资源 ID（charge/refund），与支付流水区分开，
// 否则退款会撞上支付记录的唯一键被当作重复投递吞掉。
func readProviderPaymentID(objectRaw map[string]interface{}, eventType string) string {
	if eventType == constants.WebhookEventRefundSucceeded {
		if id := strings.TrimSpace(readString(objectRaw, "id")); id != "" {
			return id
		}
		return readPaymentIntentID(objectRaw)
	}
	if intentID := readPaymentIntentID(objectRaw); intentID != "" {
		return intentID
	}
	return strings.TrimSpace(readString(objectRaw, "id"))
}

func readPaymentIntentID(raw map[string]interface{}) string {
	if raw == nil {
		return ""
	}
	value, ok := raw["payment_intent"]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]interface{}:
		return strings.TrimSpace(readString(typed, "id"))
	default:
		return ""
	}
}

// classifyEventType 收敛提供方事件名，未识别的事件归入 ignored。
func classifyEventType(eventType string) string {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "payment_intent.succeeded":
		return constants.WebhookEventPaymentSucceeded
	case "checkout.session.expired", "checkout.session.async_payment_failed",
		"payment_intent.payment_failed", "payment_intent.canceled":
		return constants.WebhookEventPaymentFailed
	case "charge.refunded", "refund.created":
		return constants.WebhookEventRefundSucceeded
	default:
		return constants.WebhookEventIgnored
	}
}

func readEventAmount(objectRaw map[string]interface{}, eventType string) int64 {
	if eventType == constants.WebhookEventRefundSucceeded {
		if refunded := readInt64(objectRaw, "amount_refunded"); refunded > 0 {
			return refunded
		}
		return readInt64(objectRaw, "amount")
	}
	if amount := readInt64(objectRaw, "amount_total"); amount > 0 {
		return amount
	}
	if amount := readInt64(objectRaw, "amount_received"); amount > 0 {
		return amount
	}
	return readInt64(objectRaw, "amount")
}

func parseOrderID(metadata map[string]interface{}) uint {
	if len(metadata) == 0 {
		return 0
	}
	raw := strings.TrimSpace(readString(metadata, "order_id"))
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0
	}
	return uint(id)
}

func (c *Config) normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.PublishableKey = strings.TrimSpace(c.PublishableKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.WebhookToleranceSeconds <= 0 {
		c.WebhookToleranceSeconds = defaultWebhookToleranceS
	}
	if len(c.PaymentMethodTypes) == 0 {
		c.PaymentMethodTypes = []string{"card"}
	} else {
		normalized := make([]string, 0, len(c.PaymentMethodTypes))
		for _, item := range c.PaymentMethodTypes {
			trimmed := strings.ToLower(strings.TrimSpace(item))
			if trimmed == "" {
				continue
			}
			normalized = append(normalized, trimmed)
		}
		if len(normalized) == 0 {
			normalized = []string{"card"}
		}
		sort.Strings(normalized)
		c.PaymentMethodTypes = normalized
	}
}

func doFormRequest(ctx context.Context, cfg *Config, method, path string, form url.Values) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: stripe build request failed", payment.ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := (&http.Client{Timeout: defaultTimeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", payment.ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: stripe read response failed", payment.ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: stripe decode response failed", payment.ErrResponseInvalid)
	}
	return raw, nil
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	payload := strconv.FormatInt(timestamp, 10) + "." + string(body)
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(payload))
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

func parseSignatureHeader(signatureHeader string) (int64, []string, error) {
	timestamp := int64(0)
	signatures := make([]string, 0)
	parts := strings.Split(signatureHeader, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: stripe invalid timestamp", payment.ErrSignatureInvalid)
			}
			timestamp = parsed
		case "v1":
			if value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if timestamp <= 0 {
		return 0, nil, fmt.Errorf("%w: stripe timestamp is missing", payment.ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: stripe v1 signature is missing", payment.ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
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

func readString(raw map[string]interface{}, key string) string {
	if raw == nil || strings.TrimSpace(key) == "" {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strings.TrimSpace(strconv.FormatInt(int64(typed), 10))
	case int64:
		return strings.TrimSpace(strconv.FormatInt(typed, 10))
	case int:
		return strings.TrimSpace(strconv.Itoa(typed))
	default:
		return ""
	}
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return nil
	}
	mapped, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	return mapped
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil || strings.TrimSpace(key) == "" {
		return 0
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return 0
	}
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatVal, err := typed.Float64()
		if err != nil {
			return 0
		}
		return int64(floatVal)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
