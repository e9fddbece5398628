package payment

import (
	"context"
	"errors"
	"strings"
	"time"
)

// 适配器通用错误，各提供方实现统一包装这些错误以便上层分类处理。
var (
	ErrConfigInvalid    = errors.New("payment config invalid")
	ErrRequestFailed    = errors.New("payment request failed")
	ErrResponseInvalid  = errors.New("payment response invalid")
	ErrSignatureInvalid = errors.New("payment signature invalid")
)

// CheckoutItem 结算行项目
type CheckoutItem struct {
	CatalogItemID   uint
	Title           string
	Quantity        int
	UnitAmountCents int64
}

// CheckoutInput 创建结算的输入
type CheckoutInput struct {
	OrderID            uint
	OrderNo            string
	Currency           string
	Items              []CheckoutItem
	SuccessURL         string
	CancelURL          string
	CaptureMethod      string
	PlatformFeeCents   int64
	DestinationAccount string
	Metadata           map[string]string
}

// CheckoutResult 创建结算的返回
type CheckoutResult struct {
	URL         string
	ProviderRef string
	Raw         map[string]interface{}
}

// WebhookEvent 标准化回调事件
type WebhookEvent struct {
	ID                string
	Type              string
	OrderID           uint
	OrderNo           string
	ProviderPaymentID string
	AmountCents       int64
	Raw               map[string]interface{}
}

// Adapter 支付提供方适配器接口
type Adapter interface {
	// Provider 返回提供方标识
	Provider() string
	// CreateCheckout 调用提供方创建结算会话
	CreateCheckout(ctx context.Context, config map[string]interface{}, input CheckoutInput) (*CheckoutResult, error)
	// ParseWebhook 校验签名并解析回调事件
	ParseWebhook(ctx context.Context, config map[string]interface{}, body []byte, headers map[string]string, now time.Time) (*WebhookEvent, error)
	// SupportsSplit 是否支持平台分账
	SupportsSplit() bool
}

// Registry 静态注册表，启动时构建一次
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry 创建注册表
func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		registry.adapters[strings.ToLower(strings.TrimSpace(adapter.Provider()))] = adapter
	}
	return registry
}

// Get 根据提供方标识获取适配器
func (r *Registry) Get(provider string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(provider))]
	return adapter, ok
}

// Providers 返回已注册的提供方标识
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	providers := make([]string, 0, len(r.adapters))
	for provider := range r.adapters {
		providers = append(providers, provider)
	}
	return providers
}
