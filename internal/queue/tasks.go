package queue

import (
	"encoding/json"

	"github.com/pagecart/pagecart/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskLedgerReconcileAlert 账目对账告警任务
	TaskLedgerReconcileAlert = constants.TaskLedgerReconcileAlert
	// TaskCommissionRetry 佣金记账重试任务
	TaskCommissionRetry = constants.TaskCommissionRetry
)

// LedgerReconcileAlertPayload 对账告警任务载荷
type LedgerReconcileAlertPayload struct {
	OrderID           uint   `json:"order_id"`
	OrderNo           string `json:"order_no"`
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Reason            string `json:"reason"`
}

// CommissionRetryPayload 佣金记账重试任务载荷
type CommissionRetryPayload struct {
	OrderID uint `json:"order_id"`
}

// NewLedgerReconcileAlertTask 创建对账告警任务
func NewLedgerReconcileAlertTask(payload LedgerReconcileAlertPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcileAlert, body), nil
}

// NewCommissionRetryTask 创建佣金记账重试任务
func NewCommissionRetryTask(payload CommissionRetryPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCommissionRetry, body), nil
}
