package worker

import (
	"context"
	"encoding/json"

	"github.com/pagecart/pagecart/internal/logger"
	"github.com/pagecart/pagecart/internal/provider"
	"github.com/pagecart/pagecart/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskLedgerReconcileAlert, c.handleLedgerReconcileAlert)
	mux.HandleFunc(queue.TaskCommissionRetry, c.handleCommissionRetry)
}

// handleLedgerReconcileAlert 把提供方已确认但本地落账失败的支付固化成
// 持久告警日志，供运营按 provider_payment_id 对账补录。
func (c *Consumer) handleLedgerReconcileAlert(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_ledger_alert_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.LedgerReconcileAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_ledger_alert_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_ledger_alert_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	logger.Errorw("ledger_reconcile_required",
		"order_id", payload.OrderID,
		"order_no", payload.OrderNo,
		"provider", payload.Provider,
		"provider_payment_id", payload.ProviderPaymentID,
		"reason", payload.Reason,
	)
	return nil
}

func (c *Consumer) handleCommissionRetry(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_commission_retry_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.CommissionRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_commission_retry_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_commission_retry_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.CommissionAccountant == nil {
		logger.Warnw("worker_commission_retry_skip_accountant_nil", "order_id", payload.OrderID)
		return nil
	}
	order, err := c.OrderRepo.GetByID(payload.OrderID)
	if err != nil {
		logger.Warnw("worker_commission_retry_fetch_order_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	if order == nil {
		logger.Debugw("worker_commission_retry_skip_order_not_found", "order_id", payload.OrderID)
		return nil
	}
	if err := c.CommissionAccountant.RecordPlatformFeeCommission(order); err != nil {
		logger.Warnw("worker_commission_retry_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	return nil
}
