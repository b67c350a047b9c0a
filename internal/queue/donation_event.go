package queue

import (
	"fmt"
	"time"

	"ngo_donation/internal/model"

	"github.com/google/uuid"
)

// 终态事件的 reason，便于审计端按原因聚合。
const (
	ReasonVerified         = "verified"
	ReasonInvalidSignature = "invalid_signature"
	ReasonNotCaptured      = "not_captured"
	ReasonClientReported   = "client_reported"
)

// DonationEvent 捐款进入终态时发出的事件，写入 Redis Stream 后由 Relay 转发 Kafka。
type DonationEvent struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	PaymentID  string    `json:"payment_id,omitempty"`
	Status     string    `json:"status"`
	Amount     float64   `json:"amount"` // 卢比
	Method     string    `json:"method,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewDonationEvent 生成带 event_id 的事件。
func NewDonationEvent(orderID string, status model.DonationStatus, reason string) DonationEvent {
	return DonationEvent{
		EventID:    uuid.NewString(),
		OrderID:    orderID,
		Status:     string(status),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (e DonationEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if !model.DonationStatus(e.Status).IsTerminal() {
		return fmt.Errorf("status must be terminal, got %q", e.Status)
	}
	if e.Amount < 0 {
		return fmt.Errorf("amount must be >= 0")
	}
	return nil
}

// Record 转换为审计表行。
func (e DonationEvent) Record() *model.DonationEvent {
	return &model.DonationEvent{
		EventID:    e.EventID,
		OrderID:    e.OrderID,
		PaymentID:  e.PaymentID,
		Status:     model.DonationStatus(e.Status),
		Amount:     e.Amount,
		Method:     e.Method,
		Reason:     e.Reason,
		OccurredAt: e.OccurredAt,
	}
}
