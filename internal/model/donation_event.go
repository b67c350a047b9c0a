package model

import "time"

// DonationEvent 捐款终态事件的审计记录，由 Kafka 消费者按 event_id 幂等写入。
type DonationEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EventID    string         `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	OrderID    string         `gorm:"size:64;not null;index" json:"order_id"`
	PaymentID  string         `gorm:"size:80" json:"payment_id"`
	Status     DonationStatus `gorm:"size:16;not null" json:"status"`
	Amount     float64        `json:"amount"`
	Method     string         `gorm:"size:32" json:"method"`
	Reason     string         `gorm:"size:255" json:"reason"`
	OccurredAt time.Time      `gorm:"not null" json:"occurred_at"`
}

func (DonationEvent) TableName() string { return "donation_events" }
