package model

import (
	"time"

	"gorm.io/datatypes"
)

// DonationStatus 描述一笔捐款的状态机：pending -> success | failed，终态不可再迁移。
type DonationStatus string

const (
	DonationPending DonationStatus = "pending" // 已在支付网关建单，等待支付结果
	DonationSuccess DonationStatus = "success" // 签名与网关 captured 均已确认
	DonationFailed  DonationStatus = "failed"  // 签名无效、未 captured 或客户端上报失败
)

// IsTerminal 终态不允许再迁移。
func (s DonationStatus) IsTerminal() bool {
	return s == DonationSuccess || s == DonationFailed
}

const (
	MinDonationAmount = 1
	MaxDonationAmount = 500000

	// PaymentIDPlaceholderPrefix 建单时 payment_id 尚不存在，用 pending_<orderId> 占位满足唯一约束。
	PaymentIDPlaceholderPrefix = "pending_"
)

// Donor 捐款人信息，内嵌到 donations 表（donor_ 前缀列）。
type Donor struct {
	Name  string `gorm:"size:128;not null" json:"name"`
	Email string `gorm:"size:255;not null;index" json:"email"`
	Phone string `gorm:"size:32;not null;default:''" json:"phone"`
}

// Donation 一次捐款尝试及其生命周期。只通过 order_id 定位更新。
type Donation struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index:idx_donations_created_at,sort:desc" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	OrderID   string         `gorm:"size:64;uniqueIndex;not null" json:"orderId"`
	PaymentID string         `gorm:"size:80;uniqueIndex;not null" json:"paymentId"`
	Amount    float64        `gorm:"not null" json:"amount"` // 主币种单位（卢比），不是 paise
	Currency  string         `gorm:"size:3;not null" json:"currency"`
	Status    DonationStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	Method    string         `gorm:"size:32" json:"method"`
	Donor     Donor          `gorm:"embedded;embeddedPrefix:donor_" json:"donor"`

	// ProviderPayment 保存校验成功时网关返回的支付快照，用于对账。
	ProviderPayment datatypes.JSONMap `gorm:"type:text" json:"-"`
}

func (Donation) TableName() string { return "donations" }

// PlaceholderPaymentID 生成建单时的 payment_id 占位值。
func PlaceholderPaymentID(orderID string) string {
	return PaymentIDPlaceholderPrefix + orderID
}
