package service

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Amount 接受 JSON 数字或数字字符串（表单常把金额作为字符串提交）。
// Set=false 表示缺失、null 或无法解析。
type Amount struct {
	Value float64
	Set   bool
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = Amount{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		a.Value, a.Set = v, true
	case string:
		f, err := cast.ToFloat64E(strings.TrimSpace(v))
		if err != nil || strings.TrimSpace(v) == "" {
			return nil
		}
		a.Value, a.Set = f, true
	}
	if math.IsNaN(a.Value) || math.IsInf(a.Value, 0) {
		*a = Amount{}
	}
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Set {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value)
}

// CreateOrderInput POST /api/payment/create-order
type CreateOrderInput struct {
	Amount Amount `json:"amount"`
	Name   string `json:"name" validate:"required,min=2,max=128"`
	Email  string `json:"email" validate:"required,donor_email,max=255"`
	Phone  string `json:"phone" validate:"max=32"`
}

// DonorDetails 规范化后的捐款人信息。
type DonorDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CreateOrderResult 返回给前端 checkout 组件的订单句柄。
type CreateOrderResult struct {
	OrderID        string       `json:"orderId"`
	Amount         int64        `json:"amount"` // paise，直接交给 checkout
	AmountInRupees float64      `json:"amountInRupees"`
	Currency       string       `json:"currency"`
	RazorpayKeyID  string       `json:"razorpayKeyId"`
	DonorDetails   DonorDetails `json:"donorDetails"`

	// Replayed 同一幂等键的重复请求，返回的是已有订单。
	Replayed bool `json:"-"`
}

// VerifyInput POST /api/payment/verify，字段名沿用网关回调的命名。
type VerifyInput struct {
	OrderID      string         `json:"razorpay_order_id" validate:"required"`
	PaymentID    string         `json:"razorpay_payment_id" validate:"required"`
	Signature    string         `json:"razorpay_signature" validate:"required"`
	DonorDetails *DonorOverride `json:"donorDetails"`
}

// DonorOverride 客户端提供的展示用捐款人信息，不参与任何安全判断。
type DonorOverride struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Receipt 校验成功后的回执。
type Receipt struct {
	DonationID uint      `json:"donationId"`
	PaymentID  string    `json:"paymentId"`
	Amount     float64   `json:"amount"`
	Donor      string    `json:"donor"`
	Method     string    `json:"method"`
	Timestamp  time.Time `json:"timestamp"`
}

// FailureInput POST /api/payment/failed
type FailureInput struct {
	OrderID string `json:"orderId"`
	Error   struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// DonationSummary 公开列表只暴露这些字段，不含邮箱、电话、order_id。
type DonationSummary struct {
	Amount    float64   `json:"amount"`
	Donor     DonorName `json:"donor"`
	Method    string    `json:"method"`
	PaymentID string    `json:"paymentId"`
	CreatedAt time.Time `json:"createdAt"`
}

type DonorName struct {
	Name string `json:"name"`
}

// DonationReport GET /api/payment/donations
type DonationReport struct {
	TotalDonations     int               `json:"totalDonations"`
	TotalAmount        float64           `json:"totalAmount"`
	TotalAmountDisplay string            `json:"totalAmountDisplay"`
	Donations          []DonationSummary `json:"donations"`
}
