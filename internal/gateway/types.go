package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// PaymentCaptured 网关确认资金已实际扣款的状态值。
const PaymentCaptured = "captured"

// OrderRequest 创建网关订单的参数，金额为最小货币单位（paise）。
type OrderRequest struct {
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Receipt     string            `json:"receipt"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// Order 网关订单。
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Payment 网关侧的真实支付信息，金额为 paise。
type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Method   string `json:"method"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Email    string `json:"email"`
	Contact  string `json:"contact"`
	Notes    Notes  `json:"notes"`
}

// Captured 只有 captured 才代表资金到账，authorized 不算。
func (p *Payment) Captured() bool { return p.Status == PaymentCaptured }

// Notes 订单/支付上的附加信息。网关在为空时返回 []，因此需要宽松解析。
type Notes map[string]any

func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		*n = Notes{}
		return nil
	}
	m := map[string]any{}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*n = m
	return nil
}

// Get 以字符串读取某个 note，不存在时返回空串。
func (n Notes) Get(key string) string {
	if n == nil {
		return ""
	}
	return cast.ToString(n[key])
}

// UpstreamError 网关不可达、返回非 2xx 或响应无法解析。
type UpstreamError struct {
	Op          string
	StatusCode  int
	Code        string
	Description string
	Err         error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("razorpay %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("razorpay %s: status=%d code=%s description=%s", e.Op, e.StatusCode, e.Code, e.Description)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type errorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}
