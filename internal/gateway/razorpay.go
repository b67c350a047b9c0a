package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
)

// RazorpayClient 调用 Razorpay REST API：创建订单、查询支付。
// 由 main 构造后注入服务，不持有任何全局状态。
type RazorpayClient struct {
	baseURL string
	keyID   string
	auth    string
	timeout time.Duration
	http    *fasthttp.Client
}

func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	return &RazorpayClient{
		baseURL: baseURL,
		keyID:   keyID,
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(keyID+":"+keySecret)),
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "ngo-donation",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// KeyID 公钥 ID，可以安全地返回给前端 checkout。
func (c *RazorpayClient) KeyID() string { return c.keyID }

// CreateOrder POST /v1/orders
func (c *RazorpayClient) CreateOrder(ctx context.Context, in OrderRequest) (*Order, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	var out Order
	if err := c.do(ctx, "create order", fasthttp.MethodPost, "/v1/orders", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchPayment GET /v1/payments/{id}
func (c *RazorpayClient) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out Payment
	path := "/v1/payments/" + url.PathEscape(paymentID)
	if err := c.do(ctx, "fetch payment", fasthttp.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RazorpayClient) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return &UpstreamError{Op: op, Err: err}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	// 请求级超时与 ctx deadline 取更早者。
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return &UpstreamError{Op: op, Err: err}
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		upErr := &UpstreamError{Op: op, StatusCode: status}
		var eb errorBody
		if json.Unmarshal(resp.Body(), &eb) == nil {
			upErr.Code = eb.Error.Code
			upErr.Description = eb.Error.Description
		}
		return upErr
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &UpstreamError{Op: op, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
