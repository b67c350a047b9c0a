package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ngo_donation/internal/config"
	"ngo_donation/internal/gateway"
	"ngo_donation/internal/model"
	"ngo_donation/internal/queue"
	"ngo_donation/internal/repository"
	"ngo_donation/internal/service"
	"ngo_donation/internal/validator"
	rediskey "ngo_donation/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "rzp_test_secret"

type stubGateway struct {
	mu      sync.Mutex
	created int
	payment gateway.Payment
}

func (g *stubGateway) CreateOrder(_ context.Context, in gateway.OrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created++
	return &gateway.Order{ID: fmt.Sprintf("order_%d", g.created), Amount: in.AmountMinor, Currency: in.Currency, Receipt: in.Receipt}, nil
}

func (g *stubGateway) FetchPayment(_ context.Context, paymentID string) (*gateway.Payment, error) {
	p := g.payment
	p.ID = paymentID
	return &p, nil
}

func (g *stubGateway) KeyID() string { return "rzp_test_key" }

type testServer struct {
	engine *gin.Engine
	gw     *stubGateway
	store  *repository.DonationRepository
}

func newTestServer(t *testing.T, mutate func(*config.AppConfig)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.AppConfig{
		Env:               config.EnvProduction,
		Currency:          "INR",
		NGOName:           "MyHeart Foundation",
		APIRateLimit:      100,
		APIRateWindow:     15 * time.Minute,
		PaymentRateLimit:  100,
		PaymentRateWindow: 10 * time.Minute,
		ReportMaxLimit:    500,
		MaxBodyBytes:      10 << 10,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	db, err := repository.Open(":memory:")
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := repository.NewDonationRepository(db)
	gw := &stubGateway{payment: gateway.Payment{Status: gateway.PaymentCaptured, Method: "upi", Amount: 100000}}
	v := validator.New()
	events := queue.NewStreamPublisher(rdb, "ngo_donation:events:test")

	r := gin.New()
	Setup(r, Deps{
		Config:    cfg,
		Redis:     rdb,
		Orders:    service.NewOrderService(gw, store, rediskey.NewIdempotencyStore(rdb, time.Hour), v, service.OrderConfig{Currency: cfg.Currency, NGOName: cfg.NGOName}),
		Verifier:  service.NewVerificationService(gw, gateway.NewSigner(testSecret), store, events, v),
		Failures:  service.NewFailureNotifier(store, events),
		Reports:   service.NewReportingService(store, cfg.ReportMaxLimit),
		StartedAt: time.Now(),
	})
	return &testServer{engine: r, gw: gw, store: store}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var out response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (s *testServer) createOrder(t *testing.T) service.CreateOrderResult {
	t.Helper()
	w, resp := s.do(t, http.MethodPost, "/api/payment/create-order", `{"amount":"1000","name":"Asha","email":"asha@x.com","phone":"9876543210"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out service.CreateOrderResult
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func TestCreateOrderEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	w, resp := s.do(t, http.MethodPost, "/api/payment/create-order", `{"amount":1000,"name":"Asha","email":"Asha@X.com"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "Order successfully created", resp.Message)

	var data map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "order_1", data["orderId"])
	assert.Equal(t, float64(100000), data["amount"])
	assert.Equal(t, float64(1000), data["amountInRupees"])
	assert.Equal(t, "INR", data["currency"])
	assert.Equal(t, "rzp_test_key", data["razorpayKeyId"])
	assert.Equal(t, map[string]any{"name": "Asha", "email": "asha@x.com", "phone": ""}, data["donorDetails"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCreateOrderValidationEnvelope(t *testing.T) {
	s := newTestServer(t, nil)

	w, resp := s.do(t, http.MethodPost, "/api/payment/create-order", `{"amount":600000,"name":"Asha","email":"asha@x.com"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Maximum donation limit is Rs.5,00,000", resp.Message)

	w, resp = s.do(t, http.MethodPost, "/api/payment/create-order", `{"amount":0,"name":"Asha","email":"asha@x.com"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "A valid amount is required (minimum Rs.1)", resp.Message)

	w, resp = s.do(t, http.MethodPost, "/api/payment/create-order", `{"amount":`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", resp.Message)

	assert.Equal(t, 0, s.gw.created)
}

func TestCreateOrderBodyTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.AppConfig) { c.MaxBodyBytes = 64 })

	body := `{"amount":100,"name":"` + strings.Repeat("a", 200) + `","email":"asha@x.com"}`
	w, resp := s.do(t, http.MethodPost, "/api/payment/create-order", body, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, resp.Success)
}

func TestCreateOrderIdempotencyHeader(t *testing.T) {
	s := newTestServer(t, nil)
	body := `{"amount":500,"name":"Asha","email":"asha@x.com"}`
	headers := map[string]string{"Idempotency-Key": "checkout-42"}

	w1, r1 := s.do(t, http.MethodPost, "/api/payment/create-order", body, headers)
	require.Equal(t, http.StatusCreated, w1.Code)
	w2, r2 := s.do(t, http.MethodPost, "/api/payment/create-order", body, headers)
	require.Equal(t, http.StatusCreated, w2.Code)

	assert.JSONEq(t, string(r1.Data), string(r2.Data))
	assert.Equal(t, "true", w2.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, s.gw.created)

	changed := `{"amount":900,"name":"Asha","email":"asha@x.com"}`
	w3, r3 := s.do(t, http.MethodPost, "/api/payment/create-order", changed, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, w3.Code)
	assert.False(t, r3.Success)
	assert.Equal(t, 1, s.gw.created)
}

func TestVerifyEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	order := s.createOrder(t)
	sig := gateway.NewSigner(testSecret).Sign(order.OrderID, "pay_1")

	body := fmt.Sprintf(`{"razorpay_order_id":%q,"razorpay_payment_id":"pay_1","razorpay_signature":%q,"donorDetails":{"name":"Asha"}}`, order.OrderID, sig)
	w, resp := s.do(t, http.MethodPost, "/api/payment/verify", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Donation successful! Thank you from the heart", resp.Message)

	var receipt map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &receipt))
	assert.Equal(t, "pay_1", receipt["paymentId"])
	assert.Equal(t, float64(1000), receipt["amount"])
	assert.Equal(t, "Asha", receipt["donor"])
	assert.Equal(t, "upi", receipt["method"])
	assert.NotEmpty(t, receipt["timestamp"])

	d, err := s.store.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.DonationSuccess, d.Status)
	assert.Equal(t, "", d.Donor.Phone, "phone falls back to provider contact, which is empty here")
}

func TestVerifyEndpointRejectsBadSignature(t *testing.T) {
	s := newTestServer(t, nil)
	order := s.createOrder(t)

	body := fmt.Sprintf(`{"razorpay_order_id":%q,"razorpay_payment_id":"pay_1","razorpay_signature":"deadbeef"}`, order.OrderID)
	w, resp := s.do(t, http.MethodPost, "/api/payment/verify", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Payment verification failed: signature is invalid", resp.Message)

	d, err := s.store.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.DonationFailed, d.Status)
}

func TestVerifyEndpointIncomplete(t *testing.T) {
	s := newTestServer(t, nil)

	w, resp := s.do(t, http.MethodPost, "/api/payment/verify", `{"razorpay_order_id":"order_1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Payment details are incomplete", resp.Message)
}

func TestPaymentFailedAlwaysAcks(t *testing.T) {
	s := newTestServer(t, nil)
	order := s.createOrder(t)

	for _, body := range []string{
		fmt.Sprintf(`{"orderId":%q,"error":{"description":"Payment cancelled by user"}}`, order.OrderID),
		`{"orderId":"order_unknown"}`,
		`not json`,
		``,
	} {
		w, resp := s.do(t, http.MethodPost, "/api/payment/failed", body, nil)
		assert.Equal(t, http.StatusOK, w.Code, body)
		assert.True(t, resp.Success)
		assert.Equal(t, "Failed payment logged", resp.Message)
	}

	d, err := s.store.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.DonationFailed, d.Status)
}

func TestListDonationsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	signer := gateway.NewSigner(testSecret)
	for i := 0; i < 2; i++ {
		order := s.createOrder(t)
		paymentID := fmt.Sprintf("pay_%d", i)
		body := fmt.Sprintf(`{"razorpay_order_id":%q,"razorpay_payment_id":%q,"razorpay_signature":%q}`, order.OrderID, paymentID, signer.Sign(order.OrderID, paymentID))
		w, _ := s.do(t, http.MethodPost, "/api/payment/verify", body, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	s.createOrder(t)

	w, resp := s.do(t, http.MethodGet, "/api/payment/donations", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report struct {
		TotalDonations     int              `json:"totalDonations"`
		TotalAmount        float64          `json:"totalAmount"`
		TotalAmountDisplay string           `json:"totalAmountDisplay"`
		Donations          []map[string]any `json:"donations"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, 2, report.TotalDonations)
	assert.Equal(t, 2000.0, report.TotalAmount)
	assert.Equal(t, "Rs.2,000", report.TotalAmountDisplay)
	require.Len(t, report.Donations, 2)
	for _, d := range report.Donations {
		assert.NotContains(t, d, "orderId")
		assert.NotContains(t, d, "email")
		assert.Contains(t, d, "paymentId")
	}

	w, resp = s.do(t, http.MethodGet, "/api/payment/donations?limit=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, 1, report.TotalDonations)

	w, resp = s.do(t, http.MethodGet, "/api/payment/donations?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "limit must be a positive integer", resp.Message)
}

func TestPaymentRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.AppConfig) { c.PaymentRateLimit = 2 })

	for i := 0; i < 2; i++ {
		w, _ := s.do(t, http.MethodGet, "/api/payment/donations", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, resp := s.do(t, http.MethodGet, "/api/payment/donations", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Too many payment requests. Please wait a while and try again.", resp.Message)
}

func TestBannerHealthAndNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	w, resp := s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, "MyHeart Foundation")

	w, _ = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "OK", health["status"])
	assert.Contains(t, health, "uptime")

	w, resp = s.do(t, http.MethodGet, "/api/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Route /api/unknown not found", resp.Message)
}
