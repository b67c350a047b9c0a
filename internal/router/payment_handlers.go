package router

import (
	"errors"
	"net/http"
	"strings"

	"ngo_donation/internal/apperrors"
	"ngo_donation/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// bindJSON 请求体解析失败统一为 400，超出大小限制为 413。
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondFail(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		respondFail(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// createOrder POST /api/payment/create-order
func createOrder(orders *service.OrderService, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in service.CreateOrderInput
		if !bindJSON(c, &in) {
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader(idempotencyHeader))
		res, err := orders.CreateOrder(c.Request.Context(), in, idemKey)
		if err != nil {
			respondError(c, err, debug)
			return
		}
		if res.Replayed {
			c.Header(replayedHeader, "true")
		}
		respondOK(c, http.StatusCreated, "Order successfully created", res)
	}
}

// verifyPayment POST /api/payment/verify
func verifyPayment(verifier *service.VerificationService, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in service.VerifyInput
		if !bindJSON(c, &in) {
			return
		}

		receipt, err := verifier.Verify(c.Request.Context(), in)
		if err != nil {
			respondError(c, err, debug)
			return
		}
		respondOK(c, http.StatusOK, "Donation successful! Thank you from the heart", receipt)
	}
}

// paymentFailed POST /api/payment/failed，总是确认收到。
func paymentFailed(failures *service.FailureNotifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in service.FailureInput
		_ = c.ShouldBindJSON(&in)

		failures.RecordFailure(c.Request.Context(), in.OrderID, in.Error.Description)
		respondOK(c, http.StatusOK, "Failed payment logged", nil)
	}
}

// listDonations GET /api/payment/donations?limit=N
// TODO: 管理员鉴权，目前任何人都能访问该列表。
func listDonations(reports *service.ReportingService, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := cast.ToIntE(raw)
			if err != nil || n <= 0 {
				respondError(c, apperrors.Validation("limit must be a positive integer"), debug)
				return
			}
			limit = n
		}

		report, err := reports.ListSuccessful(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err, debug)
			return
		}
		respondOK(c, http.StatusOK, "", report)
	}
}
