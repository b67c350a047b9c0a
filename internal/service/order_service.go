package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"ngo_donation/internal/apperrors"
	"ngo_donation/internal/gateway"
	"ngo_donation/internal/logger"
	"ngo_donation/internal/model"
	"ngo_donation/internal/repository"
	"ngo_donation/internal/validator"
	rediskey "ngo_donation/pkg/redis"

	"github.com/google/uuid"
)

const (
	msgAmountRequired  = "A valid amount is required (minimum Rs.1)"
	msgAmountTooLarge  = "Maximum donation limit is Rs.5,00,000"
	msgNameRequired    = "Name is required (minimum 2 characters)"
	msgEmailRequired   = "A valid email address is required"
	msgIdemKeyTooLong  = "Idempotency-Key must be at most 128 characters"
	msgOrderFailed     = "Order could not be created. Please try again later."
	msgOrderCompleted  = "This donation has already been completed"
	maxIdempotencyKey  = 128
	receiptPrefix      = "ngo_"
	receiptTokenLength = 16
	phoneNotProvided   = "N/A"
)

// OrderConfig 建单需要的部署级参数。
type OrderConfig struct {
	Currency string
	NGOName  string
}

// OrderService 校验捐款人输入，在网关建单，然后落 pending 记录。
type OrderService struct {
	gw     PaymentGateway
	store  DonationStore
	idem   IdempotencyGuard // 可为 nil
	valid  *validator.Validator
	config OrderConfig
}

func NewOrderService(gw PaymentGateway, store DonationStore, idem IdempotencyGuard, valid *validator.Validator, cfg OrderConfig) *OrderService {
	return &OrderService{gw: gw, store: store, idem: idem, valid: valid, config: cfg}
}

// CreateOrder idemKey 为空表示客户端未提供 Idempotency-Key。
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput, idemKey string) (*CreateOrderResult, error) {
	donor, err := s.normalize(&in)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(idemKey) > maxIdempotencyKey {
		return nil, apperrors.Validation(msgIdemKeyTooLong)
	}

	res, replay, err := s.reserve(ctx, donor.Email, idemKey, in.Amount.Value)
	if err != nil || replay != nil {
		return replay, err
	}

	result, err := s.create(ctx, in.Amount.Value, donor)
	if err != nil {
		s.release(ctx, res)
		return nil, err
	}

	if res.Acquired {
		if err := s.idem.Bind(ctx, res, result.OrderID); err != nil {
			logger.CtxWithError(ctx, "idempotency bind failed", err, "order_id", result.OrderID)
		}
	}
	return result, nil
}

// normalize 按 金额 -> 姓名 -> 邮箱 的顺序快速失败，无副作用。
func (s *OrderService) normalize(in *CreateOrderInput) (DonorDetails, error) {
	if !in.Amount.Set || in.Amount.Value < model.MinDonationAmount {
		return DonorDetails{}, apperrors.Validation(msgAmountRequired)
	}
	if in.Amount.Value > model.MaxDonationAmount {
		return DonorDetails{}, apperrors.Validation(msgAmountTooLarge)
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	if err := s.valid.Validate(in); err != nil {
		var verr *validator.ValidationError
		if !errors.As(err, &verr) {
			return DonorDetails{}, apperrors.Internal(err, msgOrderFailed)
		}
		switch {
		case verr.Field("name") != "" && utf8.RuneCountInString(in.Name) < 2:
			return DonorDetails{}, apperrors.Validation(msgNameRequired)
		case verr.Field("name") != "":
			return DonorDetails{}, apperrors.Validation("Name: " + verr.Field("name"))
		case verr.Field("email") != "":
			return DonorDetails{}, apperrors.Validation(msgEmailRequired)
		default:
			return DonorDetails{}, apperrors.Validation(verr.Error())
		}
	}

	return DonorDetails{Name: in.Name, Email: in.Email, Phone: in.Phone}, nil
}

// reserve Redis 不可用时降级为无幂等（fail-open）。
// 只有 pending 且金额一致的旧订单才会被重放。
func (s *OrderService) reserve(ctx context.Context, email, idemKey string, amount float64) (rediskey.Reservation, *CreateOrderResult, error) {
	if s.idem == nil || idemKey == "" {
		return rediskey.Reservation{}, nil, nil
	}

	res, err := s.idem.Reserve(ctx, email, idemKey)
	if err != nil {
		logger.CtxWithError(ctx, "idempotency reserve failed, continuing without it", err)
		return rediskey.Reservation{}, nil, nil
	}
	if res.Acquired {
		return res, nil, nil
	}
	if res.InProgress() {
		return res, nil, apperrors.ErrOrderInProgress
	}

	existing, err := s.store.FindByOrderID(ctx, res.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.CtxWarn(ctx, "idempotency key bound to unknown order", "order_id", res.OrderID)
			return res, nil, apperrors.ErrOrderInProgress
		}
		return res, nil, apperrors.Internal(err, msgOrderFailed)
	}

	switch existing.Status {
	case model.DonationFailed:
		// 旧订单已失败：接管幂等键重新建单
		return s.takeover(ctx, res)
	case model.DonationSuccess:
		return res, nil, apperrors.InvalidStatus(msgOrderCompleted)
	}
	if ToMinorUnits(existing.Amount) != ToMinorUnits(amount) {
		logger.CtxWarn(ctx, "idempotency key reused with different amount",
			"order_id", existing.OrderID, "stored", existing.Amount, "requested", amount)
		return res, nil, apperrors.ErrIdemKeyReused
	}

	result := s.resultFrom(existing)
	result.Replayed = true
	logger.CtxInfo(ctx, "order replayed for idempotency key", "order_id", existing.OrderID)
	return res, result, nil
}

func (s *OrderService) takeover(ctx context.Context, res rediskey.Reservation) (rediskey.Reservation, *CreateOrderResult, error) {
	taken, err := s.idem.Takeover(ctx, res)
	if err != nil {
		logger.CtxWithError(ctx, "idempotency takeover failed, continuing without it", err, "order_id", res.OrderID)
		return rediskey.Reservation{}, nil, nil
	}
	if !taken.Acquired {
		return taken, nil, apperrors.ErrOrderInProgress
	}
	logger.CtxInfo(ctx, "idempotency key released from failed order", "order_id", res.OrderID)
	return taken, nil, nil
}

func (s *OrderService) release(ctx context.Context, res rediskey.Reservation) {
	if !res.Acquired {
		return
	}
	if err := s.idem.Release(ctx, res); err != nil {
		logger.CtxWithError(ctx, "idempotency release failed", err)
	}
}

func (s *OrderService) create(ctx context.Context, amount float64, donor DonorDetails) (*CreateOrderResult, error) {
	order, err := s.gw.CreateOrder(ctx, gateway.OrderRequest{
		AmountMinor: ToMinorUnits(amount),
		Currency:    s.config.Currency,
		Receipt:     newReceiptID(),
		Notes: map[string]string{
			"donor_name":  donor.Name,
			"donor_email": donor.Email,
			"donor_phone": phoneOrNA(donor.Phone),
			"ngo":         s.config.NGOName,
		},
	})
	if err != nil {
		// 网关建单失败时不落任何记录
		logger.CtxWithError(ctx, "gateway create order failed", err, "amount", amount)
		return nil, apperrors.Upstream(err)
	}

	donation := &model.Donation{
		OrderID:   order.ID,
		PaymentID: model.PlaceholderPaymentID(order.ID),
		Amount:    amount,
		Currency:  s.config.Currency,
		Status:    model.DonationPending,
		Donor:     model.Donor{Name: donor.Name, Email: donor.Email, Phone: donor.Phone},
	}
	if err := s.store.Create(ctx, donation); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			logger.CtxWithError(ctx, "persist pending donation failed", err, "order_id", order.ID)
			return nil, apperrors.Internal(err, msgOrderFailed)
		}
		// order_id 唯一：重复插入视为已创建
		logger.CtxInfo(ctx, "pending donation already exists", "order_id", order.ID)
	}

	logger.CtxInfo(ctx, "order created", "order_id", order.ID, "amount", amount, "donor", donor.Name)

	result := s.resultFrom(donation)
	if order.Amount > 0 {
		result.Amount = order.Amount
	}
	if order.Currency != "" {
		result.Currency = order.Currency
	}
	return result, nil
}

func (s *OrderService) resultFrom(d *model.Donation) *CreateOrderResult {
	return &CreateOrderResult{
		OrderID:        d.OrderID,
		Amount:         ToMinorUnits(d.Amount),
		AmountInRupees: d.Amount,
		Currency:       d.Currency,
		RazorpayKeyID:  s.gw.KeyID(),
		DonorDetails:   DonorDetails{Name: d.Donor.Name, Email: d.Donor.Email, Phone: d.Donor.Phone},
	}
}

// newReceiptID ngo_ + 16 位随机 hex。
func newReceiptID() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return receiptPrefix + token[:receiptTokenLength]
}

func phoneOrNA(phone string) string {
	if phone == "" {
		return phoneNotProvided
	}
	return phone
}
