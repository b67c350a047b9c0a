package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"ngo_donation/internal/apperrors"
	"ngo_donation/internal/gateway"
	"ngo_donation/internal/logger"
	"ngo_donation/internal/model"
	"ngo_donation/internal/queue"
	"ngo_donation/internal/repository"
	"ngo_donation/internal/validator"

	"gorm.io/datatypes"
)

const (
	msgIncompletePayment = "Payment details are incomplete"
	msgVerifyFailed      = "Verification failed. Please contact support."
	anonymousDonor       = "Anonymous"
)

// VerificationService 校验客户端提交的支付结果：
// 1. HMAC 签名（常数时间比较），不通过直接 failed，不访问网关
// 2. 向网关查询真实支付状态，非 captured 则 failed
// 3. captured 时一次性写入全部成功字段，金额以网关为准
type VerificationService struct {
	gw     PaymentGateway
	signer SignatureVerifier
	store  DonationStore
	events EventPublisher
	valid  *validator.Validator
}

func NewVerificationService(gw PaymentGateway, signer SignatureVerifier, store DonationStore, events EventPublisher, valid *validator.Validator) *VerificationService {
	return &VerificationService{gw: gw, signer: signer, store: store, events: events, valid: valid}
}

func (s *VerificationService) Verify(ctx context.Context, in VerifyInput) (*Receipt, error) {
	if err := s.valid.Validate(in); err != nil {
		return nil, apperrors.Validation(msgIncompletePayment)
	}

	if !s.signer.Verify(in.OrderID, in.PaymentID, in.Signature) {
		logger.CtxWarn(ctx, "invalid payment signature", "order_id", in.OrderID)
		s.markFailed(ctx, in.OrderID, in.PaymentID, queue.ReasonInvalidSignature)
		return nil, apperrors.ErrInvalidSignature
	}

	payment, err := s.gw.FetchPayment(ctx, in.PaymentID)
	if err != nil {
		// 支付可能仍在异步 capture，记录保持 pending
		logger.CtxWithError(ctx, "gateway fetch payment failed", err, "order_id", in.OrderID, "payment_id", in.PaymentID)
		return nil, apperrors.Upstream(err)
	}

	if !payment.Captured() {
		logger.CtxWarn(ctx, "payment not captured", "order_id", in.OrderID, "payment_id", in.PaymentID, "status", payment.Status)
		s.markFailed(ctx, in.OrderID, in.PaymentID, queue.ReasonNotCaptured+":"+payment.Status)
		return nil, apperrors.NotCaptured(payment.Status)
	}

	amount := FromMinorUnits(payment.Amount)
	if amount < model.MinDonationAmount || amount > model.MaxDonationAmount {
		logger.CtxError(ctx, "captured amount outside donation range", "order_id", in.OrderID, "payment_id", in.PaymentID, "amount", amount)
		return nil, apperrors.InvalidStatus("Captured amount is outside the accepted donation range")
	}

	donation, err := s.store.MarkSucceeded(ctx, in.OrderID, repository.SuccessUpdate{
		PaymentID: in.PaymentID,
		Method:    payment.Method,
		Amount:    amount,
		Donor:     resolveDonor(in.DonorDetails, payment),
		Snapshot:  snapshot(payment),
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		logger.CtxError(ctx, "captured payment has no donation record", "order_id", in.OrderID, "payment_id", in.PaymentID, "amount", amount)
		return nil, apperrors.NotFound("Donation record not found for this order")
	case errors.Is(err, repository.ErrStatusConflict):
		logger.CtxError(ctx, "captured payment on failed donation", "order_id", in.OrderID, "payment_id", in.PaymentID, "amount", amount)
		return nil, apperrors.InvalidStatus("Donation was already marked as failed")
	case err != nil:
		logger.CtxWithError(ctx, "persist verified donation failed", err, "order_id", in.OrderID)
		return nil, apperrors.Internal(err, msgVerifyFailed)
	}

	logger.CtxInfo(ctx, "payment verified", "order_id", in.OrderID, "payment_id", in.PaymentID, "amount", donation.Amount, "donor", donation.Donor.Name)

	ev := queue.NewDonationEvent(in.OrderID, model.DonationSuccess, queue.ReasonVerified)
	ev.PaymentID = in.PaymentID
	ev.Amount = donation.Amount
	ev.Method = donation.Method
	publish(ctx, s.events, ev)

	return &Receipt{
		DonationID: donation.ID,
		PaymentID:  in.PaymentID,
		Amount:     donation.Amount,
		Donor:      donation.Donor.Name,
		Method:     payment.Method,
		Timestamp:  donation.UpdatedAt,
	}, nil
}

// markFailed 失败分支的持久化是尽力而为，错误只记录。
func (s *VerificationService) markFailed(ctx context.Context, orderID, paymentID, reason string) {
	changed, err := s.store.MarkFailed(ctx, orderID)
	if err != nil {
		logger.CtxWithError(ctx, "mark donation failed", err, "order_id", orderID)
		return
	}
	if !changed {
		return
	}
	ev := queue.NewDonationEvent(orderID, model.DonationFailed, reason)
	ev.PaymentID = paymentID
	publish(ctx, s.events, ev)
}

// resolveDonor 客户端覆盖 -> 网关 notes -> 默认值。只影响展示字段。
func resolveDonor(override *DonorOverride, p *gateway.Payment) model.Donor {
	var o DonorOverride
	if override != nil {
		o = *override
	}
	return model.Donor{
		Name:  firstNonEmpty(o.Name, p.Notes.Get("donor_name"), anonymousDonor),
		Email: strings.ToLower(firstNonEmpty(o.Email, p.Notes.Get("donor_email"))),
		Phone: firstNonEmpty(o.Phone, p.Contact),
	}
}

// snapshot 保存网关返回的支付信息，供对账使用。
func snapshot(p *gateway.Payment) datatypes.JSONMap {
	b, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	m := datatypes.JSONMap{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func publish(ctx context.Context, events EventPublisher, ev queue.DonationEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, ev); err != nil {
		logger.CtxWithError(ctx, "publish donation event failed", err, "order_id", ev.OrderID, "status", ev.Status)
	}
}
