package service

import (
	"context"

	"ngo_donation/internal/gateway"
	"ngo_donation/internal/model"
	"ngo_donation/internal/queue"
	"ngo_donation/internal/repository"
	rediskey "ngo_donation/pkg/redis"
)

// PaymentGateway 支付网关的最小接口，生产实现是 gateway.RazorpayClient。
type PaymentGateway interface {
	CreateOrder(ctx context.Context, in gateway.OrderRequest) (*gateway.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	KeyID() string
}

type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}

// DonationStore 由 repository.DonationRepository 实现。
type DonationStore interface {
	Create(ctx context.Context, d *model.Donation) error
	FindByOrderID(ctx context.Context, orderID string) (*model.Donation, error)
	MarkFailed(ctx context.Context, orderID string) (bool, error)
	MarkSucceeded(ctx context.Context, orderID string, u repository.SuccessUpdate) (*model.Donation, error)
	ListSuccessful(ctx context.Context, limit int) ([]model.Donation, error)
}

// IdempotencyGuard 由 pkg/redis.IdempotencyStore 实现。
type IdempotencyGuard interface {
	Reserve(ctx context.Context, email, idemKey string) (rediskey.Reservation, error)
	Bind(ctx context.Context, res rediskey.Reservation, orderID string) error
	Takeover(ctx context.Context, res rediskey.Reservation) (rediskey.Reservation, error)
	Release(ctx context.Context, res rediskey.Reservation) error
}

// EventPublisher 终态事件出口：Redis outbox 或 no-op。
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.DonationEvent) error
}
