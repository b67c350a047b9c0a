package queue

import (
	"context"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// StreamPublisher 把事件 XADD 到 Redis Stream（outbox），请求路径上只依赖 Redis。
type StreamPublisher struct {
	rdb    *rd.Client
	stream string
}

func NewStreamPublisher(rdb *rd.Client, stream string) *StreamPublisher {
	return &StreamPublisher{rdb: rdb, stream: stream}
}

func (p *StreamPublisher) Publish(ctx context.Context, ev DonationEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return p.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id":    ev.EventID,
			"order_id":    ev.OrderID,
			"payment_id":  ev.PaymentID,
			"status":      ev.Status,
			"amount":      strconv.FormatFloat(ev.Amount, 'f', -1, 64),
			"method":      ev.Method,
			"reason":      ev.Reason,
			"occurred_at": ev.OccurredAt.Format(time.RFC3339Nano),
		},
	}).Err()
}

// NoopPublisher 关闭事件链路时使用。
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, DonationEvent) error { return nil }
