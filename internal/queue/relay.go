package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"ngo_donation/internal/logger"

	rd "github.com/redis/go-redis/v9"
)

// EventWriter Relay 的下游，生产环境是 Kafka Producer。
type EventWriter interface {
	Publish(ctx context.Context, ev DonationEvent) error
}

// Relay 将 Redis Stream 事件异步转发到 Kafka。
// 语义：发布 Kafka 成功后才 ACK Stream，失败则保留消息等待重试。
type Relay struct {
	rdb    *rd.Client
	writer EventWriter
	log    *slog.Logger

	stream   string
	group    string
	consumer string
}

func NewRelay(rdb *rd.Client, writer EventWriter, stream, group, consumer string) *Relay {
	return &Relay{
		rdb:      rdb,
		writer:   writer,
		log:      logger.With("component", "donation_relay", "stream", stream),
		stream:   stream,
		group:    group,
		consumer: consumer,
	}
}

func (r *Relay) Run(ctx context.Context) {
	if err := r.ensureGroup(ctx); err != nil {
		r.log.Error("relay ensure group", "error", err)
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		// 先尝试处理当前消费者历史 pending，避免遗留消息长期堆积。
		msgs, err := r.readGroup(ctx, "0", 0)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			r.log.Warn("relay read pending", "error", err)
			time.Sleep(300 * time.Millisecond)
			continue
		}
		if len(msgs) == 0 {
			msgs, err = r.readGroup(ctx, ">", 2*time.Second)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				r.log.Warn("relay read new", "error", err)
				time.Sleep(300 * time.Millisecond)
				continue
			}
		}

		for _, xm := range msgs {
			if err := r.processOne(ctx, xm); err != nil {
				// 发布失败不 ACK，消息会继续保留用于重试。
				r.log.Warn("relay process message", "id", xm.ID, "error", err)
				time.Sleep(200 * time.Millisecond)
				break
			}
		}
	}
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]rd.XMessage, 0, 16)
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	ev, err := parseDonationEvent(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃，避免阻塞队列。
		r.log.Warn("relay drop malformed event", "id", xm.ID, "error", err)
		if ackErr := r.ackAndDelete(ctx, xm.ID); ackErr != nil {
			return fmt.Errorf("parse failed: %v, ack failed: %w", err, ackErr)
		}
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.writer.Publish(pubCtx, ev); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

func parseDonationEvent(values map[string]interface{}) (DonationEvent, error) {
	eventID, err := getStreamString(values, "event_id")
	if err != nil {
		return DonationEvent{}, err
	}
	orderID, err := getStreamString(values, "order_id")
	if err != nil {
		return DonationEvent{}, err
	}
	status, err := getStreamString(values, "status")
	if err != nil {
		return DonationEvent{}, err
	}
	amountStr, err := getStreamString(values, "amount")
	if err != nil {
		return DonationEvent{}, err
	}
	occurredStr, err := getStreamString(values, "occurred_at")
	if err != nil {
		return DonationEvent{}, err
	}

	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		return DonationEvent{}, fmt.Errorf("invalid amount %q", amountStr)
	}
	occurredAt, err := time.Parse(time.RFC3339Nano, occurredStr)
	if err != nil {
		return DonationEvent{}, fmt.Errorf("invalid occurred_at %q", occurredStr)
	}

	// 可选字段
	paymentID, _ := getStreamString(values, "payment_id")
	method, _ := getStreamString(values, "method")
	reason, _ := getStreamString(values, "reason")

	ev := DonationEvent{
		EventID:    eventID,
		OrderID:    orderID,
		PaymentID:  paymentID,
		Status:     status,
		Amount:     amount,
		Method:     method,
		Reason:     reason,
		OccurredAt: occurredAt,
	}
	if err := ev.Validate(); err != nil {
		return DonationEvent{}, err
	}
	return ev, nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
