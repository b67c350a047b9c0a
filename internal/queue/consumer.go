package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ngo_donation/internal/logger"
	"ngo_donation/internal/model"

	"github.com/segmentio/kafka-go"
)

const (
	appendRetryBase = 200 * time.Millisecond
	appendRetryMax  = 5 * time.Second
)

// errMalformedEvent 无法解析或校验失败的消息，重试也没有意义。
var errMalformedEvent = errors.New("malformed donation event")

// EventAppender 由 repository.DonationEventRepository 实现。
type EventAppender interface {
	Append(ctx context.Context, ev *model.DonationEvent) (bool, error)
}

// Consumer 从 Kafka 读取捐款事件并写入 donation_events 审计表。
// 语义：落库成功（或确认是脏消息）后才提交 offset。
type Consumer struct {
	r      *kafka.Reader
	events EventAppender
	log    *slog.Logger

	retryBase time.Duration
	retryMax  time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, events EventAppender) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		events:    events,
		log:       logger.With("component", "donation_consumer", "topic", topic),
		retryBase: appendRetryBase,
		retryMax:  appendRetryMax,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}
		if err := c.process(ctx, m.Value); err != nil {
			return // 只有 ctx 取消才会走到这里，offset 未提交，重启后重新消费
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			c.log.Warn("consumer commit offset", "offset", m.Offset, "error", err)
		}
	}
}

// process 落库失败时指数退避重试，直到成功或 ctx 取消；脏消息直接跳过。
func (c *Consumer) process(ctx context.Context, value []byte) error {
	delay := c.retryBase
	for {
		err := c.handle(ctx, value)
		if err == nil {
			return nil
		}
		if errors.Is(err, errMalformedEvent) {
			c.log.Warn("consumer drop malformed event", "error", err)
			return nil
		}

		c.log.Warn("consumer append event, retrying", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, c.retryMax)
	}
}

// handle 解析并落库；重复消息（UNIQUE event_id）直接当作成功。
func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var ev DonationEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", errMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}

	inserted, err := c.events.Append(ctx, ev.Record())
	if err != nil {
		return err
	}
	if !inserted {
		c.log.Debug("consumer duplicate event", "event_id", ev.EventID)
	}
	return nil
}
