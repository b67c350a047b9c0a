package service

import (
	"context"
	"strings"

	"ngo_donation/internal/logger"
	"ngo_donation/internal/model"
	"ngo_donation/internal/queue"
)

// FailureNotifier 记录客户端上报的支付失败/取消。
// 只是清理信号，权威的失败判定在 VerificationService；这里的任何错误都不向调用方暴露。
type FailureNotifier struct {
	store  DonationStore
	events EventPublisher
}

func NewFailureNotifier(store DonationStore, events EventPublisher) *FailureNotifier {
	return &FailureNotifier{store: store, events: events}
}

func (n *FailureNotifier) RecordFailure(ctx context.Context, orderID, description string) {
	orderID = strings.TrimSpace(orderID)
	logger.CtxWarn(ctx, "client reported payment failure", "order_id", orderID, "description", description)
	if orderID == "" {
		return
	}

	changed, err := n.store.MarkFailed(ctx, orderID)
	if err != nil {
		logger.CtxWithError(ctx, "record client failure", err, "order_id", orderID)
		return
	}
	if !changed {
		// 记录不存在或已是终态（success 不会被降级）
		return
	}

	ev := queue.NewDonationEvent(orderID, model.DonationFailed, queue.ReasonClientReported)
	if description != "" {
		ev.Reason = queue.ReasonClientReported + ":" + truncate(description, 200)
	}
	publish(ctx, n.events, ev)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
