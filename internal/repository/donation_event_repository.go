package repository

import (
	"context"
	"fmt"

	"ngo_donation/internal/model"

	"gorm.io/gorm"
)

// DonationEventRepository 捐款事件审计表，只追加。
type DonationEventRepository struct {
	db *gorm.DB
}

func NewDonationEventRepository(db *gorm.DB) *DonationEventRepository {
	return &DonationEventRepository{db: db}
}

// Append 按 event_id 幂等写入：重复投递返回 (false, nil)。
func (r *DonationEventRepository) Append(ctx context.Context, ev *model.DonationEvent) (bool, error) {
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("append donation event: %w", err)
	}
	return true, nil
}
