package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ngo_donation/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotFound order_id 对应的捐款记录不存在。
	ErrNotFound = errors.New("donation not found")
	// ErrDuplicate 违反 order_id / payment_id 唯一约束。
	ErrDuplicate = errors.New("donation already exists")
	// ErrStatusConflict 记录已处于不允许本次迁移的终态。
	ErrStatusConflict = errors.New("donation status does not allow this transition")
)

// SuccessUpdate 校验成功时一次性写入的全部字段。
type SuccessUpdate struct {
	PaymentID string
	Method    string
	Amount    float64
	Donor     model.Donor
	Snapshot  datatypes.JSONMap
}

// DonationRepository 捐款记录存储。所有更新都只按 order_id 定位。
type DonationRepository struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

// Create 插入 pending 记录；唯一冲突返回 ErrDuplicate。
func (r *DonationRepository) Create(ctx context.Context, d *model.Donation) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: order_id=%s", ErrDuplicate, d.OrderID)
		}
		return fmt.Errorf("create donation: %w", err)
	}
	return nil
}

func (r *DonationRepository) FindByOrderID(ctx context.Context, orderID string) (*model.Donation, error) {
	var d model.Donation
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find donation: %w", err)
	}
	return &d, nil
}

// MarkFailed 仅 pending -> failed；success 永远不会被降级。
// 返回值表示是否真的发生了迁移。
func (r *DonationRepository) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Donation{}).
		Where("order_id = ? AND status = ?", orderID, model.DonationPending).
		Update("status", model.DonationFailed)
	if res.Error != nil {
		return false, fmt.Errorf("mark donation failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkSucceeded 在一条 UPDATE 里写入全部成功字段。
// 允许 success -> success（重复校验时幂等地重放同一更新），拒绝 failed -> success。
func (r *DonationRepository) MarkSucceeded(ctx context.Context, orderID string, u SuccessUpdate) (*model.Donation, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Donation{}).
		Where("order_id = ? AND status IN ?", orderID, []model.DonationStatus{model.DonationPending, model.DonationSuccess}).
		Updates(map[string]any{
			"payment_id":       u.PaymentID,
			"status":           model.DonationSuccess,
			"method":           u.Method,
			"amount":           u.Amount,
			"donor_name":       u.Donor.Name,
			"donor_email":      u.Donor.Email,
			"donor_phone":      u.Donor.Phone,
			"provider_payment": u.Snapshot,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return nil, fmt.Errorf("%w: payment_id=%s", ErrDuplicate, u.PaymentID)
		}
		return nil, fmt.Errorf("mark donation succeeded: %w", res.Error)
	}

	d, err := r.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		// 记录存在但没被更新：只可能是 failed 终态
		return d, ErrStatusConflict
	}
	return d, nil
}

// ListSuccessful 最新的在前；limit <= 0 表示不限制。
func (r *DonationRepository) ListSuccessful(ctx context.Context, limit int) ([]model.Donation, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", model.DonationSuccess).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var list []model.Donation
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	return list, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
