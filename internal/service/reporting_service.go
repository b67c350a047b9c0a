package service

import (
	"context"

	"ngo_donation/internal/apperrors"
)

const DefaultReportLimit = 100

// ReportingService 只读 success 记录，最新的在前。
type ReportingService struct {
	store    DonationStore
	maxLimit int
}

func NewReportingService(store DonationStore, maxLimit int) *ReportingService {
	if maxLimit <= 0 {
		maxLimit = DefaultReportLimit
	}
	return &ReportingService{store: store, maxLimit: maxLimit}
}

// ListSuccessful limit <= 0 时使用默认值，超过上限时截断。
// totalAmount 是本次返回记录的金额之和。
func (s *ReportingService) ListSuccessful(ctx context.Context, limit int) (*DonationReport, error) {
	if limit <= 0 {
		limit = min(DefaultReportLimit, s.maxLimit)
	}
	limit = min(limit, s.maxLimit)

	list, err := s.store.ListSuccessful(ctx, limit)
	if err != nil {
		return nil, apperrors.Internal(err, "Could not fetch donations")
	}

	total := SumAmounts(list)
	report := &DonationReport{
		TotalDonations:     len(list),
		TotalAmount:        total.InexactFloat64(),
		TotalAmountDisplay: FormatRupees(total),
		Donations:          make([]DonationSummary, 0, len(list)),
	}
	for _, d := range list {
		report.Donations = append(report.Donations, DonationSummary{
			Amount:    d.Amount,
			Donor:     DonorName{Name: d.Donor.Name},
			Method:    d.Method,
			PaymentID: d.PaymentID,
			CreatedAt: d.CreatedAt,
		})
	}
	return report, nil
}
