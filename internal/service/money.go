package service

import (
	"strings"

	"ngo_donation/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToMinorUnits 先在卢比上四舍五入再乘 100，避免浮点误差。
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Round(0).Mul(hundred).IntPart()
}

// FromMinorUnits paise -> 卢比。
func FromMinorUnits(minor int64) float64 {
	return decimal.New(minor, -2).InexactFloat64()
}

// SumAmounts 用 decimal 累加，避免多笔浮点相加的漂移。
func SumAmounts(list []model.Donation) decimal.Decimal {
	total := decimal.Zero
	for _, d := range list {
		total = total.Add(decimal.NewFromFloat(d.Amount))
	}
	return total
}

// FormatRupees 印度数字分组：1,00,000 而不是 100,000。
func FormatRupees(amount decimal.Decimal) string {
	s := amount.Round(2).String()
	intPart, frac, _ := strings.Cut(s, ".")

	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	grouped := intPart
	if len(intPart) > 3 {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		groups = append([]string{head}, groups...)
		grouped = strings.Join(groups, ",") + "," + tail
	}

	out := "Rs." + grouped
	if neg {
		out = "-" + out
	}
	if frac != "" {
		out += "." + frac
	}
	return out
}
