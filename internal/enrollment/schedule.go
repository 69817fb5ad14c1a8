package enrollment

import (
	"time"

	"github.com/shopspring/decimal"

	"courseplatform_echo/internal/models"
)

// BuildInstallments splits price into count monthly installments starting at startedAt.
// Amounts are rounded to cents and the last step absorbs the remainder, so the
// schedule always sums to price. A count of 1 or less yields no schedule.
func BuildInstallments(price decimal.Decimal, count int, startedAt time.Time) []models.Installment {
	if count <= 1 {
		return nil
	}

	per := price.Div(decimal.NewFromInt(int64(count))).Round(2)
	start := DateOf(startedAt)

	installments := make([]models.Installment, 0, count)
	allocated := decimal.Zero
	for i := 0; i < count; i++ {
		amount := per
		if i == count-1 {
			amount = price.Sub(allocated)
		}
		allocated = allocated.Add(amount)

		installments = append(installments, models.Installment{
			Step:    i + 1,
			Amount:  amount,
			DueDate: AddMonthsClamped(start, i),
			Status:  models.InstallmentStatusDue,
		})
	}
	return installments
}
