package purchase

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/Additional-Code/procura/internal/purchase"
)

var amountPrinter = message.NewPrinter(language.MustParse("en-IN"))

// Summary aggregates the purchases matched by a filter.
type Summary struct {
	Total            int
	ByStatus         map[purchase.Status]int
	TotalAmount      decimal.Decimal
	TotalAmountLabel string
}

// Summary counts the matching purchases per status and totals their amounts.
func (s *Service) Summary(ctx context.Context, filter Filter) (Summary, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseService.Summary")
	defer span.End()

	items, err := s.List(ctx, filter)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		Total:       len(items),
		ByStatus:    make(map[purchase.Status]int, len(purchase.Statuses)),
		TotalAmount: decimal.Zero,
	}
	for _, status := range purchase.Statuses {
		out.ByStatus[status] = 0
	}
	for _, p := range items {
		out.ByStatus[p.Status]++
		out.TotalAmount = out.TotalAmount.Add(p.Amount)
	}
	out.TotalAmountLabel = FormatAmount(out.TotalAmount)
	return out, nil
}

// FormatAmount renders an amount in rupees with Indian digit grouping.
func FormatAmount(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return amountPrinter.Sprintf("₹%v", number.Decimal(f, number.Scale(2)))
}
