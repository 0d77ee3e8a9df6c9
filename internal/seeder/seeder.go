package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/purchase"
	repo "github.com/Additional-Code/procura/internal/repository/purchase"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	repo   repo.Repository
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Seeder on top of the configured purchase store.
func New(repository repo.Repository, logger *zap.Logger) *Seeder {
	return &Seeder{repo: repository, logger: logger, now: time.Now}
}

// Purchases seeds example purchase requests into an empty store. It returns
// the number of records written.
func (s *Seeder) Purchases(ctx context.Context) (int, error) {
	existing, err := s.repo.List(ctx, repo.Filter{})
	if err != nil {
		return 0, fmt.Errorf("check existing purchases: %w", err)
	}
	if len(existing) > 0 {
		if s.logger != nil {
			s.logger.Info("purchases already present; skipping seed", zap.Int("count", len(existing)))
		}
		return 0, nil
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	drafts := []purchase.Draft{
		{
			UploaderName: "Asha Rao", VendorName: "Lakshmi Office Supplies",
			Purpose: purchase.PurposeSmallPurchase, Amount: decimal.RequireFromString("2450.00"),
			PaymentSequence: purchase.BillFirst, BillType: purchase.BillQuantum, Hub: purchase.HubMumbai,
			FileURL: "https://files.procura.local/receipts/lakshmi-2450.pdf", FileName: "lakshmi-2450.pdf",
			PaymentDate: now.AddDate(0, 0, -3),
		},
		{
			UploaderName: "Vikram Shah", VendorName: "Deccan Electricals",
			Purpose: purchase.PurposeRepair, Amount: decimal.RequireFromString("18500.00"),
			PaymentSequence: purchase.PaymentFirst, BillType: purchase.BillCovalent, Hub: purchase.HubPune,
			FileURL: "https://files.procura.local/receipts/deccan-18500.pdf", FileName: "deccan-18500.pdf",
			PaymentDate: now.AddDate(0, 0, -2),
		},
		{
			UploaderName: "Meera Iyer", VendorName: "Northern Freight",
			Purpose: purchase.PurposeProcurement, Amount: decimal.RequireFromString("64000.00"),
			PaymentSequence: purchase.PaymentWithoutBill, BillType: purchase.BillQuantum, Hub: purchase.HubDelhi,
			PaymentDate: now.AddDate(0, 0, -1),
		},
	}

	for i, d := range drafts {
		p, err := purchase.New(d, now.Add(time.Duration(i)*time.Minute))
		if err != nil {
			return i, fmt.Errorf("seed draft %d: %w", i, err)
		}
		// The large procurement starts out with the director's sign-off.
		if p.RequiresDirector() && p.PaymentSequence == purchase.PaymentWithoutBill {
			if p, err = purchase.Apply(p, purchase.RoleDirector, purchase.ActionApprove, p.CreatedAt); err != nil {
				return i, err
			}
		}
		if err := s.repo.Create(ctx, &p); err != nil {
			return i, fmt.Errorf("seed purchase for %s: %w", p.VendorName, err)
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded purchases", zap.Int("count", len(drafts)))
	}
	return len(drafts), nil
}
