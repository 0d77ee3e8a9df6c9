package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Purchase is a purchase request row in the relational store. Approvals are
// flattened into nullable columns.
type Purchase struct {
	bun.BaseModel `bun:"table:purchases"`

	ID                 string          `bun:"id,pk"`
	UploaderName       string          `bun:"uploader_name,notnull"`
	VendorName         string          `bun:"vendor_name,notnull"`
	Purpose            string          `bun:"purpose,notnull"`
	Amount             decimal.Decimal `bun:"amount,notnull"`
	PaymentSequence    string          `bun:"payment_sequence,notnull"`
	BillType           string          `bun:"bill_type,notnull"`
	Hub                string          `bun:"hub,notnull"`
	FileURL            string          `bun:"file_url"`
	FileName           string          `bun:"file_name"`
	PaymentDate        time.Time       `bun:"payment_date,nullzero"`
	Status             string          `bun:"status,notnull"`
	DirectorApproved   *bool           `bun:"director_approved"`
	DirectorApprovedAt *time.Time      `bun:"director_approved_at"`
	FinanceApproved    *bool           `bun:"finance_approved"`
	FinanceApprovedAt  *time.Time      `bun:"finance_approved_at"`
	CreatedAt          time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time       `bun:"updated_at,nullzero"`
}
