// Package purchase defines purchase requests and the approval rules that move
// them from submission to a final decision.
package purchase

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Purpose classifies what a purchase request pays for.
type Purpose string

const (
	PurposeProcurement   Purpose = "Procurement"
	PurposeSalary        Purpose = "Salary"
	PurposeRepair        Purpose = "Repair"
	PurposeSmallPurchase Purpose = "Small Purchase"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeProcurement, PurposeSalary, PurposeRepair, PurposeSmallPurchase:
		return true
	}
	return false
}

// PaymentSequence records whether the payment or the bill came first.
type PaymentSequence string

const (
	PaymentFirst       PaymentSequence = "payment_first"
	BillFirst          PaymentSequence = "bill_first"
	PaymentWithoutBill PaymentSequence = "payment_without_bill"
)

// Valid reports whether s is a known payment sequence.
func (s PaymentSequence) Valid() bool {
	switch s {
	case PaymentFirst, BillFirst, PaymentWithoutBill:
		return true
	}
	return false
}

// BillType is the billing-system tag attached to the receipt.
type BillType string

const (
	BillQuantum  BillType = "quantum"
	BillCovalent BillType = "covalent"
)

// Valid reports whether b is a known bill type.
func (b BillType) Valid() bool {
	return b == BillQuantum || b == BillCovalent
}

// Hub is the office a request originates from.
type Hub string

const (
	HubMumbai    Hub = "mumbai"
	HubDelhi     Hub = "delhi"
	HubBangalore Hub = "bangalore"
	HubPune      Hub = "pune"
)

// Valid reports whether h is a known hub.
func (h Hub) Valid() bool {
	switch h {
	case HubMumbai, HubDelhi, HubBangalore, HubPune:
		return true
	}
	return false
}

// Status is the approval state of a purchase request.
type Status string

const (
	StatusPending          Status = "pending"
	StatusDirectorApproved Status = "director_approved"
	StatusFinanceApproved  Status = "finance_approved"
	StatusRejected         Status = "rejected"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusPending, StatusDirectorApproved, StatusFinanceApproved, StatusRejected}

// ParseStatus converts raw input into a Status.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Statuses {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusFinanceApproved || s == StatusRejected
}

// MaxAmount is the exclusive upper bound on amounts; stores keep two decimal
// places and sixteen integer digits.
var MaxAmount = decimal.New(1, 16)

// ApprovalThreshold is the amount at and above which director sign-off is
// required before finance may approve.
var ApprovalThreshold = decimal.NewFromInt(10000)

// Approval is a single sign-off recorded on a purchase.
type Approval struct {
	Approved bool
	Date     time.Time
}

// Purchase is a submitted purchase request.
type Purchase struct {
	ID               string
	UploaderName     string
	VendorName       string
	Purpose          Purpose
	Amount           decimal.Decimal
	PaymentSequence  PaymentSequence
	BillType         BillType
	Hub              Hub
	FileURL          string
	FileName         string
	PaymentDate      time.Time
	CreatedAt        time.Time
	Status           Status
	DirectorApproval *Approval
	FinanceApproval  *Approval
}

// RequiresDirector reports whether the amount falls in the director tier.
func (p Purchase) RequiresDirector() bool {
	return p.Amount.GreaterThanOrEqual(ApprovalThreshold)
}

// DirectorApproved reports whether a director approval is recorded.
func (p Purchase) DirectorApproved() bool {
	return p.DirectorApproval != nil && p.DirectorApproval.Approved
}

// FinanceApproved reports whether a finance approval is recorded.
func (p Purchase) FinanceApproved() bool {
	return p.FinanceApproval != nil && p.FinanceApproval.Approved
}

// Draft carries the submitter-provided fields of a new purchase.
type Draft struct {
	UploaderName    string
	VendorName      string
	Purpose         Purpose
	Amount          decimal.Decimal
	PaymentSequence PaymentSequence
	BillType        BillType
	Hub             Hub
	FileURL         string
	FileName        string
	PaymentDate     time.Time
}

// Validate checks the draft against the closed value sets and required fields.
func (d Draft) Validate() error {
	switch {
	case strings.TrimSpace(d.UploaderName) == "":
		return invalid("uploaderName", "is required")
	case strings.TrimSpace(d.VendorName) == "":
		return invalid("vendorName", "is required")
	case !d.Purpose.Valid():
		return invalid("purpose", "must be one of Procurement, Salary, Repair, Small Purchase")
	case d.Amount.IsNegative():
		return invalid("amount", "must not be negative")
	case !d.Amount.Equal(d.Amount.Truncate(2)):
		return invalid("amount", "must have at most two decimal places")
	case d.Amount.GreaterThanOrEqual(MaxAmount):
		return invalid("amount", "must be less than "+MaxAmount.String())
	case !d.PaymentSequence.Valid():
		return invalid("paymentSequence", "must be one of payment_first, bill_first, payment_without_bill")
	case !d.BillType.Valid():
		return invalid("billType", "must be one of quantum, covalent")
	case !d.Hub.Valid():
		return invalid("hub", "must be one of mumbai, delhi, bangalore, pune")
	case d.PaymentDate.IsZero():
		return invalid("paymentDate", "is required")
	case d.PaymentSequence != PaymentWithoutBill && strings.TrimSpace(d.FileURL) == "":
		return invalid("fileUrl", "is required unless paymentSequence is payment_without_bill")
	}
	return nil
}

// New builds a pending purchase from a validated draft.
func New(d Draft, now time.Time) (Purchase, error) {
	if err := d.Validate(); err != nil {
		return Purchase{}, err
	}
	return Purchase{
		UploaderName:    strings.TrimSpace(d.UploaderName),
		VendorName:      strings.TrimSpace(d.VendorName),
		Purpose:         d.Purpose,
		Amount:          d.Amount,
		PaymentSequence: d.PaymentSequence,
		BillType:        d.BillType,
		Hub:             d.Hub,
		FileURL:         strings.TrimSpace(d.FileURL),
		FileName:        strings.TrimSpace(d.FileName),
		PaymentDate:     d.PaymentDate,
		CreatedAt:       now,
		Status:          StatusPending,
	}, nil
}

// WithFile returns a copy of p pointing at a replacement receipt. Status and
// approvals are left as they are.
func (p Purchase) WithFile(fileURL, fileName string) Purchase {
	p.FileURL = fileURL
	p.FileName = fileName
	return p
}
