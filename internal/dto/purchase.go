package dto

import (
	"encoding/json"
	"time"
)

// ApprovalResponse is a recorded sign-off.
type ApprovalResponse struct {
	Approved bool      `json:"approved"`
	Date     time.Time `json:"date"`
}

// PurchaseResponse represents a purchase request as exposed via transport layers.
// AllowedActions is null for anonymous callers and a possibly empty list for
// authenticated ones.
type PurchaseResponse struct {
	ID               string            `json:"id"`
	UploaderName     string            `json:"uploaderName"`
	VendorName       string            `json:"vendorName"`
	Purpose          string            `json:"purpose"`
	Amount           json.Number       `json:"amount"`
	PaymentSequence  string            `json:"paymentSequence"`
	BillType         string            `json:"billType"`
	Hub              string            `json:"hub"`
	FileURL          string            `json:"fileUrl,omitempty"`
	FileName         string            `json:"fileName,omitempty"`
	PaymentDate      time.Time         `json:"paymentDate"`
	CreatedAt        time.Time         `json:"createdAt"`
	Status           string            `json:"status"`
	DirectorApproval *ApprovalResponse `json:"directorApproval"`
	FinanceApproval  *ApprovalResponse `json:"financeApproval"`
	AllowedActions   []string          `json:"allowedActions"`
}

// SummaryResponse aggregates purchases for dashboards.
type SummaryResponse struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"byStatus"`
	TotalAmount      json.Number    `json:"totalAmount"`
	TotalAmountLabel string         `json:"totalAmountLabel"`
}

// LoginResponse carries a session token for an approver.
type LoginResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}
