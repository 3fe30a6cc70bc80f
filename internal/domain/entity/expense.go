package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a submitted expense claim
type Expense struct {
	ID               int64           `json:"id"`
	EmployeeID       int64           `json:"employee_id"`
	CompanyID        int64           `json:"company_id"`
	AmountOriginal   decimal.Decimal `json:"amount_original"`
	CurrencyOriginal string          `json:"currency_original"`
	AmountConverted  decimal.Decimal `json:"amount_converted"`
	Category         string          `json:"category"`
	Description      string          `json:"description"`
	ExpenseDate      time.Time       `json:"date"`
	Status           string          `json:"status"`

	// Stalled marks a pending expense with no legal next step
	Stalled     bool   `json:"stalled"`
	StallReason string `json:"stall_reason,omitempty"`

	Comments   string    `json:"comments,omitempty"`
	ReceiptURL string    `json:"receipt_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsTerminal reports whether the expense has reached a final decision
func (e *Expense) IsTerminal() bool {
	return e.Status == StatusApproved || e.Status == StatusRejected
}
