package port

import (
	"context"
	"errors"
	"io"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupportedCurrency is returned when no rate exists for a currency pair
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrUnknownCountry is returned when a country has no known currency
	ErrUnknownCountry = errors.New("unknown country")
)

// CurrencyConverter converts an amount between ISO currencies
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// CountryResolver finds the settlement currency of a country
type CountryResolver interface {
	CurrencyForCountry(ctx context.Context, country string) (string, error)
}

// ApproverNotifier tells an approver that a record is waiting for them
type ApproverNotifier interface {
	NotifyApprovalRequested(ctx context.Context, approver *entity.Employee, expense *entity.Expense, record *entity.ApprovalRecord) error
}

// ExpenseExporter renders an expense ledger to w
type ExpenseExporter interface {
	Export(ctx context.Context, w io.Writer, rows []ExportRow) error
}

// ExportRow is one expense with its submitter and decisions
type ExportRow struct {
	Expense   *entity.Expense
	Submitter *entity.Employee
	Approvals []*entity.ApprovalRecord
}
