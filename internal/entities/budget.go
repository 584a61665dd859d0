package entities

import (
	"time"

	"github.com/shopspring/decimal"

	"fleet-system/pkg/constants"
)

// BudgetLine is one itemized position of a provider quote. Total is
// always recomputed server-side as Quantity * UnitPrice; client-supplied
// totals are ignored.
type BudgetLine struct {
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
}

// Budget is a provider quote plus its audit sub-flow state. A rejected
// budget is archived, never deleted, so the quote history stays
// append-only across re-quote rounds.
type Budget struct {
	ID                string                `json:"id"`
	Lines             []BudgetLine          `json:"lines"`
	Total             decimal.Decimal       `json:"total"`
	CreatedBy         string                `json:"createdBy"`
	CreatedAt         time.Time             `json:"createdAt"`
	AuditStatus       constants.AuditStatus `json:"auditStatus"`
	ResolvedBy        string                `json:"resolvedBy,omitempty"`
	ResolutionComment string                `json:"resolutionComment,omitempty"`
	ResolvedAt        *time.Time            `json:"resolvedAt,omitempty"`
}
