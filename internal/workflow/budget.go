package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fleet-system/internal/entities"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
)

// ValidateBudgetLines rejects an empty line list, non-positive
// quantities, negative unit prices, and a zero grand total.
func ValidateBudgetLines(lines []entities.BudgetLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: budget requires at least one line", apperrors.ErrPreconditionFailed)
	}
	total := decimal.Zero
	for i, line := range lines {
		if line.Description == "" {
			return fmt.Errorf("%w: line %d has no description", apperrors.ErrPreconditionFailed, i+1)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line %d quantity must be positive", apperrors.ErrPreconditionFailed, i+1)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d unit price must not be negative", apperrors.ErrPreconditionFailed, i+1)
		}
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
	}
	if !total.IsPositive() {
		return fmt.Errorf("%w: budget total must be greater than zero", apperrors.ErrPreconditionFailed)
	}
	return nil
}

// BudgetLedger manages the active quote and the archive of superseded
// ones. A re-quote replaces the active budget but never discards it:
// rejected budgets are appended to the archive so the quote history
// stays reconstructible.
type BudgetLedger struct {
	current      *entities.Budget
	archive      []entities.Budget
	requoteLimit int
	clock        func() time.Time
}

// NewBudgetLedger wraps the aggregate's budget state. requoteLimit caps
// re-quote rounds; zero means unlimited.
func NewBudgetLedger(current *entities.Budget, archive []entities.Budget, requoteLimit int) *BudgetLedger {
	return &BudgetLedger{
		current:      current,
		archive:      archive,
		requoteLimit: requoteLimit,
		clock:        time.Now,
	}
}

// WithClock overrides the ledger's time source. Used in tests.
func (b *BudgetLedger) WithClock(clock func() time.Time) *BudgetLedger {
	b.clock = clock
	return b
}

// Submit records a new pending quote. Line totals and the grand total
// are recomputed here; whatever totals the client sent are discarded.
func (b *BudgetLedger) Submit(actor entities.Actor, lines []entities.BudgetLine) (*entities.Budget, error) {
	if err := ValidateBudgetLines(lines); err != nil {
		return nil, err
	}
	if b.current != nil && b.current.AuditStatus == constants.AuditPending {
		return nil, fmt.Errorf("%w: a budget is already awaiting audit", apperrors.ErrPreconditionFailed)
	}
	if b.requoteLimit > 0 && len(b.archive) >= b.requoteLimit {
		return nil, fmt.Errorf("%w: re-quote limit of %d reached", apperrors.ErrPreconditionFailed, b.requoteLimit)
	}

	computed := make([]entities.BudgetLine, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		line.Total = line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity))
		computed[i] = line
		total = total.Add(line.Total)
	}

	budget := &entities.Budget{
		ID:          uuid.NewString(),
		Lines:       computed,
		Total:       total,
		CreatedBy:   actor.Name,
		CreatedAt:   b.clock().UTC(),
		AuditStatus: constants.AuditPending,
	}
	b.current = budget
	return budget, nil
}

// Resolve applies the auditor's decision to the pending quote. Approval
// clears the request to execute; rejection archives the quote for the
// re-quote loop. The archived budget is returned so the caller can
// persist the append.
func (b *BudgetLedger) Resolve(actor entities.Actor, decision string, comment string) (resolved *entities.Budget, archived *entities.Budget, err error) {
	if b.current == nil || b.current.AuditStatus != constants.AuditPending {
		return nil, nil, fmt.Errorf("%w: no pending budget to resolve", apperrors.ErrPreconditionFailed)
	}

	now := b.clock().UTC()
	b.current.ResolvedBy = actor.Name
	b.current.ResolutionComment = comment
	b.current.ResolvedAt = &now

	switch decision {
	case constants.DecisionApproved:
		b.current.AuditStatus = constants.AuditApproved
		return b.current, nil, nil
	case constants.DecisionRejected:
		b.current.AuditStatus = constants.AuditRejected
		rejected := *b.current
		b.archive = append(b.archive, rejected)
		b.current = nil
		return &rejected, &rejected, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown decision %q", apperrors.ErrPreconditionFailed, decision)
	}
}

// Current returns the active budget, nil when none is open.
func (b *BudgetLedger) Current() *entities.Budget {
	return b.current
}

// Archive returns superseded budgets in submission order.
func (b *BudgetLedger) Archive() []entities.Budget {
	out := make([]entities.Budget, len(b.archive))
	copy(out, b.archive)
	return out
}
