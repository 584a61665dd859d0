package workflow

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"fleet-system/internal/entities"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
)

// ChangeSet is the persistable outcome of one successful aggregate
// operation. The store applies it atomically: the stage update is
// guarded by ExpectedStage (compare-and-swap), ledger rows are inserted
// with id-based deduplication, and unread increments are applied as
// atomic counter updates.
type ChangeSet struct {
	RequestID     string
	ExpectedStage constants.Stage
	NewStage      constants.Stage
	StageChanged  bool

	Entry   *entities.HistoryEntry
	Message *entities.Message

	// IncrementUnread names the side whose counter grows by one.
	IncrementUnread Side

	Budget        *entities.Budget
	ArchiveBudget *entities.Budget
	Assignment    *entities.ProviderAssignment

	UpdatedAt time.Time
}

// CreateFields is the requester-supplied data of a new request.
type CreateFields struct {
	VehiclePlate string
	CostCenter   string
	Priority     constants.Priority
	Category     string
	Subcategory  string
	Description  string
	Odometer     int64
}

// Create builds a new aggregate in REQUESTED with its creation history
// entry (fromStage is nil only there). Only a Requester may create.
func Create(actor entities.Actor, fields CreateFields, now time.Time) (*entities.ServiceRequest, error) {
	if err := NewPolicy().Allow(actor.Role, constants.StageRequested, constants.ActionCreate); err != nil {
		return nil, err
	}
	if fields.VehiclePlate == "" {
		return nil, apperrors.NewInvalidInputError("vehicle plate is required")
	}
	if fields.Description == "" {
		return nil, apperrors.NewInvalidInputError("description is required")
	}
	if fields.Priority == "" {
		fields.Priority = constants.PriorityMedium
	}

	now = now.UTC()
	req := &entities.ServiceRequest{
		ID:                uuid.NewString(),
		Code:              newRequestCode(),
		VehiclePlate:      fields.VehiclePlate,
		RequesterID:       actor.ID,
		RequesterName:     actor.Name,
		CostCenter:        fields.CostCenter,
		Priority:          fields.Priority,
		Category:          fields.Category,
		Subcategory:       fields.Subcategory,
		Description:       fields.Description,
		OdometerAtRequest: fields.Odometer,
		Stage:             constants.StageRequested,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	req.History = []entities.HistoryEntry{{
		ID:        uuid.NewString(),
		Timestamp: now,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		FromStage: nil,
		ToStage:   constants.StageRequested,
		Comment:   "Service request opened",
	}}
	return req, nil
}

// newRequestCode produces the human-readable EV-##### code shown on the
// board. Uniqueness is carried by the UUID id, not the code.
func newRequestCode() string {
	return fmt.Sprintf("EV-%05d", 10000+rand.Intn(90000))
}

// Aggregate composes one ServiceRequest with its three ledgers and is
// the only object through which callers mutate it. Every operation
// validates against the policy and the stage machine first; a denial
// leaves the request untouched.
type Aggregate struct {
	req     *entities.ServiceRequest
	machine *Machine
	history *HistoryLedger
	thread  *MessageThread
	budgets *BudgetLedger
	clock   func() time.Time
}

func NewAggregate(req *entities.ServiceRequest, machine *Machine, requoteLimit int) *Aggregate {
	return &Aggregate{
		req:     req,
		machine: machine,
		history: NewHistoryLedger(req.History),
		thread:  NewMessageThread(req.Messages, req.UnreadForDispatch, req.UnreadForRequester),
		budgets: NewBudgetLedger(req.Budget, req.BudgetHistory, requoteLimit),
		clock:   time.Now,
	}
}

// WithClock overrides the aggregate's time source (and its ledgers').
// Used in tests.
func (a *Aggregate) WithClock(clock func() time.Time) *Aggregate {
	a.clock = clock
	a.thread.WithClock(clock)
	a.budgets.WithClock(clock)
	a.machine.WithClock(clock)
	return a
}

// Request returns the current in-memory state.
func (a *Aggregate) Request() *entities.ServiceRequest {
	return a.req
}

// Apply is the single mutation entry point for stage-changing actions.
// On success the in-memory request reflects the new state and the
// returned ChangeSet describes exactly what the store must persist.
func (a *Aggregate) Apply(ctx context.Context, actor entities.Actor, action constants.Action, payload ActionPayload) (*ChangeSet, error) {
	if action == constants.ActionSendMessage || action == constants.ActionCreate {
		return nil, apperrors.ErrInvalidTransition
	}

	expected := a.req.Stage
	newStage, entry, err := a.machine.Transition(ctx, a.req, actor, action, payload)
	if err != nil {
		return nil, err
	}

	cs := &ChangeSet{
		RequestID:     a.req.ID,
		ExpectedStage: expected,
		NewStage:      newStage,
		StageChanged:  true,
		Entry:         entry,
		UpdatedAt:     a.clock().UTC(),
	}

	switch action {
	case constants.ActionAssignTurn:
		a.req.Assignment = payload.Assignment
		cs.Assignment = payload.Assignment
		if entry.Comment == "" {
			entry.Comment = fmt.Sprintf("Turn assigned to %s", payload.Assignment.ProviderName)
		}

	case constants.ActionSubmitBudget:
		budget, err := a.budgets.Submit(actor, payload.Lines)
		if err != nil {
			return nil, err
		}
		cs.Budget = budget
		if entry.Comment == "" {
			entry.Comment = fmt.Sprintf("Budget submitted for %s", budget.Total.StringFixed(2))
		}

	case constants.ActionResolveBudget:
		resolved, archived, err := a.budgets.Resolve(actor, payload.Decision, payload.Comment)
		if err != nil {
			return nil, err
		}
		cs.Budget = resolved
		cs.ArchiveBudget = archived
		if entry.Comment == "" {
			if payload.Decision == constants.DecisionApproved {
				entry.Comment = "Investment authorized by audit"
			} else {
				entry.Comment = "Quote rejected by audit, re-quote required"
			}
		}

	case constants.ActionRecordIntake, constants.ActionConfirmReception:
		if payload.Intake != nil && entry.Comment == "" {
			entry.Comment = fmt.Sprintf("Workshop intake at %s, received by %s", payload.Intake.Workshop, payload.Intake.Receiver)
		}

	case constants.ActionFinalize:
		if entry.Comment == "" {
			entry.Comment = "Service closed by dispatch"
		}

	case constants.ActionCancel:
		if entry.Comment == "" {
			entry.Comment = "Cancelled by dispatch"
		}
	}

	// The in-memory append can only conflict if the machine and ledger
	// disagree about the current stage, which would be a defect here,
	// not a caller error.
	if err := a.history.Append(*entry); err != nil {
		return nil, err
	}

	a.req.Stage = newStage
	a.req.History = a.history.Entries()
	a.req.Budget = a.budgets.Current()
	a.req.BudgetHistory = a.budgets.Archive()
	a.req.UpdatedAt = cs.UpdatedAt
	return cs, nil
}

// SendMessage appends to the thread without changing stage. The sender
// must be associated with the request.
func (a *Aggregate) SendMessage(actor entities.Actor, text string, isAutomated bool) (*ChangeSet, error) {
	if err := NewPolicy().Allow(actor.Role, a.req.Stage, constants.ActionSendMessage); err != nil {
		return nil, err
	}
	if !a.req.IsParticipant(actor) {
		return nil, apperrors.ErrRoleNotPermitted
	}

	msg, side, err := a.thread.Send(actor, text, isAutomated)
	if err != nil {
		return nil, err
	}

	a.req.Messages = a.thread.Messages()
	a.req.UnreadForDispatch, a.req.UnreadForRequester = a.thread.Unread()
	a.req.UpdatedAt = a.clock().UTC()

	return &ChangeSet{
		RequestID:       a.req.ID,
		ExpectedStage:   a.req.Stage,
		NewStage:        a.req.Stage,
		StageChanged:    false,
		Message:         &msg,
		IncrementUnread: side,
		UpdatedAt:       a.req.UpdatedAt,
	}, nil
}

// MarkRead resets one side's unread counter.
func (a *Aggregate) MarkRead(side Side) {
	a.thread.MarkRead(side)
	a.req.UnreadForDispatch, a.req.UnreadForRequester = a.thread.Unread()
}
