package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fleet-system/internal/entities"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
)

// InspectionChecker is the external safety-inspection collaborator.
// Callers bound it with a deadline; a deadline hit surfaces as TIMEOUT.
type InspectionChecker interface {
	HasInspectionToday(ctx context.Context, vehiclePlate string) (bool, error)
}

// IntakeRecord is the payload of a workshop intake action.
type IntakeRecord struct {
	Workshop string `json:"workshop"`
	Receiver string `json:"receiver"`
	Odometer int64  `json:"odometer"`
}

// ActionPayload carries the action-specific data of one transition
// attempt. Only the fields relevant to the action are read.
type ActionPayload struct {
	Comment    string
	Assignment *entities.ProviderAssignment
	Intake     *IntakeRecord
	Lines      []entities.BudgetLine
	Decision   string
}

// transitionTable fixes the target stage for every (stage, action) pair
// of the deterministic flow. Cancel and budget resolution are handled
// separately: cancel is legal from every non-terminal stage, and the
// resolution target depends on the auditor's decision.
var transitionTable = map[constants.Stage]map[constants.Action]constants.Stage{
	constants.StageRequested: {
		constants.ActionRequestAppointment: constants.StageAppointmentRequested,
		constants.ActionStartReview:        constants.StageReview,
		constants.ActionAssignTurn:         constants.StageScheduling,
	},
	constants.StageAppointmentRequested: {
		constants.ActionAssignTurn: constants.StageScheduling,
	},
	constants.StageReview: {
		constants.ActionAssignTurn: constants.StageScheduling,
	},
	constants.StageScheduling: {
		constants.ActionBeginReception: constants.StageReception,
		constants.ActionRecordIntake:   constants.StageInWorkshop,
	},
	constants.StageReception: {
		constants.ActionConfirmReception: constants.StageInWorkshop,
	},
	constants.StageInWorkshop: {
		constants.ActionSubmitBudget:   constants.StageBudgeting,
		constants.ActionStartExecution: constants.StageExecuting,
		constants.ActionFinalize:       constants.StageFinished,
	},
	constants.StageExecuting: {
		constants.ActionRecordInvoice: constants.StageInvoicing,
	},
	constants.StageInvoicing: {
		constants.ActionDeliver: constants.StageDelivery,
	},
	constants.StageDelivery: {
		constants.ActionFinalize: constants.StageFinished,
	},
}

// Machine validates one requested transition and produces the resulting
// stage plus the history entry recording it. It never mutates the
// aggregate: a failed attempt leaves history exactly as it was.
type Machine struct {
	policy      *Policy
	inspections InspectionChecker
	clock       func() time.Time
}

func NewMachine(policy *Policy, inspections InspectionChecker) *Machine {
	return &Machine{
		policy:      policy,
		inspections: inspections,
		clock:       time.Now,
	}
}

// WithClock overrides the machine's time source. Used in tests.
func (m *Machine) WithClock(clock func() time.Time) *Machine {
	m.clock = clock
	return m
}

// Transition runs the full validation chain: access policy, action
// preconditions, then the deterministic stage computation.
func (m *Machine) Transition(
	ctx context.Context,
	req *entities.ServiceRequest,
	actor entities.Actor,
	action constants.Action,
	payload ActionPayload,
) (constants.Stage, *entities.HistoryEntry, error) {
	if err := m.policy.Allow(actor.Role, req.Stage, action); err != nil {
		return "", nil, err
	}

	if err := m.checkPreconditions(ctx, req, action, payload); err != nil {
		return "", nil, err
	}

	newStage, err := m.targetStage(req, action, payload)
	if err != nil {
		return "", nil, err
	}

	fromStage := req.Stage
	entry := &entities.HistoryEntry{
		ID:        uuid.NewString(),
		Timestamp: m.clock().UTC(),
		ActorID:   actor.ID,
		ActorName: actor.Name,
		FromStage: &fromStage,
		ToStage:   newStage,
		Comment:   payload.Comment,
	}
	return newStage, entry, nil
}

func (m *Machine) targetStage(req *entities.ServiceRequest, action constants.Action, payload ActionPayload) (constants.Stage, error) {
	switch action {
	case constants.ActionCancel:
		// Policy already rejected terminal stages.
		return constants.StageCancelled, nil
	case constants.ActionResolveBudget:
		if payload.Decision == constants.DecisionApproved {
			return constants.StageInWorkshop, nil
		}
		return constants.StageScheduling, nil
	}

	byAction, ok := transitionTable[req.Stage]
	if !ok {
		return "", apperrors.ErrInvalidTransition
	}
	newStage, ok := byAction[action]
	if !ok {
		return "", apperrors.ErrInvalidTransition
	}
	return newStage, nil
}

func (m *Machine) checkPreconditions(ctx context.Context, req *entities.ServiceRequest, action constants.Action, payload ActionPayload) error {
	switch action {
	case constants.ActionAssignTurn:
		if payload.Assignment == nil || payload.Assignment.ProviderID == "" {
			return fmt.Errorf("%w: turn assignment requires a provider", apperrors.ErrPreconditionFailed)
		}

	case constants.ActionRecordIntake, constants.ActionBeginReception:
		ok, err := m.inspections.HasInspectionToday(ctx, req.VehiclePlate)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: inspection lookup for %s", apperrors.ErrTimeout, req.VehiclePlate)
			}
			return err
		}
		if !ok {
			return fmt.Errorf("%w: no same-day safety inspection on file for %s", apperrors.ErrPreconditionFailed, req.VehiclePlate)
		}

	case constants.ActionSubmitBudget:
		if err := ValidateBudgetLines(payload.Lines); err != nil {
			return err
		}

	case constants.ActionResolveBudget:
		if payload.Decision != constants.DecisionApproved && payload.Decision != constants.DecisionRejected {
			return fmt.Errorf("%w: decision must be %q or %q", apperrors.ErrPreconditionFailed, constants.DecisionApproved, constants.DecisionRejected)
		}
		if req.Budget == nil || req.Budget.AuditStatus != constants.AuditPending {
			return fmt.Errorf("%w: no pending budget to resolve", apperrors.ErrPreconditionFailed)
		}

	case constants.ActionFinalize:
		if req.Budget != nil && req.Budget.AuditStatus != constants.AuditApproved {
			return fmt.Errorf("%w: budget is not approved", apperrors.ErrPreconditionFailed)
		}

	case constants.ActionStartExecution:
		if req.Budget == nil || req.Budget.AuditStatus != constants.AuditApproved {
			return fmt.Errorf("%w: execution requires an approved budget", apperrors.ErrPreconditionFailed)
		}
	}
	return nil
}
