package workflow

import (
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
)

// Policy is the pure access decision function of the lifecycle engine:
// (actor role, current stage, requested action) -> allowed or a typed
// denial. It has no side effects and is consulted before every mutation.
type Policy struct{}

func NewPolicy() *Policy {
	return &Policy{}
}

type policyRule struct {
	roles []constants.Role
	// stages the action is legal in; empty plus anyNonTerminal=false
	// means the action is stage-independent (create).
	stages         []constants.Stage
	anyNonTerminal bool
}

func (r policyRule) allowsRole(role constants.Role) bool {
	for _, allowed := range r.roles {
		if role == allowed {
			return true
		}
	}
	return false
}

func (r policyRule) allowsStage(stage constants.Stage) bool {
	if r.anyNonTerminal {
		return !constants.IsTerminalStage(stage)
	}
	if len(r.stages) == 0 {
		return true
	}
	for _, allowed := range r.stages {
		if stage == allowed {
			return true
		}
	}
	return false
}

// policyTable reproduces the canonical access table. Reception, execution,
// invoicing and delivery are the extended intermediate stages the kanban
// board exposes; they follow the same role split as the primary flow.
var policyTable = map[constants.Action]policyRule{
	constants.ActionCreate: {
		roles: []constants.Role{constants.RoleRequester},
	},
	constants.ActionRequestAppointment: {
		roles:  []constants.Role{constants.RoleRequester},
		stages: []constants.Stage{constants.StageRequested},
	},
	constants.ActionStartReview: {
		roles:  []constants.Role{constants.RoleDispatcher},
		stages: []constants.Stage{constants.StageRequested},
	},
	constants.ActionAssignTurn: {
		roles: []constants.Role{constants.RoleDispatcher},
		stages: []constants.Stage{
			constants.StageRequested,
			constants.StageAppointmentRequested,
			constants.StageReview,
		},
	},
	constants.ActionBeginReception: {
		roles:  []constants.Role{constants.RoleDispatcher, constants.RoleProvider},
		stages: []constants.Stage{constants.StageScheduling},
	},
	constants.ActionConfirmReception: {
		roles:  []constants.Role{constants.RoleDispatcher, constants.RoleProvider},
		stages: []constants.Stage{constants.StageReception},
	},
	constants.ActionRecordIntake: {
		roles:  []constants.Role{constants.RoleDispatcher, constants.RoleProvider},
		stages: []constants.Stage{constants.StageScheduling},
	},
	constants.ActionSubmitBudget: {
		roles:  []constants.Role{constants.RoleProvider},
		stages: []constants.Stage{constants.StageInWorkshop},
	},
	constants.ActionResolveBudget: {
		roles:  []constants.Role{constants.RoleAuditor},
		stages: []constants.Stage{constants.StageBudgeting},
	},
	constants.ActionStartExecution: {
		roles:  []constants.Role{constants.RoleProvider},
		stages: []constants.Stage{constants.StageInWorkshop},
	},
	constants.ActionRecordInvoice: {
		roles:  []constants.Role{constants.RoleProvider},
		stages: []constants.Stage{constants.StageExecuting},
	},
	constants.ActionDeliver: {
		roles:  []constants.Role{constants.RoleDispatcher, constants.RoleProvider},
		stages: []constants.Stage{constants.StageInvoicing},
	},
	constants.ActionFinalize: {
		roles: []constants.Role{constants.RoleDispatcher},
		stages: []constants.Stage{
			constants.StageInWorkshop,
			constants.StageDelivery,
		},
	},
	constants.ActionCancel: {
		roles:          []constants.Role{constants.RoleDispatcher},
		anyNonTerminal: true,
	},
	constants.ActionSendMessage: {
		roles: []constants.Role{
			constants.RoleRequester,
			constants.RoleDispatcher,
			constants.RoleProvider,
			constants.RoleAuditor,
		},
		anyNonTerminal: true,
	},
}

// Allow returns nil when the role may perform the action in the stage.
// Denials are values: ErrRoleNotPermitted when the role can never perform
// the action, ErrWrongStage when the role could but the stage is wrong.
// Unknown actions are rejected as invalid transitions.
func (p *Policy) Allow(role constants.Role, stage constants.Stage, action constants.Action) error {
	rule, ok := policyTable[action]
	if !ok {
		return apperrors.ErrInvalidTransition
	}
	if !rule.allowsRole(role) {
		return apperrors.ErrRoleNotPermitted
	}
	if !rule.allowsStage(stage) {
		return apperrors.ErrWrongStage
	}
	return nil
}
