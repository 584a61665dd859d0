package constants

// Stage is a lifecycle stage of a service request. The set is closed:
// storage and transport reject values outside it.
type Stage string

const (
	StageRequested            Stage = "REQUESTED"
	StageAppointmentRequested Stage = "APPOINTMENT_REQUESTED"
	StageReview               Stage = "REVIEW"
	StageScheduling           Stage = "SCHEDULING"
	StageReception            Stage = "RECEPCION"
	StageInWorkshop           Stage = "IN_WORKSHOP"
	StageExecuting            Stage = "EXECUTING"
	StageBudgeting            Stage = "BUDGETING"
	StageInvoicing            Stage = "INVOICING"
	StageDelivery             Stage = "DELIVERY"
	StageFinished             Stage = "FINISHED"
	StageCancelled            Stage = "CANCELLED"
)

// AllStages lists every stage in board order.
var AllStages = []Stage{
	StageRequested,
	StageAppointmentRequested,
	StageReview,
	StageScheduling,
	StageReception,
	StageInWorkshop,
	StageExecuting,
	StageBudgeting,
	StageInvoicing,
	StageDelivery,
	StageFinished,
	StageCancelled,
}

// IsTerminalStage reports whether the stage admits no further actions.
func IsTerminalStage(s Stage) bool {
	return s == StageFinished || s == StageCancelled
}

// IsKnownStage reports whether s is a member of the closed stage set.
func IsKnownStage(s Stage) bool {
	for _, known := range AllStages {
		if s == known {
			return true
		}
	}
	return false
}

// Role is an actor role. Roles are assigned outside the engine; the
// engine only gates actions by them.
type Role string

const (
	RoleRequester  Role = "REQUESTER"
	RoleDispatcher Role = "DISPATCHER"
	RoleProvider   Role = "PROVIDER"
	RoleAuditor    Role = "AUDITOR"
)

// IsStaffRole reports whether the role sits on the dispatch side of the
// message thread. Staff messages count against the requester's unread
// counter.
func IsStaffRole(r Role) bool {
	return r == RoleDispatcher || r == RoleProvider || r == RoleAuditor
}

// Action is a named operation of the lifecycle engine.
type Action string

const (
	ActionCreate             Action = "create"
	ActionRequestAppointment Action = "request_appointment"
	ActionStartReview        Action = "start_review"
	ActionAssignTurn         Action = "assign_turn"
	ActionBeginReception     Action = "begin_reception"
	ActionConfirmReception   Action = "confirm_reception"
	ActionRecordIntake       Action = "record_intake"
	ActionSubmitBudget       Action = "submit_budget"
	ActionResolveBudget      Action = "resolve_budget"
	ActionStartExecution     Action = "start_execution"
	ActionRecordInvoice      Action = "record_invoice"
	ActionDeliver            Action = "deliver"
	ActionFinalize           Action = "finalize"
	ActionCancel             Action = "cancel"
	ActionSendMessage        Action = "send_message"
)

// Priority of a service request, set at creation.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// AuditStatus is the audit state of one budget quote.
type AuditStatus string

const (
	AuditPending  AuditStatus = "PENDING"
	AuditApproved AuditStatus = "APPROVED"
	AuditRejected AuditStatus = "REJECTED"
)

// Auditor decisions accepted by the budget resolution action.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)
