package entities

import (
	"time"

	"fleet-system/pkg/constants"
)

// ProviderAssignment records the workshop turn a dispatcher assigned.
type ProviderAssignment struct {
	ProviderID   string     `json:"providerId"`
	ProviderName string     `json:"providerName"`
	Workshop     string     `json:"workshop,omitempty"`
	TurnDate     *time.Time `json:"turnDate,omitempty"`
}

// ServiceRequest is the aggregate root of the lifecycle engine: the
// workflow stage plus the three owned ledgers (history, messages,
// budgets) and request metadata. It is mutated only through the
// workflow.Aggregate operations and persisted with compare-and-swap
// semantics on the stage field.
type ServiceRequest struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	VehiclePlate string `json:"vehiclePlate"`

	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
	CostCenter    string `json:"costCenter"`

	Priority    constants.Priority `json:"priority"`
	Category    string             `json:"category"`
	Subcategory string             `json:"subcategory"`
	Description string             `json:"description"`

	OdometerAtRequest int64 `json:"odometerAtRequest"`

	Stage      constants.Stage     `json:"stage"`
	Assignment *ProviderAssignment `json:"assignment,omitempty"`

	History  []HistoryEntry `json:"history"`
	Messages []Message      `json:"messages"`

	UnreadForDispatch  int `json:"unreadForDispatch"`
	UnreadForRequester int `json:"unreadForRequester"`

	Budget        *Budget  `json:"budget,omitempty"`
	BudgetHistory []Budget `json:"budgetHistory,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsParticipant reports whether the actor is associated with this
// request: its creator, its assigned provider, or dispatch/audit
// staff. A provider that is not the assigned one is a stranger here,
// no matter the role.
func (r *ServiceRequest) IsParticipant(actor Actor) bool {
	if actor.ID == r.RequesterID {
		return true
	}
	if r.Assignment != nil && actor.ID == r.Assignment.ProviderID {
		return true
	}
	if actor.Role == constants.RoleProvider {
		return false
	}
	return constants.IsStaffRole(actor.Role)
}
