package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"fleet-system/internal/entities"
	"fleet-system/pkg/constants"
)

// CreateServiceRequestDTO is the payload for opening a new request.
type CreateServiceRequestDTO struct {
	VehiclePlate string `json:"vehiclePlate" validate:"required,max=16"`
	CostCenter   string `json:"costCenter" validate:"omitempty,max=64"`
	Priority     string `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Category     string `json:"category" validate:"omitempty,max=64"`
	Subcategory  string `json:"subcategory" validate:"omitempty,max=64"`
	Description  string `json:"description" validate:"required,max=2000"`
	Odometer     int64  `json:"odometer" validate:"omitempty,gte=0"`
}

// AssignmentDTO describes the workshop turn a dispatcher assigns.
type AssignmentDTO struct {
	ProviderID   string     `json:"providerId" validate:"required"`
	ProviderName string     `json:"providerName" validate:"required"`
	Workshop     string     `json:"workshop" validate:"omitempty,max=128"`
	TurnDate     *time.Time `json:"turnDate" validate:"omitempty"`
}

// IntakeDTO is the workshop reception record.
type IntakeDTO struct {
	Workshop string `json:"workshop" validate:"required,max=128"`
	Receiver string `json:"receiver" validate:"required,max=128"`
	Odometer int64  `json:"odometer" validate:"omitempty,gte=0"`
}

// BudgetLineDTO is one itemized quote position. The total is computed
// server-side; clients never send it.
type BudgetLineDTO struct {
	Description string          `json:"description" validate:"required,max=256"`
	Quantity    int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"required"`
}

// ApplyActionDTO is the generic body of POST /requests/:id/actions.
// Only the fields relevant to the action are read; the rest may be
// omitted. The idempotency key arrives in the X-Idempotency-Key header
// and is injected here by the controller.
type ApplyActionDTO struct {
	Action     string          `json:"action" validate:"required"`
	Comment    string          `json:"comment" validate:"omitempty,max=2000"`
	Assignment *AssignmentDTO  `json:"assignment" validate:"omitempty"`
	Intake     *IntakeDTO      `json:"intake" validate:"omitempty"`
	Lines      []BudgetLineDTO `json:"lines" validate:"omitempty,dive"`
	Decision   string          `json:"decision" validate:"omitempty,oneof=approved rejected"`

	IdempotencyKey string `json:"-"`
}

// SendMessageDTO is the body of POST /requests/:id/messages.
type SendMessageDTO struct {
	Text        string `json:"text" validate:"required,max=4000"`
	IsAutomated bool   `json:"isAutomated"`
}

// MarkReadDTO names the side whose unread counter is reset.
type MarkReadDTO struct {
	Side string `json:"side" validate:"required,oneof=dispatch requester"`
}

// ListRequestsFilterDTO is the query surface of GET /requests.
type ListRequestsFilterDTO struct {
	Stage        string `query:"stage" validate:"omitempty"`
	RequesterID  string `query:"requesterId" validate:"omitempty"`
	ProviderID   string `query:"providerId" validate:"omitempty"`
	VehiclePlate string `query:"vehiclePlate" validate:"omitempty"`
	Limit        uint64 `query:"limit" validate:"omitempty,lte=200"`
	Offset       uint64 `query:"offset" validate:"omitempty"`
}

// RecordInspectionDTO registers a completed safety inspection.
type RecordInspectionDTO struct {
	VehiclePlate string `json:"vehiclePlate" validate:"required,max=16"`
	Inspector    string `json:"inspector" validate:"required,max=128"`
	Passed       bool   `json:"passed"`
}

// TokenRequestDTO mints an actor token. The endpoint is for trusted
// internal callers; it carries the claims verbatim.
type TokenRequestDTO struct {
	ActorID   string `json:"actorId" validate:"required"`
	ActorName string `json:"actorName" validate:"required"`
	Role      string `json:"role" validate:"required,oneof=REQUESTER DISPATCHER PROVIDER AUDITOR"`
}

// TokenResponseDTO carries the minted token.
type TokenResponseDTO struct {
	Token string `json:"token"`
}

// RequestSummaryDTO is the board/list projection of one request.
type RequestSummaryDTO struct {
	ID                 string             `json:"id"`
	Code               string             `json:"code"`
	VehiclePlate       string             `json:"vehiclePlate"`
	RequesterName      string             `json:"requesterName"`
	Priority           constants.Priority `json:"priority"`
	Stage              constants.Stage    `json:"stage"`
	Description        string             `json:"description"`
	UnreadForDispatch  int                `json:"unreadForDispatch"`
	UnreadForRequester int                `json:"unreadForRequester"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// ToSummary projects the full aggregate down to its board card.
func ToSummary(req *entities.ServiceRequest) RequestSummaryDTO {
	return RequestSummaryDTO{
		ID:                 req.ID,
		Code:               req.Code,
		VehiclePlate:       req.VehiclePlate,
		RequesterName:      req.RequesterName,
		Priority:           req.Priority,
		Stage:              req.Stage,
		Description:        req.Description,
		UnreadForDispatch:  req.UnreadForDispatch,
		UnreadForRequester: req.UnreadForRequester,
		UpdatedAt:          req.UpdatedAt,
	}
}

// ToAssignment converts the transport assignment to the domain one.
func (d *AssignmentDTO) ToAssignment() *entities.ProviderAssignment {
	if d == nil {
		return nil
	}
	return &entities.ProviderAssignment{
		ProviderID:   d.ProviderID,
		ProviderName: d.ProviderName,
		Workshop:     d.Workshop,
		TurnDate:     d.TurnDate,
	}
}

// ToBudgetLines converts transport lines to domain lines.
func ToBudgetLines(lines []BudgetLineDTO) []entities.BudgetLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]entities.BudgetLine, len(lines))
	for i, l := range lines {
		out[i] = entities.BudgetLine{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		}
	}
	return out
}
