package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fleet-system/internal/entities"
	"fleet-system/pkg/constants"
)

// Shared fixtures for the workflow package tests.

var (
	requester  = entities.Actor{ID: "u-req", Name: "Carla Mendez", Role: constants.RoleRequester}
	dispatcher = entities.Actor{ID: "u-dis", Name: "Jorge Paz", Role: constants.RoleDispatcher}
	provider   = entities.Actor{ID: "u-pro", Name: "Taller Norte", Role: constants.RoleProvider}
	auditor    = entities.Actor{ID: "u-aud", Name: "Rosa Quispe", Role: constants.RoleAuditor}
)

// fakeInspections is an InspectionChecker with a canned answer.
type fakeInspections struct {
	hasInspection bool
	err           error
	calls         int
}

func (f *fakeInspections) HasInspectionToday(ctx context.Context, plate string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.hasInspection, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testTime = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

func newTestMachine(inspections *fakeInspections) *Machine {
	if inspections == nil {
		inspections = &fakeInspections{hasInspection: true}
	}
	return NewMachine(NewPolicy(), inspections).WithClock(fixedClock(testTime))
}

func newTestRequest(stage constants.Stage) *entities.ServiceRequest {
	from := constants.StageRequested
	req := &entities.ServiceRequest{
		ID:            "req-1",
		Code:          "EV-10042",
		VehiclePlate:  "ABC-123",
		RequesterID:   requester.ID,
		RequesterName: requester.Name,
		Priority:      constants.PriorityMedium,
		Description:   "Brake pads worn out",
		Stage:         stage,
		CreatedAt:     testTime,
		UpdatedAt:     testTime,
	}
	req.History = []entities.HistoryEntry{{
		ID:        "h-1",
		Timestamp: testTime.Add(-time.Hour),
		ActorID:   requester.ID,
		ActorName: requester.Name,
		ToStage:   constants.StageRequested,
		Comment:   "Service request opened",
	}}
	if stage != constants.StageRequested {
		req.History = append(req.History, entities.HistoryEntry{
			ID:        "h-2",
			Timestamp: testTime.Add(-time.Minute),
			ActorID:   dispatcher.ID,
			ActorName: dispatcher.Name,
			FromStage: &from,
			ToStage:   stage,
		})
	}
	return req
}

func pendingBudget() *entities.Budget {
	price := decimal.NewFromInt(150)
	return &entities.Budget{
		ID: "b-1",
		Lines: []entities.BudgetLine{
			{Description: "Brake pads", Quantity: 2, UnitPrice: price, Total: price.Mul(decimal.NewFromInt(2))},
		},
		Total:       price.Mul(decimal.NewFromInt(2)),
		CreatedBy:   provider.Name,
		CreatedAt:   testTime,
		AuditStatus: constants.AuditPending,
	}
}

func sampleLines() []entities.BudgetLine {
	return []entities.BudgetLine{
		{Description: "Brake pads", Quantity: 2, UnitPrice: decimal.NewFromInt(150)},
		{Description: "Labor", Quantity: 1, UnitPrice: decimal.NewFromFloat(80.50)},
	}
}

func sampleAssignment() *entities.ProviderAssignment {
	turn := testTime.Add(48 * time.Hour)
	return &entities.ProviderAssignment{
		ProviderID:   provider.ID,
		ProviderName: provider.Name,
		Workshop:     "Taller Norte",
		TurnDate:     &turn,
	}
}
