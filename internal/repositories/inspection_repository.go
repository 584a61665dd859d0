package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-system/internal/entities"
)

const inspectionTable = "vehicle_inspections"

// InspectionRepositoryInterface is the safety-inspection collaborator.
// The lifecycle engine only asks one question of it: does the vehicle
// have a passed inspection dated today?
type InspectionRepositoryInterface interface {
	HasInspectionToday(ctx context.Context, vehiclePlate string) (bool, error)
	RecordInspection(ctx context.Context, inspection *entities.VehicleInspection) error
}

type inspectionRepository struct{ storage *pgxpool.Pool }

func NewInspectionRepository(storage *pgxpool.Pool) InspectionRepositoryInterface {
	return &inspectionRepository{storage: storage}
}

// HasInspectionToday checks for a passed inspection whose date matches
// the database's current date. The day boundary is the database clock,
// not the application clock, so all instances agree.
func (r *inspectionRepository) HasInspectionToday(ctx context.Context, vehiclePlate string) (bool, error) {
	var exists bool
	err := r.storage.QueryRow(ctx, fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE vehicle_plate = $1 AND passed = TRUE AND inspected_at::date = CURRENT_DATE
		)`, inspectionTable),
		vehiclePlate,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *inspectionRepository) RecordInspection(ctx context.Context, inspection *entities.VehicleInspection) error {
	if inspection.ID == "" {
		inspection.ID = uuid.NewString()
	}
	if inspection.InspectedAt.IsZero() {
		inspection.InspectedAt = time.Now().UTC()
	}
	_, err := r.storage.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, vehicle_plate, inspector, passed, inspected_at)
		VALUES ($1, $2, $3, $4, $5)`, inspectionTable),
		inspection.ID, inspection.VehiclePlate, inspection.Inspector, inspection.Passed, inspection.InspectedAt,
	)
	return err
}
