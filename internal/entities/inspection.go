package entities

import "time"

// VehicleInspection is one completed safety inspection. Intake into the
// workshop requires a passed inspection dated the same day.
type VehicleInspection struct {
	ID           string    `json:"id"`
	VehiclePlate string    `json:"vehiclePlate"`
	Inspector    string    `json:"inspector"`
	Passed       bool      `json:"passed"`
	InspectedAt  time.Time `json:"inspectedAt"`
}
