package entities

import "fleet-system/pkg/constants"

// Actor is the authenticated identity performing an operation. It is
// supplied by the identity provider (JWT claims) and trusted as given.
type Actor struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Role constants.Role `json:"role"`
}
