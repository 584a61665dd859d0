package utils

import (
	"context"

	"fleet-system/internal/entities"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/contextkeys"
)

// ActorFromContext extracts the authenticated actor the auth middleware
// stored.
func ActorFromContext(ctx context.Context) (entities.Actor, error) {
	actor, ok := ctx.Value(contextkeys.ActorKey).(entities.Actor)
	if !ok || actor.ID == "" {
		return entities.Actor{}, apperrors.ErrActorNotInContext
	}
	return actor, nil
}
