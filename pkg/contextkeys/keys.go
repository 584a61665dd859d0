package contextkeys

type contextKey string

const (
	// ActorKey holds the authenticated entities.Actor for the request.
	ActorKey contextKey = "actor"
)
