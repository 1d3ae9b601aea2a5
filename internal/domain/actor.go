package domain

// ActorKind distinguishes people from automated processes.
type ActorKind string

const (
	ActorKindHuman  ActorKind = "HUMAN"
	ActorKindSystem ActorKind = "SYSTEM"
)

// Actor identifies who performed a change.
type Actor struct {
	Kind   ActorKind
	UserID string
}

// HumanActor returns an actor for a support user.
func HumanActor(userID string) Actor {
	return Actor{Kind: ActorKindHuman, UserID: userID}
}

// SystemActor returns the actor used by scheduled jobs.
func SystemActor() Actor {
	return Actor{Kind: ActorKindSystem}
}

// IsSystem reports whether the actor is automated.
func (a Actor) IsSystem() bool {
	return a.Kind != ActorKindHuman
}

// UserRef returns the user id, or nil for the system actor.
func (a Actor) UserRef() *string {
	if a.IsSystem() || a.UserID == "" {
		return nil
	}
	id := a.UserID
	return &id
}

// ActorFromStored rebuilds an actor from its persisted columns.
func ActorFromStored(kind string, userID *string) Actor {
	if ActorKind(kind) == ActorKindHuman && userID != nil {
		return HumanActor(*userID)
	}
	return SystemActor()
}
