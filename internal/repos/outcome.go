package repos

// UpsertOutcome reports what a natural-key upsert did to one entity.
type UpsertOutcome string

const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
	OutcomeFailed    UpsertOutcome = "failed"
)
