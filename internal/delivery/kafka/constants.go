package kafka

const (
	TopicSessionStarted   = "collab.session.started"
	TopicSessionEnded     = "collab.session.ended"
	TopicConflictResolved = "collab.conflict.resolved"

	TopicFormationDeleted = "formation.deleted"
)
