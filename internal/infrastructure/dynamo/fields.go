package dynamo

// DynamoDB attribute names used in key and condition expressions.
const (
	fieldOwnerID     = "owner_id"
	fieldHandleKey   = "handle_key"
	fieldHolder      = "holder"
	fieldCredits     = "credits"
	fieldSubmission  = "submission_id"
	fieldQueue       = "queue"
	fieldSubmittedAt = "submitted_at"
	fieldStatus      = "status"
)

// handleGuardPrefix marks the items that reserve a lower-cased handle for one owner.
// They share the verifications table with the records themselves.
const handleGuardPrefix = "handle#"

// queueIndex is the GSI on the submissions table: queue (guild#status) + submitted_at.
const queueIndex = "queue-submitted_at-index"
