package domain

import (
	"context"
	"time"
)

// Submission statuses.
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionDenied   = "denied"
)

// Submission is a user-submitted advertisement awaiting staff review.
type Submission struct {
	ID             string     `json:"id" dynamodbav:"submission_id"`
	GuildID        string     `json:"guild_id" dynamodbav:"guild_id"`
	OwnerID        string     `json:"user_id" dynamodbav:"owner_id"`
	Username       string     `json:"username" dynamodbav:"username"`
	ExternalHandle string     `json:"roblox_username" dynamodbav:"external_handle"`
	Text           string     `json:"ad_text" dynamodbav:"ad_text"`
	Status         string     `json:"status" dynamodbav:"status"`
	SubmittedAt    time.Time  `json:"submitted_at" dynamodbav:"submitted_at"`
	ProcessedBy    string     `json:"processed_by,omitempty" dynamodbav:"processed_by,omitempty"`
	Decision       string     `json:"decision,omitempty" dynamodbav:"decision,omitempty"`
	Comments       string     `json:"comments,omitempty" dynamodbav:"comments,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty" dynamodbav:"processed_at,omitempty"`
}

// Decision is the staff outcome applied to a pending submission.
type Decision struct {
	Status      string // SubmissionApproved or SubmissionDenied
	ProcessedBy string
	Comments    string
	ProcessedAt time.Time
}

// SubmissionStore is the append-only advertisement queue.
type SubmissionStore interface {
	Append(ctx context.Context, s *Submission) error
	Get(ctx context.Context, id string) (*Submission, error)
	// ListPending returns pending submissions for a guild, oldest first.
	ListPending(ctx context.Context, guildID string) ([]Submission, error)
	// Decide moves a pending submission to its final status. A submission that is not
	// pending yields ErrNotPending.
	Decide(ctx context.Context, id string, d Decision) (*Submission, error)
}

// DecisionWord is the verb recorded alongside a final status.
func DecisionWord(status string) string {
	if status == SubmissionApproved {
		return "approve"
	}
	return "deny"
}
