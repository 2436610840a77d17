package models

import "time"

// Submission review states.
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

// Submission is a user's proof for a manual task, stored at submissions/<id>.
type Submission struct {
	ID         string     `bson:"id" json:"id"`
	UserID     string     `bson:"userId" json:"userId"`
	TaskID     string     `bson:"taskId" json:"taskId"`
	Proof      string     `bson:"proof" json:"proof"`
	Status     string     `bson:"status" json:"status"`
	Reward     float64    `bson:"reward" json:"reward"`
	ReviewedBy string     `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	Note       string     `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
	ReviewedAt *time.Time `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
}
