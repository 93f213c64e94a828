package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus represents the state of a campaign.
type CampaignStatus string

const (
	CampaignStatusActive   CampaignStatus = "ACTIVE"
	CampaignStatusArchived CampaignStatus = "ARCHIVED"
)

// Campaign holds a merchant's creator-campaign budget. RemainingBudget is
// the spendable pool; it is mutated only by job acceptance (reserve) and
// terminal failure transitions out of a reserved state (release), and
// satisfies 0 <= RemainingBudget <= TotalBudget.
type Campaign struct {
	ID              uuid.UUID      `json:"id"`
	MerchantID      uuid.UUID      `json:"merchant_id"`
	Title           string         `json:"title"`
	TotalBudget     int64          `json:"total_budget"`
	RemainingBudget int64          `json:"remaining_budget"`
	Status          CampaignStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// JobStatus is the lifecycle state of a campaign job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusAccepted  JobStatus = "ACCEPTED"
	JobStatusSubmitted JobStatus = "SUBMITTED"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusRejected  JobStatus = "REJECTED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// JobEvent is an action attempted on a job.
type JobEvent string

const (
	JobEventAccept  JobEvent = "accept"
	JobEventCancel  JobEvent = "cancel"
	JobEventSubmit  JobEvent = "submit"
	JobEventApprove JobEvent = "approve"
	JobEventReject  JobEvent = "reject"
)

// jobTransitions maps each event to the states that permit it.
var jobTransitions = map[JobEvent][]JobStatus{
	JobEventAccept:  {JobStatusPending},
	JobEventCancel:  {JobStatusPending, JobStatusAccepted},
	JobEventSubmit:  {JobStatusAccepted},
	JobEventApprove: {JobStatusSubmitted},
	JobEventReject:  {JobStatusSubmitted},
}

// eventTargets maps each event to the resulting state.
var eventTargets = map[JobEvent]JobStatus{
	JobEventAccept:  JobStatusAccepted,
	JobEventCancel:  JobStatusCancelled,
	JobEventSubmit:  JobStatusSubmitted,
	JobEventApprove: JobStatusCompleted,
	JobEventReject:  JobStatusRejected,
}

// Allows reports whether event may fire from status s.
func (s JobStatus) Allows(event JobEvent) bool {
	for _, from := range jobTransitions[event] {
		if from == s {
			return true
		}
	}
	return false
}

// Target returns the status an event transitions into.
func (e JobEvent) Target() JobStatus {
	return eventTargets[e]
}

// Terminal returns true for end states.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusRejected || s == JobStatusCancelled
}

// Job is one creator engagement inside a campaign. AgreedPrice is locked
// at creation and is the financial contract of record; it is never
// re-read from the creator's current list price.
type Job struct {
	ID               uuid.UUID  `json:"id"`
	CampaignID       uuid.UUID  `json:"campaign_id"`
	MerchantID       uuid.UUID  `json:"merchant_id"`
	CreatorID        uuid.UUID  `json:"creator_id"`
	AgreedPrice      int64      `json:"agreed_price"`
	Status           JobStatus  `json:"status"`
	DeliverableRef   *string    `json:"deliverable_ref,omitempty"`
	Reason           *string    `json:"reason,omitempty"`
	CommissionAmount int64      `json:"commission_amount"` // Set on completion
	PayableAmount    int64      `json:"payable_amount"`    // Set on completion
	CreatedAt        time.Time  `json:"created_at"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// BudgetReserved reports whether a job in this state holds a reservation
// against its campaign's remaining budget. Pending invitations hold none;
// the reservation is taken on acceptance and lives until a terminal event
// settles it.
func (s JobStatus) BudgetReserved() bool {
	return s == JobStatusAccepted || s == JobStatusSubmitted
}
