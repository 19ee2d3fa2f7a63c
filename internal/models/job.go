package models

import "time"

type JobStatus string

const (
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusDelivered  JobStatus = "delivered"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusScheduled, JobStatusInProgress, JobStatusDelivered, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

type PricingType string

const (
	PricingPerHour  PricingType = "perHour"
	PricingPerPiece PricingType = "perPiece"
	PricingFixed    PricingType = "fixed"
)

type JobContextType string

const (
	JobContextOrder   JobContextType = "order"
	JobContextService JobContextType = "service"
)

type JobSchedule struct {
	Start time.Time  `bson:"start" json:"start"`
	End   *time.Time `bson:"end,omitempty" json:"end,omitempty"`
}

type JobEvidence struct {
	Photos       []string `bson:"photos,omitempty" json:"photos,omitempty"`
	Notes        string   `bson:"notes,omitempty" json:"notes,omitempty"`
	Files        []string `bson:"files,omitempty" json:"files,omitempty"`
	SignatureURL string   `bson:"signatureUrl,omitempty" json:"signatureUrl,omitempty"`
}

// Job is a unit of work a provider performs for a customer.
type Job struct {
	ID            string         `bson:"_id" json:"jobId"`
	ContextType   JobContextType `bson:"contextType" json:"contextType"`
	ContextID     string         `bson:"contextId" json:"contextId"`
	CustomerID    string         `bson:"customerId" json:"customerId"`
	ProviderID    string         `bson:"providerId" json:"providerId"`
	Title         string         `bson:"title" json:"title"`
	Description   string         `bson:"description" json:"description"`
	Price         float64        `bson:"price" json:"price"`
	PricingType   PricingType    `bson:"pricingType" json:"pricingType"`
	Location      Address        `bson:"location" json:"location"`
	DurationInMin int            `bson:"durationInMin" json:"durationInMin"`
	Status        JobStatus      `bson:"status" json:"status"`
	Scheduled     *JobSchedule   `bson:"scheduled,omitempty" json:"scheduled,omitempty"`
	Evidence      *JobEvidence   `bson:"evidence,omitempty" json:"evidence,omitempty"`
	CreatedAt     time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time      `bson:"updatedAt" json:"updatedAt"`
}
