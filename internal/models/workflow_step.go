package models

import "time"

// StepType names the transition recorded by a workflow step.
type StepType string

const (
	StepSubmit  StepType = "SUBMIT"
	StepReceive StepType = "RECEIVE"
	StepApprove StepType = "APPROVE"
	StepReject  StepType = "REJECT"
	StepReturn  StepType = "RETURN"
)

// StepStatus records the outcome of the transition.
type StepStatus string

const (
	StepCompleted StepStatus = "COMPLETED"
	StepRejected  StepStatus = "REJECTED"
)

// WorkflowStep is an immutable audit record. Exactly one is written per
// successful transition, inside the same transaction as the status change.
// Failed attempts never reach this table.
type WorkflowStep struct {
	ID            string     `db:"id" json:"id"`
	ApplicationID string     `db:"application_id" json:"application_id"`
	StepType      StepType   `db:"step_type" json:"step_type"`
	ActorID       string     `db:"actor_id" json:"actor_id"`
	Status        StepStatus `db:"status" json:"status"`
	Comment       string     `db:"comment" json:"comment,omitempty"`
	ProcessedAt   time.Time  `db:"processed_at" json:"processed_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
