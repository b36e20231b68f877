package models

import "time"

// TypeRoute binds an application type to one receiver role and one approver
// role. At most one active route may exist per type.
type TypeRoute struct {
	ID              string          `db:"id" json:"id"`
	ApplicationType ApplicationType `db:"application_type" json:"application_type"`
	ReceiverRoleID  string          `db:"receiver_role_id" json:"receiver_role_id"`
	ApproverRoleID  string          `db:"approver_role_id" json:"approver_role_id"`
	Active          bool            `db:"active" json:"active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// CapabilityDirection names the two sides of the workflow a capability set
// applies to.
type CapabilityDirection string

const (
	DirectionReceive CapabilityDirection = "receive"
	DirectionApprove CapabilityDirection = "approve"
)

// CapabilitySet carries both resolved type sets for a user.
type CapabilitySet struct {
	Receivable []ApplicationType `json:"receivable"`
	Approvable []ApplicationType `json:"approvable"`
}
