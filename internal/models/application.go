package models

import "time"

// ApplicationType enumerates the supported request kinds.
type ApplicationType string

const (
	TypeWork            ApplicationType = "WORK"
	TypeConstruction    ApplicationType = "CONSTRUCTION"
	TypeToolBringin     ApplicationType = "TOOL_BRINGIN"
	TypeRestrictedEntry ApplicationType = "RESTRICTED_ENTRY"
	TypeRestrictedTool  ApplicationType = "RESTRICTED_TOOL"
)

// AllApplicationTypes returns every known type. Order is stable for
// deterministic fallback capability sets.
func AllApplicationTypes() []ApplicationType {
	return []ApplicationType{
		TypeWork,
		TypeConstruction,
		TypeToolBringin,
		TypeRestrictedEntry,
		TypeRestrictedTool,
	}
}

// ValidApplicationType reports whether t is a known type.
func ValidApplicationType(t ApplicationType) bool {
	for _, known := range AllApplicationTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ApplicationStatus enumerates lifecycle states.
type ApplicationStatus string

const (
	StatusDraft     ApplicationStatus = "DRAFT"
	StatusSubmitted ApplicationStatus = "SUBMITTED"
	StatusReceived  ApplicationStatus = "RECEIVED"
	StatusApproved  ApplicationStatus = "APPROVED"
	StatusRejected  ApplicationStatus = "REJECTED"
	StatusReturned  ApplicationStatus = "RETURNED"
)

// ValidApplicationStatus reports whether s is a known status.
func ValidApplicationStatus(s ApplicationStatus) bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusReceived, StatusApproved, StatusRejected, StatusReturned:
		return true
	}
	return false
}

// Application is one workflow request instance. After submission it is
// mutated only through state-machine transitions.
type Application struct {
	ID     string            `db:"id" json:"id"`
	Number string            `db:"number" json:"number"`
	Type   ApplicationType   `db:"type" json:"type"`
	Status ApplicationStatus `db:"status" json:"status"`

	Title       string `db:"title" json:"title"`
	Content     string `db:"content" json:"content"`
	ApplicantID string `db:"applicant_id" json:"applicant_id"`
	CompanyName string `db:"company_name" json:"company_name"`

	// Work / construction details
	WorkLocation  string     `db:"work_location" json:"work_location,omitempty"`
	WorkStartDate *time.Time `db:"work_start_date" json:"work_start_date,omitempty"`
	WorkEndDate   *time.Time `db:"work_end_date" json:"work_end_date,omitempty"`
	WorkerCount   *int       `db:"worker_count" json:"worker_count,omitempty"`
	ContractorName string    `db:"contractor_name" json:"contractor_name,omitempty"`

	// Tool bring-in details, newline separated list
	ToolList string `db:"tool_list" json:"tool_list,omitempty"`

	// Restricted area details
	RestrictedArea string `db:"restricted_area" json:"restricted_area,omitempty"`
	EntryPurpose   string `db:"entry_purpose" json:"entry_purpose,omitempty"`
	EntryMembers   string `db:"entry_members" json:"entry_members,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	SubmittedAt *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ReceivedAt  *time.Time `db:"received_at" json:"received_at,omitempty"`
	ApprovedAt  *time.Time `db:"approved_at" json:"approved_at,omitempty"`
}

// Editable reports whether the applicant may still modify the application.
func (a *Application) Editable(userID string) bool {
	if a == nil || a.ApplicantID != userID {
		return false
	}
	return a.Status == StatusDraft || a.Status == StatusReturned
}

// ApplicationFilter constrains dashboard and queue listings.
type ApplicationFilter struct {
	Search   string
	Status   ApplicationStatus
	Type     ApplicationType
	Page     int
	PageSize int
}
