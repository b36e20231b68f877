package dto

import (
	"time"

	"github.com/plantops/workflow-api/internal/models"
)

// CreateApplicationRequest payload for creating a draft or submitting
// directly when Submit is true.
type CreateApplicationRequest struct {
	Type    models.ApplicationType `json:"type" binding:"required"`
	Title   string                 `json:"title" binding:"required,max=200"`
	Content string                 `json:"content" binding:"required"`

	WorkLocation   string     `json:"work_location"`
	WorkStartDate  *time.Time `json:"work_start_date"`
	WorkEndDate    *time.Time `json:"work_end_date"`
	WorkerCount    *int       `json:"worker_count"`
	ContractorName string     `json:"contractor_name"`
	ToolList       string     `json:"tool_list"`
	RestrictedArea string     `json:"restricted_area"`
	EntryPurpose   string     `json:"entry_purpose"`
	EntryMembers   string     `json:"entry_members"`

	Submit bool `json:"submit"`
}

// UpdateApplicationRequest payload for editing a draft or returned
// application. Resubmission happens through the submit endpoint.
type UpdateApplicationRequest struct {
	Title   string `json:"title" binding:"required,max=200"`
	Content string `json:"content" binding:"required"`

	WorkLocation   string     `json:"work_location"`
	WorkStartDate  *time.Time `json:"work_start_date"`
	WorkEndDate    *time.Time `json:"work_end_date"`
	WorkerCount    *int       `json:"worker_count"`
	ContractorName string     `json:"contractor_name"`
	ToolList       string     `json:"tool_list"`
	RestrictedArea string     `json:"restricted_area"`
	EntryPurpose   string     `json:"entry_purpose"`
	EntryMembers   string     `json:"entry_members"`
}

// TransitionRequest carries the optional comment accompanying a receive,
// return, approve or reject action.
type TransitionRequest struct {
	Comment string `json:"comment"`
}

// CreateCommentRequest payload for adding commentary.
type CreateCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

// ApplicationDetail combines the application with its audit trail and
// child records, plus the action flags the caller may perform.
type ApplicationDetail struct {
	Application *models.Application   `json:"application"`
	Steps       []models.WorkflowStep `json:"steps"`
	Comments    []models.Comment      `json:"comments"`
	Attachments []models.Attachment   `json:"attachments"`
	Permissions ActionPermissions     `json:"permissions"`
}

// ActionPermissions tells the presentation layer which transitions the
// current user may attempt.
type ActionPermissions struct {
	CanEdit    bool `json:"can_edit"`
	CanSubmit  bool `json:"can_submit"`
	CanReceive bool `json:"can_receive"`
	CanApprove bool `json:"can_approve"`
	CanReturn  bool `json:"can_return"`
	CanReject  bool `json:"can_reject"`
}
