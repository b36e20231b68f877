package dto

import "github.com/plantops/workflow-api/internal/models"

// DashboardSummary carries the counters shown above the work queues.
type DashboardSummary struct {
	MyDraftCount        int `json:"my_draft_count"`
	MySubmittedCount    int `json:"my_submitted_count"`
	MyApprovedCount     int `json:"my_approved_count"`
	PendingReceiveCount int `json:"pending_receive_count"`
	PendingApproveCount int `json:"pending_approve_count"`
}

// CapabilitiesResponse mirrors the resolver output for the API.
type CapabilitiesResponse struct {
	Receivable []models.ApplicationType `json:"receivable"`
	Approvable []models.ApplicationType `json:"approvable"`
}
