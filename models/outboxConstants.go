package models

// Publish statuses for FixJobRecord.PublishStatus.
// Keep these as strings (DB values) for backwards compatibility.
const (
	FixJobPublishStatusPending    = "PENDING"
	FixJobPublishStatusProcessing = "PROCESSING"
	FixJobPublishStatusSent       = "SENT"
	FixJobPublishStatusFailed     = "FAILED"
	FixJobPublishStatusDead       = "DEAD"
)

// Processing statuses for FixJobRecord.ProcessingStatus.
// These represent worker-side handling state (distinct from PublishStatus).
const (
	FixJobProcessStatusPending    = "PENDING"
	FixJobProcessStatusProcessing = "PROCESSING"
	FixJobProcessStatusSucceeded  = "SUCCEEDED"
	FixJobProcessStatusFailed     = "FAILED"
	FixJobProcessStatusDead       = "DEAD"
)
