package models

import "errors"

type PlatformProvider string

const (
	PlatformProviderShopify   PlatformProvider = "shopify"
	PlatformProviderWordPress PlatformProvider = "wordpress"
	PlatformProviderScript    PlatformProvider = "script"
)

type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusError        ConnectionStatus = "error"
)

type IssueSeverity string

const (
	IssueSeverityCritical IssueSeverity = "critical"
	IssueSeverityHigh     IssueSeverity = "high"
	IssueSeverityMedium   IssueSeverity = "medium"
	IssueSeverityLow      IssueSeverity = "low"
)

type IssueStatus string

const (
	IssueStatusDetected IssueStatus = "detected"
	IssueStatusFixing   IssueStatus = "fixing"
	IssueStatusFixed    IssueStatus = "fixed"
	IssueStatusIgnored  IssueStatus = "ignored"
)

type FixStatus string

const (
	FixStatusPending    FixStatus = "pending"
	FixStatusApplied    FixStatus = "applied"
	FixStatusFailed     FixStatus = "failed"
	FixStatusRolledBack FixStatus = "rolled_back"
)

type FixFailureReason string

const (
	FixFailureReasonStalePrecondition FixFailureReason = "stale_precondition"
	FixFailureReasonAdapterError      FixFailureReason = "adapter_error"
	FixFailureReasonQuotaExceeded     FixFailureReason = "quota_exceeded"
)

type PlanStatus string

const (
	PlanStatusPending   PlanStatus = "pending"
	PlanStatusApproved  PlanStatus = "approved"
	PlanStatusExecuting PlanStatus = "executing"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusAbandoned PlanStatus = "abandoned"
)

type ExecutionMode string

const (
	ExecutionModeAutomatic ExecutionMode = "AUTOMATIC"
	ExecutionModePlan      ExecutionMode = "PLAN"
	ExecutionModeApprove   ExecutionMode = "APPROVE"
)

func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(s) {
	case ExecutionModeAutomatic, ExecutionModePlan, ExecutionModeApprove:
		return ExecutionMode(s), nil
	}
	return "", errors.New("invalid execution mode")
}

type AuditAction string

const (
	AuditActionFixCreated      AuditAction = "fix_created"
	AuditActionFixCreateFailed AuditAction = "fix_create_failed"
	AuditActionFixApplied      AuditAction = "fix_applied"
	AuditActionFixFailed       AuditAction = "fix_failed"
	AuditActionFixRolledBack   AuditAction = "fix_rolled_back"
	AuditActionRollbackFailed  AuditAction = "rollback_failed"
	AuditActionPlanCreated     AuditAction = "plan_created"
	AuditActionPlanApproved    AuditAction = "plan_approved"
	AuditActionPlanAbandoned   AuditAction = "plan_abandoned"
	AuditActionUsageCorrected  AuditAction = "usage_corrected"
)
