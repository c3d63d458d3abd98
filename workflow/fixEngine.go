package workflow

import (
	"context"
	"strconv"

	"github.com/rankhive/seofix_backend/config"
	"github.com/rankhive/seofix_backend/models"
	"github.com/rankhive/seofix_backend/platform"
	"github.com/rankhive/seofix_backend/utils"
	"gorm.io/gorm"
)

const (
	CodeIssueNotFound        ErrorCode = "ISSUE_NOT_FOUND"
	CodeUnsupportedIssueType ErrorCode = "UNSUPPORTED_ISSUE_TYPE"
)

type CreateFixesInput struct {
	ConnectionId int   `json:"connectionId" validate:"required,gt=0"`
	IssueIds     []int `json:"issueIds" validate:"required,min=1,max=100,dive,gt=0"`
}

type FixFailure struct {
	IssueId int       `json:"issueId"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type CreateFixesResult struct {
	FixIds         []int        `json:"fixIds"`
	PlanId         *int         `json:"planId,omitempty"`
	FixesCreated   int          `json:"fixesCreated"`
	FixesApplied   int          `json:"fixesApplied"`
	BlockedByQuota int          `json:"blockedByQuota"`
	Failures       []FixFailure `json:"failures"`
}

// CreateFixesFromAudit is the auditor's entry point: for each detected issue
// it snapshots the live before-state, proposes the fix, and routes the batch
// per the connection's execution mode. Per-issue failures never abort the
// batch.
func CreateFixesFromAudit(ctx context.Context, db *gorm.DB, input CreateFixesInput) (*CreateFixesResult, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	input.IssueIds = utils.UniqueSlice(input.IssueIds)

	conn, err := models.GetConnection(ctx, input.ConnectionId)
	if err != nil {
		return nil, err
	}
	adapter, err := platform.ForConnection(conn)
	if err != nil {
		return nil, WrapError(CodeAdapterUnavailable, err)
	}

	mode := conn.ExecutionMode
	if mode == models.ExecutionModeAutomatic && !config.AutoApplyEnabledFor(string(conn.Provider)) {
		// Operational kill switch: an AUTOMATIC connection on a disabled
		// provider degrades to per-fix approval instead of silently writing.
		mode = models.ExecutionModeApprove
	}
	pol := policyFor(mode)

	result := &CreateFixesResult{Failures: []FixFailure{}}
	var jobRecords []*models.FixJobRecord

	// AUTOMATIC admission: ask the ledger up front how many of the batch it
	// will take. Per-fix ReserveUsage below re-checks atomically, so a stale
	// answer can never overshoot the ceiling.
	autoBudget := 0
	if pol.ChargeAtCreation {
		admission, err := CanApplyFixes(ctx, db, conn.AccountId, len(input.IssueIds))
		if err != nil {
			return nil, err
		}
		autoBudget = admission.Allowed
	}

	for _, issueId := range input.IssueIds {
		issue, err := models.GetIssue(ctx, issueId)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				result.Failures = append(result.Failures, FixFailure{IssueId: issueId, Code: CodeIssueNotFound, Message: "issue not found"})
				continue
			}
			return nil, err
		}
		if issue.ConnectionId != conn.ID {
			result.Failures = append(result.Failures, FixFailure{IssueId: issueId, Code: CodeIssueNotFound, Message: "issue belongs to another connection"})
			continue
		}
		if issue.Status != models.IssueStatusDetected {
			result.Failures = append(result.Failures, FixFailure{IssueId: issueId, Code: CodeConflictingFix, Message: "issue is " + string(issue.Status)})
			continue
		}

		open, err := models.CountOpenFixesForIssue(ctx, db, issueId)
		if err != nil {
			return nil, err
		}
		if open > 0 {
			result.Failures = append(result.Failures, FixFailure{IssueId: issueId, Code: CodeConflictingFix, Message: "an open fix already targets this issue"})
			continue
		}

		field, ok := FieldForIssueType(issue.IssueType)
		if !ok {
			result.Failures = append(result.Failures, FixFailure{IssueId: issueId, Code: CodeUnsupportedIssueType, Message: "no automatic fix for issue type " + issue.IssueType})
			continue
		}

		ref := platform.ResourceRef{Type: issue.ResourceType, Id: issue.ResourceId}
		live, err := adapter.ReadResource(ctx, ref, []string{field})
		if err != nil {
			result.Failures = append(result.Failures, FixFailure{IssueId: issueId, Code: CodeAdapterUnavailable, Message: err.Error()})
			auditErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return models.CreateAuditEntry(tx, conn.ID, models.AuditActionFixCreateFailed, ref.String(), map[string]interface{}{
					"issue_id": issueId,
					"error":    err.Error(),
				})
			})
			if auditErr != nil {
				return nil, auditErr
			}
			continue
		}

		// The fix is created regardless of quota. Exhausted quota only
		// withholds the reservation and the auto-apply job, leaving the fix
		// pending for a later period or plan upgrade.
		reserved := false
		if pol.ChargeAtCreation {
			if autoBudget > 0 {
				if err := reserveUsage(ctx, db, conn.AccountId); err != nil {
					if code, _ := CodeOf(err); code != CodeQuotaExceeded {
						return nil, err
					}
					autoBudget = 0
				} else {
					reserved = true
					autoBudget--
				}
			}
			if !reserved {
				result.BlockedByQuota++
			}
		}

		before := map[string]string{field: live[field]}
		after := map[string]string{field: issue.SuggestedValue}

		fix := models.Fix{
			AccountId:     conn.AccountId,
			ConnectionId:  conn.ID,
			IssueId:       issue.ID,
			Type:          issue.IssueType,
			Description:   issue.Description,
			ResourceType:  issue.ResourceType,
			ResourceId:    issue.ResourceId,
			BeforeState:   EncodeState(before),
			AfterState:    EncodeState(after),
			Status:        models.FixStatusPending,
			UsageReserved: reserved,
		}

		txErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&fix).Error; err != nil {
				return err
			}
			if err := models.SetIssueStatus(tx, issue.ID, models.IssueStatusFixing); err != nil {
				return err
			}
			if err := models.CreateAuditEntry(tx, conn.ID, models.AuditActionFixCreated, ref.String(), map[string]interface{}{
				"fix_id":   fix.ID,
				"issue_id": issue.ID,
				"field":    field,
			}); err != nil {
				return err
			}
			if pol.AutoApply && reserved {
				rec, err := models.EnqueueFixJob(ctx, tx, conn.AccountId, conn.ID, models.FixJobKindApplyFix, fix.ID, 0,
					models.ApplyPartitionKey(conn.ID, issue.ResourceType, issue.ResourceId))
				if err != nil {
					return err
				}
				jobRecords = append(jobRecords, rec)
			}
			return nil
		})
		if txErr != nil {
			if reserved {
				_ = releaseUsage(ctx, db, conn.AccountId)
			}
			return nil, txErr
		}

		result.FixIds = append(result.FixIds, fix.ID)
		result.FixesCreated++
	}

	if pol.GroupIntoPlan && result.FixesCreated > 0 {
		plan := models.Plan{
			AccountId:    conn.AccountId,
			ConnectionId: conn.ID,
			Status:       models.PlanStatusPending,
			FixCount:     result.FixesCreated,
		}
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&plan).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Fix{}).
				Where("id IN ?", result.FixIds).
				Update("plan_id", plan.ID).Error; err != nil {
				return err
			}
			return models.CreateAuditEntry(tx, conn.ID, models.AuditActionPlanCreated, "plan/"+strconv.Itoa(plan.ID), map[string]interface{}{
				"plan_id":   plan.ID,
				"fix_count": result.FixesCreated,
			})
		})
		if err != nil {
			return nil, err
		}
		result.PlanId = &plan.ID
	}

	// AUTOMATIC: drain the just-enqueued jobs inline so the caller sees
	// outcomes. A crash before this point leaves the committed job rows for
	// the direct processor.
	for _, rec := range jobRecords {
		if err := ProcessFixJob(ctx, db, rec); err != nil {
			code, _ := CodeOf(err)
			result.Failures = append(result.Failures, FixFailure{IssueId: fixIssueId(ctx, rec.FixId), Code: code, Message: err.Error()})
			continue
		}
		// A nil return also covers terminal failures settled on the fix row.
		fix, err := models.GetFix(ctx, rec.FixId)
		if err != nil {
			return nil, err
		}
		if fix.Status == models.FixStatusApplied {
			result.FixesApplied++
			continue
		}
		msg := "fix was not applied"
		if fix.LastError != nil {
			msg = *fix.LastError
		}
		result.Failures = append(result.Failures, FixFailure{IssueId: fix.IssueId, Code: failureCodeFor(fix), Message: msg})
	}

	return result, nil
}

func fixIssueId(ctx context.Context, fixId int) int {
	fix, err := models.GetFix(ctx, fixId)
	if err != nil {
		return 0
	}
	return fix.IssueId
}

func failureCodeFor(fix *models.Fix) ErrorCode {
	if fix.FailureReason == nil {
		return CodeAdapterUnavailable
	}
	switch *fix.FailureReason {
	case models.FixFailureReasonStalePrecondition:
		return CodeStalePrecondition
	case models.FixFailureReasonQuotaExceeded:
		return CodeQuotaExceeded
	default:
		return CodeAdapterUnavailable
	}
}
