package workflow

import (
	"context"
	"strconv"
	"time"

	"github.com/rankhive/seofix_backend/models"
	"gorm.io/gorm"
)

const CodePlanNotApproved ErrorCode = "PLAN_NOT_APPROVED"

type FixOutcome struct {
	FixId   int       `json:"fixId"`
	IssueId int       `json:"issueId"`
	Status  string    `json:"status"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

type PlanExecutionResult struct {
	PlanId       int          `json:"planId"`
	PlanStatus   string       `json:"planStatus"`
	FixesApplied int          `json:"fixesApplied"`
	Outcomes     []FixOutcome `json:"outcomes"`
}

// ApprovePlan authorizes a pending plan and executes its fixes inline, in
// creation order, returning per-fix outcomes. The execute_plan job row makes
// a crashed or transiently-failed approval resumable by the worker.
func ApprovePlan(ctx context.Context, db *gorm.DB, planId int) (*PlanExecutionResult, error) {
	plan, err := models.GetPlan(ctx, planId)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var jobRecord *models.FixJobRecord
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Plan{}).
			Where("id = ? AND status = ?", planId, models.PlanStatusPending).
			Updates(map[string]interface{}{
				"status":      models.PlanStatusApproved,
				"approved_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewError(CodePlanNotPending, "plan is not awaiting approval")
		}
		if err := models.CreateAuditEntry(tx, plan.ConnectionId, models.AuditActionPlanApproved, "plan/"+strconv.Itoa(planId), map[string]interface{}{
			"plan_id": planId,
		}); err != nil {
			return err
		}
		rec, err := models.EnqueueFixJob(ctx, tx, plan.AccountId, plan.ConnectionId, models.FixJobKindExecutePlan, 0, planId,
			models.PlanPartitionKey(plan.ConnectionId, planId))
		if err != nil {
			return err
		}
		jobRecord = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, execErr := ExecutePlan(ctx, db, planId)
	if execErr != nil {
		if IsRetryable(execErr) && result != nil {
			// Some members hit transient adapter failures and stay pending.
			// The job row is left unprocessed so the worker retries them
			// with backoff; the caller still sees the partial outcomes.
			return result, nil
		}
		return nil, execErr
	}
	if err := MarkFixJobProcessed(ctx, db, jobRecord.ID, nil); err != nil {
		return nil, err
	}
	return result, nil
}

// ExecutePlan runs the plan's member fixes sequentially in creation order.
// Idempotent: re-entry after a crash or transient failure resumes at the
// fixes still pending. Members that fail retryably keep the plan executing
// and make the whole call retryable; the plan completes only once no member
// is awaiting another attempt.
func ExecutePlan(ctx context.Context, db *gorm.DB, planId int) (*PlanExecutionResult, error) {
	if err := db.WithContext(ctx).Model(&models.Plan{}).
		Where("id = ? AND status = ?", planId, models.PlanStatusApproved).
		Update("status", models.PlanStatusExecuting).Error; err != nil {
		return nil, err
	}

	fixes, err := models.ListPlanFixes(ctx, db.WithContext(ctx), planId)
	if err != nil {
		return nil, err
	}

	result := &PlanExecutionResult{PlanId: planId}
	pendingRetries := 0
	for _, fix := range fixes {
		outcome := FixOutcome{FixId: fix.ID, IssueId: fix.IssueId}
		switch fix.Status {
		case models.FixStatusApplied:
			outcome.Status = string(models.FixStatusApplied)
			result.FixesApplied++
		case models.FixStatusPending:
			if err := ApplyFix(ctx, db, fix.ID); err != nil {
				code, _ := CodeOf(err)
				outcome.Code = code
				outcome.Message = err.Error()
				if IsRetryable(err) {
					outcome.Status = string(models.FixStatusPending)
					pendingRetries++
				} else {
					outcome.Status = string(models.FixStatusFailed)
				}
			} else {
				outcome.Status = string(models.FixStatusApplied)
				result.FixesApplied++
			}
		default:
			outcome.Status = string(fix.Status)
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	if pendingRetries > 0 {
		result.PlanStatus = string(models.PlanStatusExecuting)
		return result, NewError(CodeAdapterUnavailable,
			strconv.Itoa(pendingRetries)+" plan member(s) pending retry")
	}

	now := time.Now().UTC()
	res := db.WithContext(ctx).Model(&models.Plan{}).
		Where("id = ? AND status = ?", planId, models.PlanStatusExecuting).
		Updates(map[string]interface{}{
			"status":       models.PlanStatusCompleted,
			"completed_at": &now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	result.PlanStatus = string(models.PlanStatusCompleted)
	return result, nil
}

// AbandonPlan discards a pending plan with no side effects on the live site.
// Member fixes stay pending but dormant; their issues go back to detected so
// a later audit can propose fresh fixes.
func AbandonPlan(ctx context.Context, db *gorm.DB, planId int) error {
	plan, err := models.GetPlan(ctx, planId)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Plan{}).
			Where("id = ? AND status = ?", planId, models.PlanStatusPending).
			Update("status", models.PlanStatusAbandoned)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewError(CodePlanNotPending, "plan is not awaiting approval")
		}
		if err := tx.Model(&models.Issue{}).
			Where("id IN (?)", tx.Session(&gorm.Session{NewDB: true}).
				Model(&models.Fix{}).Select("issue_id").
				Where("plan_id = ? AND status = ?", planId, models.FixStatusPending)).
			Update("status", models.IssueStatusDetected).Error; err != nil {
			return err
		}
		return models.CreateAuditEntry(tx, plan.ConnectionId, models.AuditActionPlanAbandoned, "plan/"+strconv.Itoa(planId), map[string]interface{}{
			"plan_id": planId,
		})
	})
}
