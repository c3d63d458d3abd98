package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/rankhive/seofix_backend/models"
	"github.com/rankhive/seofix_backend/platform"
	"gorm.io/gorm"
)

// applyGate decides whether a fix may proceed to application. A false with a
// nil error means the fix is already applied, an idempotent no-op for the
// caller. Member fixes only apply once their plan has been approved; that
// also keeps an abandoned plan's dormant pending members inert.
func applyGate(fix *models.Fix, plan *models.Plan) (bool, error) {
	switch fix.Status {
	case models.FixStatusPending:
	case models.FixStatusApplied:
		return false, nil
	default:
		return false, NewError(CodeFixNotPending, "fix is "+string(fix.Status))
	}
	if fix.PlanId != nil {
		if plan == nil {
			return false, NewError(CodePlanNotApproved, "parent plan not found")
		}
		switch plan.Status {
		case models.PlanStatusApproved, models.PlanStatusExecuting:
		default:
			return false, NewError(CodePlanNotApproved, "parent plan is "+string(plan.Status))
		}
	}
	return true, nil
}

// ApplyFix moves one pending fix to applied by writing its after-state to the
// live resource. Safe under at-least-once delivery: a fix already applied is
// a no-op, and the pending-only conditional update makes the concurrent
// second caller lose cleanly.
func ApplyFix(ctx context.Context, db *gorm.DB, fixId int) error {
	fix, err := models.GetFix(ctx, fixId)
	if err != nil {
		return err
	}
	var plan *models.Plan
	if fix.PlanId != nil {
		plan, err = models.GetPlan(ctx, *fix.PlanId)
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
	}
	proceed, err := applyGate(fix, plan)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}

	conn, err := models.GetConnection(ctx, fix.ConnectionId)
	if err != nil {
		return err
	}
	adapter, err := platform.ForConnection(conn)
	if err != nil {
		return WrapError(CodeAdapterUnavailable, err)
	}

	lock, err := acquireApplyLock(ctx, fix.ConnectionId, fix.ResourceType, fix.ResourceId)
	if err != nil {
		return err
	}
	defer releaseApplyLock(ctx, lock)

	before := DecodeState(fix.BeforeState)
	after := DecodeState(fix.AfterState)
	ref := platform.ResourceRef{Type: fix.ResourceType, Id: fix.ResourceId}

	live, err := adapter.ReadResource(ctx, ref, stateFields(before))
	if err != nil {
		if platform.IsRetryable(err) {
			return WrapError(CodeAdapterUnavailable, err)
		}
		if fix.UsageReserved {
			_ = releaseUsage(ctx, db, fix.AccountId)
		}
		if ferr := markFixFailed(ctx, db, fix, models.FixFailureReasonAdapterError, err.Error()); ferr != nil {
			return ferr
		}
		return err
	}

	if stale := DetectStaleFields(before, live); len(stale) > 0 {
		msg := "resource changed since snapshot: " + strings.Join(stale, ", ")
		if fix.UsageReserved {
			_ = releaseUsage(ctx, db, fix.AccountId)
		}
		if ferr := markFixFailed(ctx, db, fix, models.FixFailureReasonStalePrecondition, msg); ferr != nil {
			return ferr
		}
		return NewError(CodeStalePrecondition, msg)
	}

	// AUTOMATIC mode reserves at creation; everyone else pays here, right
	// before the platform write.
	reservedHere := false
	if !fix.UsageReserved {
		if err := reserveUsage(ctx, db, fix.AccountId); err != nil {
			return err
		}
		reservedHere = true
	}

	if err := adapter.WriteResource(ctx, ref, platform.Fields(after)); err != nil {
		if platform.IsRetryable(err) {
			// Leave the fix pending for the retry. A reservation made in
			// this attempt is rolled back; a creation-time reservation
			// stays, the retry still owns it.
			if reservedHere {
				_ = releaseUsage(ctx, db, fix.AccountId)
			}
			return WrapError(CodeAdapterUnavailable, err)
		}
		if fix.UsageReserved || reservedHere {
			_ = releaseUsage(ctx, db, fix.AccountId)
		}
		if ferr := markFixFailed(ctx, db, fix, models.FixFailureReasonAdapterError, err.Error()); ferr != nil {
			return ferr
		}
		return err
	}

	now := time.Now().UTC()
	deadline := models.ComputeRollbackDeadline(now)
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Fix{}).
			Where("id = ? AND status = ?", fix.ID, models.FixStatusPending).
			Updates(map[string]interface{}{
				"status":            models.FixStatusApplied,
				"applied_at":        &now,
				"rollback_deadline": &deadline,
				"usage_reserved":    true,
				"failure_reason":    nil,
				"last_error":        nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent caller finished first. The platform write was
			// idempotent (same after-state); only our reservation must go.
			if reservedHere {
				return releaseUsage(ctx, tx, fix.AccountId)
			}
			return nil
		}
		if err := models.SetIssueStatus(tx, fix.IssueId, models.IssueStatusFixed); err != nil {
			return err
		}
		return models.CreateAuditEntry(tx, fix.ConnectionId, models.AuditActionFixApplied, ref.String(), map[string]interface{}{
			"fix_id":            fix.ID,
			"issue_id":          fix.IssueId,
			"rollback_deadline": deadline,
		})
	})
}

// markFixFailed records a terminal application failure. Conditional on the
// fix still being pending so a concurrent success is never overwritten.
func markFixFailed(ctx context.Context, db *gorm.DB, fix *models.Fix, reason models.FixFailureReason, cause string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Fix{}).
			Where("id = ? AND status = ?", fix.ID, models.FixStatusPending).
			Updates(map[string]interface{}{
				"status":         models.FixStatusFailed,
				"failure_reason": reason,
				"last_error":     cause,
				"usage_reserved": false,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := models.SetIssueStatus(tx, fix.IssueId, models.IssueStatusDetected); err != nil {
			return err
		}
		ref := platform.ResourceRef{Type: fix.ResourceType, Id: fix.ResourceId}
		return models.CreateAuditEntry(tx, fix.ConnectionId, models.AuditActionFixFailed, ref.String(), map[string]interface{}{
			"fix_id":   fix.ID,
			"issue_id": fix.IssueId,
			"reason":   reason,
			"error":    cause,
		})
	})
}
