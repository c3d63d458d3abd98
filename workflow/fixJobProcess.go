package workflow

import (
	"context"
	"strconv"
	"time"

	"github.com/rankhive/seofix_backend/models"
	"gorm.io/gorm"
)

const fixJobHandlerName = "process_fix_job"

// ProcessFixJob executes one durable job exactly-once-per-effect: DB-backed
// idempotency plus the pending-only transitions inside ApplyFix make Pub/Sub
// redelivery and inline/worker overlap safe.
func ProcessFixJob(ctx context.Context, db *gorm.DB, rec *models.FixJobRecord) error {
	messageId := strconv.Itoa(rec.ID)

	var skip bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		skip, err = BeginIdempotency(tx, rec.AccountId, fixJobHandlerName, messageId)
		return err
	})
	if err != nil {
		return err
	}
	if skip {
		return MarkFixJobProcessed(ctx, db, rec.ID, nil)
	}

	var jobErr error
	switch rec.Kind {
	case models.FixJobKindApplyFix:
		jobErr = ApplyFix(ctx, db, rec.FixId)
	case models.FixJobKindExecutePlan:
		_, jobErr = ExecutePlan(ctx, db, rec.PlanId)
	default:
		jobErr = NewError(CodeUnsupportedIssueType, "unknown job kind "+rec.Kind)
	}

	if jobErr != nil && IsRetryable(jobErr) {
		_ = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return MarkIdempotencyFailed(tx, rec.AccountId, fixJobHandlerName, messageId, jobErr)
		})
		return jobErr
	}

	// Terminal failures count as processed: the fix row already carries the
	// failure and the audit trail has the entry, redelivery must not retry.
	if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return MarkIdempotencySucceeded(tx, rec.AccountId, fixJobHandlerName, messageId)
	}); err != nil {
		return err
	}
	return MarkFixJobProcessed(ctx, db, rec.ID, jobErr)
}

// SettleDeadFixJob runs when retry attempts are exhausted and the job row
// goes DEAD. The fix behind it must not stay pending forever: it is marked
// failed, its issue returns to detected, and any reserved quota unit is
// returned since the application never happened.
func SettleDeadFixJob(ctx context.Context, db *gorm.DB, rec *models.FixJobRecord, cause string) error {
	msg := "retry attempts exhausted: " + cause
	switch rec.Kind {
	case models.FixJobKindApplyFix:
		fix, err := models.GetFix(ctx, rec.FixId)
		if err != nil {
			return err
		}
		if fix.Status != models.FixStatusPending {
			return nil
		}
		if fix.UsageReserved {
			_ = releaseUsage(ctx, db, fix.AccountId)
		}
		return markFixFailed(ctx, db, fix, models.FixFailureReasonAdapterError, msg)
	case models.FixJobKindExecutePlan:
		fixes, err := models.ListPlanFixes(ctx, db.WithContext(ctx), rec.PlanId)
		if err != nil {
			return err
		}
		for _, fix := range fixes {
			if fix.Status != models.FixStatusPending {
				continue
			}
			if fix.UsageReserved {
				_ = releaseUsage(ctx, db, fix.AccountId)
			}
			if err := markFixFailed(ctx, db, fix, models.FixFailureReasonAdapterError, msg); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		return db.WithContext(ctx).Model(&models.Plan{}).
			Where("id = ? AND status = ?", rec.PlanId, models.PlanStatusExecuting).
			Updates(map[string]interface{}{
				"status":       models.PlanStatusCompleted,
				"completed_at": &now,
			}).Error
	}
	return nil
}

// MarkFixJobProcessed settles the outbox row. A non-nil jobErr records the
// terminal failure message alongside the processed flag.
func MarkFixJobProcessed(ctx context.Context, db *gorm.DB, recordId int, jobErr error) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"is_processed":      true,
		"processing_status": models.FixJobProcessStatusSucceeded,
		"processed_at":      &now,
		"locked_at":         nil,
		"locked_by":         nil,
	}
	if jobErr != nil {
		msg := jobErr.Error()
		updates["processing_status"] = models.FixJobProcessStatusFailed
		updates["last_process_error"] = &msg
	}
	return db.WithContext(ctx).Model(&models.FixJobRecord{}).
		Where("id = ?", recordId).
		Updates(updates).Error
}
