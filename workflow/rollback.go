package workflow

import (
	"context"
	"time"

	"github.com/rankhive/seofix_backend/models"
	"github.com/rankhive/seofix_backend/platform"
	"gorm.io/gorm"
)

// rollbackGate decides whether a fix can still be reverted at the given
// moment. Only applied fixes inside their rollback window with an intact
// before-state snapshot pass.
func rollbackGate(fix *models.Fix, now time.Time) error {
	if fix.Status != models.FixStatusApplied {
		return NewError(CodeFixNotApplied, "fix is "+string(fix.Status))
	}
	if fix.RollbackDeadline == nil || now.After(*fix.RollbackDeadline) {
		return NewError(CodeRollbackExpired, "rollback window has closed")
	}
	if len(fix.BeforeState) == 0 {
		return NewError(CodeRollbackExpired, "before-state snapshot was purged")
	}
	return nil
}

// RollbackFix restores the fix's before-state to the live resource. The usage
// counter is not refunded, the application happened and was metered.
func RollbackFix(ctx context.Context, db *gorm.DB, fixId int) error {
	fix, err := models.GetFix(ctx, fixId)
	if err != nil {
		return err
	}
	if err := rollbackGate(fix, time.Now().UTC()); err != nil {
		return err
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
	ref := platform.ResourceRef{Type: fix.ResourceType, Id: fix.ResourceId}

	if err := adapter.WriteResource(ctx, ref, platform.Fields(before)); err != nil {
		if platform.IsRetryable(err) {
			return WrapError(CodeAdapterUnavailable, err)
		}
		auditErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return models.CreateAuditEntry(tx, fix.ConnectionId, models.AuditActionRollbackFailed, ref.String(), map[string]interface{}{
				"fix_id": fix.ID,
				"error":  err.Error(),
			})
		})
		if auditErr != nil {
			return auditErr
		}
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Fix{}).
			Where("id = ? AND status = ?", fix.ID, models.FixStatusApplied).
			Updates(map[string]interface{}{
				"status":            models.FixStatusRolledBack,
				"rollback_deadline": nil,
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
		return models.CreateAuditEntry(tx, fix.ConnectionId, models.AuditActionFixRolledBack, ref.String(), map[string]interface{}{
			"fix_id":   fix.ID,
			"issue_id": fix.IssueId,
		})
	})
}

// PurgeExpiredSnapshots clears before-state blobs for fixes whose rollback
// window has closed. Run from the snapshot-purge job; rollback after purge
// answers ROLLBACK_EXPIRED.
func PurgeExpiredSnapshots(ctx context.Context, db *gorm.DB) (int64, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).Model(&models.Fix{}).
		Where("status = ? AND rollback_deadline IS NOT NULL AND rollback_deadline < ? AND before_state IS NOT NULL",
			models.FixStatusApplied, now).
		Update("before_state", nil)
	return res.RowsAffected, res.Error
}
