package models

import (
	"context"
	"time"

	"github.com/rankhive/seofix_backend/config"
	"gorm.io/gorm"
)

// RollbackWindow is the period after application during which a fix can be
// reverted from its stored before-state snapshot.
const RollbackWindow = 90 * 24 * time.Hour

// Fix is one proposed or applied remediation for one issue. Before/after
// states are owned JSON snapshots of the mutated fields, never references
// into the live resource.
type Fix struct {
	ID               int               `gorm:"primary_key" json:"id"`
	AccountId        string            `gorm:"index;size:64;not null" json:"account_id"`
	ConnectionId     int               `gorm:"index;not null" json:"connection_id"`
	IssueId          int               `gorm:"index;not null" json:"issue_id"`
	PlanId           *int              `gorm:"index" json:"plan_id"`
	Type             string            `gorm:"size:100;not null" json:"type"`
	Description      string            `gorm:"type:text" json:"description"`
	ResourceType     string            `gorm:"size:50;not null" json:"resource_type"`
	ResourceId       string            `gorm:"size:128;not null;index" json:"resource_id"`
	BeforeState      []byte            `gorm:"type:json" json:"before_state"`
	AfterState       []byte            `gorm:"type:json" json:"after_state"`
	Status           FixStatus         `gorm:"size:20;not null;index" json:"status"`
	UsageReserved    bool              `gorm:"not null;default:false" json:"usage_reserved"`
	FailureReason    *FixFailureReason `gorm:"size:30" json:"failure_reason"`
	LastError        *string           `gorm:"type:text" json:"last_error"`
	AppliedAt        *time.Time        `json:"applied_at"`
	RollbackDeadline *time.Time        `json:"rollback_deadline"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// ComputeRollbackDeadline keeps the applied/deadline invariant in one place:
// rollback_deadline is set iff status=applied, and always appliedAt + 90 days.
func ComputeRollbackDeadline(appliedAt time.Time) time.Time {
	return appliedAt.Add(RollbackWindow)
}

func GetFix(ctx context.Context, fixId int) (*Fix, error) {
	db := config.GetDB()
	var fix Fix
	if err := db.WithContext(ctx).Where("id = ?", fixId).Take(&fix).Error; err != nil {
		return nil, err
	}
	return &fix, nil
}

// CountOpenFixesForIssue counts fixes still pending or applied for the issue.
// The engine enforces at most one such fix per issue at any time. Pending
// members of an abandoned plan are dormant, not open.
func CountOpenFixesForIssue(ctx context.Context, tx *gorm.DB, issueId int) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&Fix{}).
		Where("issue_id = ? AND status IN ?", issueId, []FixStatus{FixStatusPending, FixStatusApplied}).
		Where("plan_id IS NULL OR plan_id NOT IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).Model(&Plan{}).Select("id").Where("status = ?", PlanStatusAbandoned)).
		Count(&count).Error
	return count, err
}

// ListPlanFixes returns a plan's member fixes in creation order. Later fixes
// to the same resource may assume earlier ones already landed.
func ListPlanFixes(ctx context.Context, tx *gorm.DB, planId int) ([]*Fix, error) {
	var fixes []*Fix
	err := tx.WithContext(ctx).
		Where("plan_id = ?", planId).
		Order("id ASC").
		Find(&fixes).Error
	return fixes, err
}
