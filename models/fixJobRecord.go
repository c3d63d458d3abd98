package models

import (
	"context"
	"errors"
	"time"

	"github.com/rankhive/seofix_backend/config"
	"github.com/rankhive/seofix_backend/utils"
	"gorm.io/gorm"
)

const (
	FixJobKindApplyFix    = "apply_fix"
	FixJobKindExecutePlan = "execute_plan"
)

// FixJobRecord is the transactional-outbox row backing durable fix
// application: it is written inside the same DB transaction as the state
// change that requires it, and published/processed after commit. A crash
// between commit and processing leaves the row for the direct processor.
type FixJobRecord struct {
	ID           int    `gorm:"primary_key;index:idx_fixjob_dispatch,priority:3" json:"id"`
	AccountId    string `gorm:"size:64;not null;index" json:"account_id"`
	ConnectionId int    `gorm:"index;not null" json:"connection_id"`
	Kind         string `gorm:"size:20;not null" json:"kind"`
	FixId        int    `gorm:"index" json:"fix_id"`
	PlanId       int    `gorm:"index" json:"plan_id"`
	// PartitionKey serializes jobs touching the same resource:
	// "<connection_id>:<resource_type>:<resource_id>" (or ":plan:<id>").
	PartitionKey string `gorm:"size:255;index" json:"partition_key"`
	IsProcessed  bool   `gorm:"index;not null" json:"is_processed"`
	// Publish metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_fixjob_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_fixjob_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	// Processing metadata (consumer/worker).
	ProcessingStatus     string     `gorm:"size:20;index;not null;default:'PENDING'" json:"processing_status"` // PENDING|PROCESSING|SUCCEEDED|FAILED|DEAD
	ProcessAttempts      int        `gorm:"not null;default:0" json:"process_attempts"`
	NextProcessAttemptAt *time.Time `gorm:"index" json:"next_process_attempt_at"`
	LastProcessError     *string    `gorm:"type:text" json:"last_process_error"`
	ProcessedAt          *time.Time `gorm:"index" json:"processed_at"`
	CorrelationId        string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToFixJobMessage(record FixJobRecord) config.FixJobMessage {
	return config.FixJobMessage{
		ID:            record.ID,
		AccountId:     record.AccountId,
		ConnectionId:  record.ConnectionId,
		Kind:          record.Kind,
		FixId:         record.FixId,
		PlanId:        record.PlanId,
		PartitionKey:  record.PartitionKey,
		CorrelationId: record.CorrelationId,
	}
}

// ReplayFixJobs resets unprocessed FAILED/DEAD job rows for an account so the
// dispatcher and workers pick them up again (ops tooling).
func ReplayFixJobs(ctx context.Context, fixId int, planId int) (int64, error) {
	accountId, ok := utils.GetAccountIdFromContext(ctx)
	if !ok || accountId == "" {
		return 0, errors.New("account id is required")
	}

	now := time.Now().UTC()
	db := config.GetDB()

	q := db.WithContext(ctx).
		Model(&FixJobRecord{}).
		Where("account_id = ? AND is_processed = 0", accountId)
	if fixId > 0 {
		q = q.Where("fix_id = ?", fixId)
	}
	if planId > 0 {
		q = q.Where("plan_id = ?", planId)
	}

	res := q.Updates(map[string]interface{}{
		"locked_at":               nil,
		"locked_by":               nil,
		"publish_status":          FixJobPublishStatusPending,
		"next_attempt_at":         nil,
		"processing_status":       FixJobProcessStatusPending,
		"next_process_attempt_at": &now,
		"last_process_error":      nil,
	})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return res.RowsAffected, nil
}
