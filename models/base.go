package models

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rankhive/seofix_backend/utils"
	"gorm.io/gorm"
)

// EnqueueFixJob implements the transactional outbox: it writes the job record
// inside the caller's DB transaction but does NOT publish to Pub/Sub.
// Publishing is performed asynchronously by the outbox dispatcher after commit.
func EnqueueFixJob(ctx context.Context, tx *gorm.DB, accountId string, connectionId int, kind string, fixId int, planId int, partitionKey string) (*FixJobRecord, error) {
	record := FixJobRecord{
		AccountId:        accountId,
		ConnectionId:     connectionId,
		Kind:             kind,
		FixId:            fixId,
		PlanId:           planId,
		PartitionKey:     partitionKey,
		IsProcessed:      false,
		PublishStatus:    FixJobPublishStatusPending,
		ProcessingStatus: FixJobProcessStatusPending,
		CorrelationId:    correlationIdFromContextOrNew(ctx),
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ApplyPartitionKey orders all applications touching one resource behind one
// queue partition.
func ApplyPartitionKey(connectionId int, resourceType string, resourceId string) string {
	return fmt.Sprintf("%d:%s:%s", connectionId, resourceType, resourceId)
}

func PlanPartitionKey(connectionId int, planId int) string {
	return fmt.Sprintf("%d:plan:%d", connectionId, planId)
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
