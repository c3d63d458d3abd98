package worker

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rankhive/seofix_backend/models"
	"github.com/rankhive/seofix_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FixJobDirectProcessor processes unhandled job records without Pub/Sub.
// This is intended for local/dev environments where Pub/Sub is not configured,
// and runs as a safety net in production for rows stuck by misdelivery.
type FixJobDirectProcessor struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewDirectProcessor(db *gorm.DB, logger *logrus.Logger) *FixJobDirectProcessor {
	return &FixJobDirectProcessor{
		DB:        db,
		Logger:    logger,
		WorkerID:  "direct-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

func ShouldRunDirectProcessor() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("FIXJOB_DIRECT_PROCESSING")))
	if val == "true" {
		return true
	}
	if val == "false" {
		return false
	}
	// Default: run as a safety net even when Pub/Sub is configured. Push
	// delivery can be misconfigured and leave committed job rows stuck;
	// processing is protected by DB idempotency keys and pending-only
	// transitions, so at-least-once delivery is safe.
	// To disable in production, explicitly set FIXJOB_DIRECT_PROCESSING=false.
	return true
}

func (p *FixJobDirectProcessor) Run(ctx context.Context) {
	if p == nil || p.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.processOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

func (p *FixJobDirectProcessor) processOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-p.LockTTL)

	var claimed []models.FixJobRecord
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("is_processed = 0").
			Where("processing_status <> ?", models.FixJobProcessStatusDead).
			Where("(next_process_attempt_at IS NULL OR next_process_attempt_at <= ?)", now).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(p.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &p.WorkerID
			if err := tx.Model(&models.FixJobRecord{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at": claimed[i].LockedAt,
					"locked_by": claimed[i].LockedBy,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, rec := range claimed {
		procCtx := systemContext(ctx, rec.AccountId, rec.CorrelationId)

		markFixJobProcessing(procCtx, rec.ID)
		if err := workflow.ProcessFixJob(procCtx, p.DB, &rec); err != nil {
			markFixJobProcessFailure(procCtx, p.Logger, &rec, err)
			if p.Logger != nil {
				p.Logger.WithFields(logrus.Fields{
					"field":      "FixJobDirectProcessor",
					"account_id": rec.AccountId,
					"kind":       rec.Kind,
					"record_id":  rec.ID,
				}).Error("direct processing failed: " + err.Error())
			}
			continue
		}

		_ = p.DB.WithContext(procCtx).Model(&models.FixJobRecord{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"locked_at": nil,
				"locked_by": nil,
			}).Error
	}
}
