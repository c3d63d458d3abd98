package worker

import (
	"context"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/rankhive/seofix_backend/config"
	"github.com/rankhive/seofix_backend/models"
	"github.com/rankhive/seofix_backend/workflow"
	"github.com/sirupsen/logrus"
)

type fixJobRetryConfig struct {
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func getFixJobRetryConfig() fixJobRetryConfig {
	cfg := fixJobRetryConfig{
		maxAttempts: 10,
		baseBackoff: 5 * time.Second,
		maxBackoff:  10 * time.Minute,
	}

	if v := os.Getenv("FIXJOB_PROCESS_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxAttempts = n
		}
	}
	if v := os.Getenv("FIXJOB_PROCESS_BASE_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.baseBackoff = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("FIXJOB_PROCESS_MAX_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxBackoff = time.Duration(n) * time.Second
		}
	}

	return cfg
}

func fixJobProcessBackoff(attempt int, cfg fixJobRetryConfig) time.Duration {
	if attempt <= 0 {
		return cfg.baseBackoff
	}
	// base * 2^(attempt-1), capped.
	exp := float64(attempt - 1)
	delay := time.Duration(float64(cfg.baseBackoff) * math.Pow(2, exp))
	if delay > cfg.maxBackoff {
		return cfg.maxBackoff
	}
	return delay
}

func markFixJobProcessing(ctx context.Context, id int) {
	if id <= 0 {
		return
	}
	db := config.GetDB()
	_ = db.WithContext(ctx).
		Model(&models.FixJobRecord{}).
		Where("id = ? AND processing_status <> ?", id, models.FixJobProcessStatusDead).
		Updates(map[string]interface{}{
			"processing_status": models.FixJobProcessStatusProcessing,
		}).Error
}

// markFixJobProcessFailure returns whether the record is now DEAD.
func markFixJobProcessFailure(ctx context.Context, logger *logrus.Logger, rec *models.FixJobRecord, err error) bool {
	if rec == nil || rec.ID <= 0 {
		return false
	}

	cfg := getFixJobRetryConfig()
	now := time.Now().UTC()
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	db := config.GetDB()

	// Fetch current attempts for stable backoff and DEAD cutoff.
	var current models.FixJobRecord
	if qerr := db.WithContext(ctx).
		Select("id,account_id,kind,fix_id,plan_id,process_attempts").
		Where("id = ?", rec.ID).
		First(&current).Error; qerr != nil {
		// Still try to record the error even if we can't read attempts.
		_ = db.WithContext(ctx).Model(&models.FixJobRecord{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"last_process_error": &errMsg,
				"locked_at":          nil,
				"locked_by":          nil,
				"processing_status":  models.FixJobProcessStatusFailed,
			}).Error
		return false
	}

	attempts := current.ProcessAttempts + 1
	status := models.FixJobProcessStatusFailed

	var nextAttemptAt *time.Time
	if attempts >= cfg.maxAttempts {
		status = models.FixJobProcessStatusDead
		nextAttemptAt = nil
	} else {
		t := now.Add(fixJobProcessBackoff(attempts, cfg))
		nextAttemptAt = &t
	}

	_ = db.WithContext(ctx).Model(&models.FixJobRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"last_process_error":      &errMsg,
			"process_attempts":        attempts,
			"next_process_attempt_at": nextAttemptAt,
			"processing_status":       status,
			"locked_at":               nil,
			"locked_by":               nil,
		}).Error

	if status == models.FixJobProcessStatusDead {
		// The job will never run again; the fix must not stay pending.
		if serr := workflow.SettleDeadFixJob(ctx, db, &current, errMsg); serr != nil && logger != nil {
			logger.WithFields(logrus.Fields{
				"field":     "FixJobProcessing",
				"record_id": current.ID,
			}).Error("failed to settle dead fix job: " + serr.Error())
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":             "FixJobProcessing",
			"account_id":        current.AccountId,
			"kind":              current.Kind,
			"record_id":         current.ID,
			"processing_status": status,
			"process_attempts":  attempts,
		}).Error("fix job processing failed: " + errMsg)
	}

	return status == models.FixJobProcessStatusDead
}
