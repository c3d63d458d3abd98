package workflow

import (
	"context"
	"time"

	"github.com/rankhive/seofix_backend/models"
	"gorm.io/gorm"
)

// UsageAdmission is the answer to "how many of these may I apply this month".
type UsageAdmission struct {
	Allowed   int `json:"allowed"`
	Current   int `json:"current"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// CanApplyFixes reports how many of the requested applications the account's
// monthly quota can still admit. Advisory only; the atomic reservation in
// ReserveUsage is what actually enforces the ceiling.
func CanApplyFixes(ctx context.Context, db *gorm.DB, accountId string, requested int) (*UsageAdmission, error) {
	month := models.MonthKey(time.Now())
	usage, err := models.GetOrCreateUsage(ctx, db, accountId, month)
	if err != nil {
		return nil, err
	}
	admission := admissionFor(usage, requested)
	return &admission, nil
}

func admissionFor(usage *models.UsageRecord, requested int) UsageAdmission {
	remaining := usage.MonthlyLimit - usage.FixesApplied
	if remaining < 0 {
		remaining = 0
	}
	allowed := requested
	if allowed > remaining {
		allowed = remaining
	}
	return UsageAdmission{
		Allowed:   allowed,
		Current:   usage.FixesApplied,
		Limit:     usage.MonthlyLimit,
		Remaining: remaining,
	}
}

// reserveUsage maps the storage-level ceiling failure into the domain error.
func reserveUsage(ctx context.Context, tx *gorm.DB, accountId string) error {
	month := models.MonthKey(time.Now())
	if err := models.ReserveUsage(ctx, tx, accountId, month); err != nil {
		if err == models.ErrUsageLimitReached {
			return NewError(CodeQuotaExceeded, "monthly fix limit reached")
		}
		return err
	}
	return nil
}

func releaseUsage(ctx context.Context, tx *gorm.DB, accountId string) error {
	return models.ReleaseUsage(ctx, tx, accountId, models.MonthKey(time.Now()))
}
