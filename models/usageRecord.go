package models

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rankhive/seofix_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageRecord is one row per account per calendar month. fixes_applied only
// moves forward except through the reservation release in applyFix and the
// audited admin correction.
type UsageRecord struct {
	ID           int       `gorm:"primary_key" json:"id"`
	AccountId    string    `gorm:"size:64;not null;uniqueIndex:idx_usage_month,priority:1" json:"account_id"`
	Month        string    `gorm:"size:7;not null;uniqueIndex:idx_usage_month,priority:2" json:"month"`
	FixesApplied int       `gorm:"not null;default:0" json:"fixes_applied"`
	MonthlyLimit int       `gorm:"not null" json:"limit"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// MonthKey returns the calendar-month window key, e.g. "2026-09". The window
// resets at the UTC month boundary with no carryover.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func DefaultMonthlyFixLimit() int {
	v := strings.TrimSpace(os.Getenv("DEFAULT_MONTHLY_FIX_LIMIT"))
	if v == "" {
		return 50
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 50
	}
	return n
}

// GetOrCreateUsage returns the account's row for the month, creating it with
// the plan-derived limit when absent. Concurrent creates collapse onto the
// unique (account_id, month) index.
func GetOrCreateUsage(ctx context.Context, tx *gorm.DB, accountId string, month string) (*UsageRecord, error) {
	record := UsageRecord{
		AccountId:    accountId,
		Month:        month,
		MonthlyLimit: DefaultMonthlyFixLimit(),
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error; err != nil {
		return nil, err
	}
	var out UsageRecord
	if err := tx.WithContext(ctx).
		Where("account_id = ? AND month = ?", accountId, month).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

var ErrUsageLimitReached = errors.New("usage limit reached")

// ReserveUsage consumes one unit with the ceiling enforced in SQL. A plain
// read-then-write here could overshoot under concurrent applies.
func ReserveUsage(ctx context.Context, tx *gorm.DB, accountId string, month string) error {
	if _, err := GetOrCreateUsage(ctx, tx, accountId, month); err != nil {
		return err
	}
	res := tx.WithContext(ctx).Model(&UsageRecord{}).
		Where("account_id = ? AND month = ? AND fixes_applied < monthly_limit", accountId, month).
		Update("fixes_applied", gorm.Expr("fixes_applied + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUsageLimitReached
	}
	return nil
}

// ReleaseUsage returns a reservation after a failed platform write. This is
// part of the reservation protocol, not an admin correction.
func ReleaseUsage(ctx context.Context, tx *gorm.DB, accountId string, month string) error {
	return tx.WithContext(ctx).Model(&UsageRecord{}).
		Where("account_id = ? AND month = ? AND fixes_applied > 0", accountId, month).
		Update("fixes_applied", gorm.Expr("fixes_applied - 1")).Error
}

// CorrectUsage sets the counter to an explicit value (admin only, audited by
// the caller).
func CorrectUsage(ctx context.Context, tx *gorm.DB, accountId string, month string, fixesApplied int) error {
	if fixesApplied < 0 {
		return errors.New("fixes_applied cannot be negative")
	}
	if _, err := GetOrCreateUsage(ctx, tx, accountId, month); err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&UsageRecord{}).
		Where("account_id = ? AND month = ?", accountId, month).
		Update("fixes_applied", fixesApplied).Error
}

// SetMonthlyLimit updates the ceiling for one month, e.g. after a plan
// upgrade. Already-applied fixes above the new limit are left as-is.
func SetMonthlyLimit(ctx context.Context, tx *gorm.DB, accountId string, month string, limit int) error {
	if limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if _, err := GetOrCreateUsage(ctx, tx, accountId, month); err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&UsageRecord{}).
		Where("account_id = ? AND month = ?", accountId, month).
		Update("monthly_limit", limit).Error
}

func GetUsage(ctx context.Context, accountId string, month string) (*UsageRecord, error) {
	db := config.GetDB()
	return GetOrCreateUsage(ctx, db, accountId, month)
}
