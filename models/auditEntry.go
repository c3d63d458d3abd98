package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rankhive/seofix_backend/config"
	"github.com/rankhive/seofix_backend/utils"
	"gorm.io/gorm"
)

// AuditEntry is the append-only compliance trail: one row per meaningful
// lifecycle transition. Never updated, never deleted.
type AuditEntry struct {
	ID           int         `gorm:"primary_key" json:"id"`
	AccountId    string      `gorm:"index;size:64;not null" json:"account_id"`
	ConnectionId int         `gorm:"index;not null" json:"connection_id"`
	Action       AuditAction `gorm:"size:40;not null;index" json:"action"`
	ResourceRef  string      `gorm:"size:255;index" json:"resource_ref"`
	DetailsJSON  []byte      `gorm:"type:json" json:"details"`
	UserId       int         `gorm:"index" json:"user_id"`
	UserName     string      `gorm:"size:100" json:"user_name"`
	CreatedAt    time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
}

// CreateAuditEntry appends one entry inside the caller's transaction. Actor
// identity comes from context; workers set the system user before processing.
func CreateAuditEntry(tx *gorm.DB, connectionId int, action AuditAction, resourceRef string, details interface{}) error {
	ctx := tx.Statement.Context

	accountId, ok := utils.GetAccountIdFromContext(ctx)
	if !ok || accountId == "" {
		return errors.New("account id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok || userName == "" {
		userName = "System"
	}

	var detailsJSON []byte
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return err
		}
		detailsJSON = b
	}

	entry := AuditEntry{
		AccountId:    accountId,
		ConnectionId: connectionId,
		Action:       action,
		ResourceRef:  resourceRef,
		DetailsJSON:  detailsJSON,
		UserId:       userId,
		UserName:     userName,
	}
	return tx.Create(&entry).Error
}

type AuditEntryFilter struct {
	ConnectionId int
	Action       AuditAction
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// QueryAuditEntries returns a filtered page, newest first. Account scoping
// comes from context via the account guard.
func QueryAuditEntries(ctx context.Context, filter AuditEntryFilter) ([]*AuditEntry, int64, error) {
	db := config.GetDB()

	q := db.WithContext(ctx).Model(&AuditEntry{})
	if filter.ConnectionId > 0 {
		q = q.Where("connection_id = ?", filter.ConnectionId)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", filter.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var entries []*AuditEntry
	if err := q.Order("id DESC").Limit(limit).Offset(filter.Offset).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
