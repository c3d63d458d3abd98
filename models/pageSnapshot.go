package models

import (
	"context"
	"time"

	"github.com/rankhive/seofix_backend/config"
)

// PageSnapshot is the crawler's latest view of a script-bridged page. The
// injected-script adapter reads from here because such sites expose no API.
type PageSnapshot struct {
	ID           int       `gorm:"primary_key" json:"id"`
	AccountId    string    `gorm:"size:64;not null;uniqueIndex:idx_page_snapshot,priority:1" json:"account_id"`
	ConnectionId int       `gorm:"not null;uniqueIndex:idx_page_snapshot,priority:2" json:"connection_id"`
	ResourceType string    `gorm:"size:50;not null;uniqueIndex:idx_page_snapshot,priority:3" json:"resource_type"`
	ResourceId   string    `gorm:"size:128;not null;uniqueIndex:idx_page_snapshot,priority:4" json:"resource_id"`
	FieldsJSON   []byte    `gorm:"type:json" json:"fields"`
	CrawledAt    time.Time `gorm:"index" json:"crawled_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetPageSnapshot(ctx context.Context, connectionId int, resourceType string, resourceId string) (*PageSnapshot, error) {
	db := config.GetDB()
	var snap PageSnapshot
	err := db.WithContext(ctx).
		Where("connection_id = ? AND resource_type = ? AND resource_id = ?", connectionId, resourceType, resourceId).
		Take(&snap).Error
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func CountPageSnapshots(ctx context.Context, connectionId int, resourceType string) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&PageSnapshot{}).
		Where("connection_id = ? AND resource_type = ?", connectionId, resourceType).
		Count(&count).Error
	return count, err
}
