package models

import (
	"context"
	"time"

	"github.com/rankhive/seofix_backend/config"
	"gorm.io/gorm"
)

// Issue is a detected SEO defect on one storefront resource. Created by the
// auditor; the fix engine only moves its status, never deletes it.
type Issue struct {
	ID             int           `gorm:"primary_key" json:"id"`
	AccountId      string        `gorm:"index;size:64;not null" json:"account_id"`
	ConnectionId   int           `gorm:"index;not null" json:"connection_id"`
	ResourceType   string        `gorm:"size:50;not null" json:"resource_type"`
	ResourceId     string        `gorm:"size:128;not null;index:idx_issue_resource" json:"resource_id"`
	IssueType      string        `gorm:"size:100;not null;index:idx_issue_resource" json:"issue_type"`
	Severity       IssueSeverity `gorm:"size:20;not null" json:"severity"`
	Description    string        `gorm:"type:text" json:"description"`
	CurrentValue   string        `gorm:"type:text" json:"current_value"`
	SuggestedValue string        `gorm:"type:text" json:"suggested_value"`
	Status         IssueStatus   `gorm:"size:20;not null;index" json:"status"`
	DetectedAt     time.Time     `json:"detected_at"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetIssue(ctx context.Context, issueId int) (*Issue, error) {
	db := config.GetDB()
	var issue Issue
	if err := db.WithContext(ctx).Where("id = ?", issueId).Take(&issue).Error; err != nil {
		return nil, err
	}
	return &issue, nil
}

// SetIssueStatus flips the issue status inside the caller's transaction.
func SetIssueStatus(tx *gorm.DB, issueId int, status IssueStatus) error {
	return tx.Model(&Issue{}).
		Where("id = ?", issueId).
		Update("status", status).Error
}
