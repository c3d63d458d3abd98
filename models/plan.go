package models

import (
	"context"
	"time"

	"github.com/rankhive/seofix_backend/config"
)

// Plan groups fixes so one approval authorizes all of them. Membership is the
// fixes' plan_id foreign key; the plan embeds no object graph.
type Plan struct {
	ID           int        `gorm:"primary_key" json:"id"`
	AccountId    string     `gorm:"index;size:64;not null" json:"account_id"`
	ConnectionId int        `gorm:"index;not null" json:"connection_id"`
	Status       PlanStatus `gorm:"size:20;not null;index" json:"status"`
	FixCount     int        `gorm:"not null;default:0" json:"fix_count"`
	ApprovedAt   *time.Time `json:"approved_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetPlan(ctx context.Context, planId int) (*Plan, error) {
	db := config.GetDB()
	var plan Plan
	if err := db.WithContext(ctx).Where("id = ?", planId).Take(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}
