package models

import (
	"context"
	"time"

	"github.com/rankhive/seofix_backend/config"
	"gorm.io/gorm"
)

// PlatformConnection binds an account to one storefront. OAuth/token
// acquisition happens outside this service; we only hold the secret ref.
type PlatformConnection struct {
	ID            int              `gorm:"primary_key" json:"id"`
	AccountId     string           `gorm:"index;size:64;not null" json:"account_id"`
	Provider      PlatformProvider `gorm:"index;size:20;not null" json:"provider"`
	Status        ConnectionStatus `gorm:"size:20;not null" json:"status"`
	AuthType      string           `gorm:"size:20" json:"auth_type"`
	AuthSecretRef string           `gorm:"type:text" json:"auth_secret_ref"`
	StoreDomain   string           `gorm:"size:255" json:"store_domain"`
	StoreName     string           `gorm:"size:255" json:"store_name"`
	ExecutionMode ExecutionMode    `gorm:"size:20;not null;default:APPROVE" json:"execution_mode"`
	SettingsJSON  []byte           `gorm:"type:json" json:"settings"`
	LastAuditAt   *time.Time       `json:"last_audit_at"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// SetConnectionExecutionMode changes how future fixes on this connection are
// admitted. In-flight fixes keep the mode they were created under.
func SetConnectionExecutionMode(ctx context.Context, connectionId int, mode ExecutionMode) error {
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&PlatformConnection{}).
		Where("id = ?", connectionId).
		Update("execution_mode", mode)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func GetConnection(ctx context.Context, connectionId int) (*PlatformConnection, error) {
	db := config.GetDB()
	var conn PlatformConnection
	if err := db.WithContext(ctx).Where("id = ?", connectionId).Take(&conn).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}
