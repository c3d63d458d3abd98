package models

import (
	"log"

	"github.com/rankhive/seofix_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&PlatformConnection{},
		&Issue{}, &Fix{}, &Plan{},
		&UsageRecord{},
		&AuditEntry{},
		&PageSnapshot{},
		&FixJobRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
