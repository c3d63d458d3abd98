package main

import (
	"context"
	"log"

	"github.com/rankhive/seofix_backend/config"
	"github.com/rankhive/seofix_backend/utils"
	"github.com/rankhive/seofix_backend/workflow"
	"github.com/sirupsen/logrus"
)

// Scheduled ops job: clears before-state snapshots of fixes whose rollback
// window has closed. Run from Cloud Scheduler / cron; exits when done.
func main() {
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		log.Fatal("database is not available")
	}
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// Purge runs across all accounts.
	ctx := utils.SetSkipAccountScopeInContext(context.Background(), true)

	purged, err := workflow.PurgeExpiredSnapshots(ctx, db)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "snapshot-purge"}).Fatal("purge failed: " + err.Error())
	}
	logger.WithFields(logrus.Fields{
		"field":  "snapshot-purge",
		"purged": purged,
	}).Info("expired before-state snapshots cleared")
}
