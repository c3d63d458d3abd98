package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rankhive/seofix_backend/config"
	"github.com/rankhive/seofix_backend/models"
	"github.com/rankhive/seofix_backend/utils"
	"github.com/rankhive/seofix_backend/workflow"
	"github.com/sirupsen/logrus"
)

type pubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// fixJobPubSubHandler consumes push deliveries of fix jobs. Malformed
// payloads are acked and dropped; retryable failures return non-2xx so
// Pub/Sub redelivers.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "pubsub.go", "PubSubPushHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		var envelope pubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "pubsub.go", "PubSubPushHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var m config.FixJobMessage
		if err := json.Unmarshal(envelope.Message.Data, &m); err != nil {
			config.LogError(logger, "pubsub.go", "PubSubPushHandler", "Unmarshal fix job message", envelope.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}

		// Basic validation to avoid retry loops on poisoned messages.
		if m.ID <= 0 || m.AccountId == "" || m.Kind == "" {
			config.LogError(logger, "pubsub.go", "PubSubPushHandler", "Invalid fix job message (missing required fields)", m, fmt.Errorf("id/account_id/kind required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationID := m.CorrelationId
		if correlationID == "" {
			correlationID = envelope.Message.ID
		}

		ctx := utils.SetAccountIdInContext(c.Request.Context(), m.AccountId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, correlationID)

		db := config.GetDB()
		var rec models.FixJobRecord
		if err := db.WithContext(ctx).Where("id = ?", m.ID).Take(&rec).Error; err != nil {
			config.LogError(logger, "pubsub.go", "PubSubPushHandler", "load job record", m, err)
			// Row missing for this account: drop, nothing to resume.
			c.Status(http.StatusNoContent)
			return
		}
		if rec.IsProcessed || rec.ProcessingStatus == models.FixJobProcessStatusDead {
			c.Status(http.StatusNoContent)
			return
		}

		markFixJobProcessing(ctx, rec.ID)
		if err := workflow.ProcessFixJob(ctx, db, &rec); err != nil {
			dead := markFixJobProcessFailure(ctx, logger, &rec, err)
			logger.WithFields(logrus.Fields{
				"field":          "PubSubPushHandler",
				"account_id":     m.AccountId,
				"kind":           m.Kind,
				"record_id":      m.ID,
				"message_id":     envelope.Message.ID,
				"correlation_id": correlationID,
			}).Error("fix job processing failed: " + err.Error())
			if dead {
				// Terminal: ack so Pub/Sub stops redelivering.
				c.Status(http.StatusNoContent)
				return
			}
			// Non-2xx tells Pub/Sub to retry (and potentially route to DLQ).
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func systemContext(ctx context.Context, accountId string, correlationId string) context.Context {
	ctx = utils.SetAccountIdInContext(ctx, accountId)
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "System")
	return utils.SetCorrelationIdInContext(ctx, correlationId)
}
