package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rankhive/seofix_backend/config"
	"github.com/rankhive/seofix_backend/models"
	"gorm.io/gorm"
)

// ScriptBridgeAdapter serves sites integrated only through the injected
// script. The site exposes no API: reads come from the crawler's stored page
// snapshots, writes land in a redis patch queue the injected script polls and
// applies in the visitor's browser.
type ScriptBridgeAdapter struct {
	connectionId int
}

func NewScriptBridgeAdapter(connectionId int) *ScriptBridgeAdapter {
	return &ScriptBridgeAdapter{connectionId: connectionId}
}

func ScriptPatchQueueKey(connectionId int) string {
	return fmt.Sprintf("scriptbridge:patches:%d", connectionId)
}

type scriptPatch struct {
	ResourceType string            `json:"resource_type"`
	ResourceId   string            `json:"resource_id"`
	Changes      map[string]string `json:"changes"`
	IssuedAt     time.Time         `json:"issued_at"`
}

func (a *ScriptBridgeAdapter) ReadResource(ctx context.Context, ref ResourceRef, fields []string) (Fields, error) {
	snap, err := models.GetPageSnapshot(ctx, a.connectionId, ref.Type, ref.Id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// No crawl data yet. Retryable so the fix can run after the next
			// crawl pass instead of failing terminally.
			return nil, &Error{Provider: "script", Retryable: true, Message: "no page snapshot for " + ref.String()}
		}
		return nil, err
	}

	live := map[string]string{}
	if len(snap.FieldsJSON) > 0 {
		if err := json.Unmarshal(snap.FieldsJSON, &live); err != nil {
			return nil, &Error{Provider: "script", Message: "corrupt page snapshot: " + err.Error()}
		}
	}

	out := Fields{}
	for _, f := range fields {
		out[f] = live[f]
	}
	return out, nil
}

// CountResources counts the crawler's stored snapshots; for a script-bridged
// site that is the full set of pages we know about.
func (a *ScriptBridgeAdapter) CountResources(ctx context.Context, resourceType string) (int, error) {
	count, err := models.CountPageSnapshots(ctx, a.connectionId, resourceType)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (a *ScriptBridgeAdapter) WriteResource(ctx context.Context, ref ResourceRef, changes Fields) error {
	patch := scriptPatch{
		ResourceType: ref.Type,
		ResourceId:   ref.Id,
		Changes:      changes,
		IssuedAt:     time.Now().UTC(),
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	if err := config.PushRedisList(ctx, ScriptPatchQueueKey(a.connectionId), string(payload)); err != nil {
		return newTransportError("script", err)
	}
	return nil
}
