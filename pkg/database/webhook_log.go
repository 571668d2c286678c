package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vempraca_backend/internal/model"
)

// WebhookLog persists webhook deliveries for redelivery detection and audit.
type WebhookLog struct {
	db *gorm.DB
}

func NewWebhookLog(db *gorm.DB) *WebhookLog {
	return &WebhookLog{db: db}
}

// Record stores a delivery unless one with the same event id exists. It
// returns the stored row and whether this call created it.
func (l *WebhookLog) Record(ctx context.Context, provider, eventID, eventType string, payload []byte) (*model.BillingWebhookEvent, bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		sum := sha256.Sum256(payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &model.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       eventType,
		Payload:         datatypes.JSON(payload),
	}
	tx := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return nil, false, tx.Error
	}
	created := tx.RowsAffected > 0

	var stored model.BillingWebhookEvent
	if err := l.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		First(&stored).Error; err != nil {
		return nil, false, err
	}
	return &stored, created, nil
}

// MarkProcessed stores the outcome of a delivery.
func (l *WebhookLog) MarkProcessed(ctx context.Context, id uint, outcome string, processingErr error) error {
	now := time.Now()
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return l.db.WithContext(ctx).Model(&model.BillingWebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_at":     &now,
		"outcome":          outcome,
		"processing_error": errMsg,
	}).Error
}
