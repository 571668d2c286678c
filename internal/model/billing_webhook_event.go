package model

import (
	"time"

	"gorm.io/datatypes"
)

// BillingWebhookEvent is one provider webhook delivery, deduplicated by
// (provider, provider_event_id).
type BillingWebhookEvent struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:varchar(20);not null;uniqueIndex:ux_billing_webhook_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:varchar(191);not null;uniqueIndex:ux_billing_webhook_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:varchar(100);not null;index"`
	Payload         datatypes.JSON `json:"payload"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	Outcome         string         `json:"outcome" gorm:"type:varchar(32)"`
	ProcessingError string         `json:"processing_error" gorm:"type:text"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// OutcomeFailed marks deliveries that must be processed again on redelivery.
const OutcomeFailed = "failed"

// Handled reports whether an earlier delivery reached a final outcome.
func (e *BillingWebhookEvent) Handled() bool {
	return e.ProcessedAt != nil && e.Outcome != "" && e.Outcome != OutcomeFailed
}
