package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListingToVisibility(t *testing.T) {
	sub, cus := "S1", "C1"
	l := Listing{ID: "L1", OwnerID: "U1", IsVisible: true, StripeSubscriptionID: &sub, StripeCustomerID: &cus, Grandfathered: true}

	v := l.ToVisibility()
	assert.Equal(t, "L1", v.ID)
	assert.Equal(t, "U1", v.OwnerID)
	assert.Equal(t, "S1", v.SubscriptionID)
	assert.Equal(t, "C1", v.CustomerID)
	assert.True(t, v.IsVisible)
	assert.True(t, v.Grandfathered)

	unbound := Listing{ID: "L2"}
	assert.Empty(t, unbound.ToVisibility().SubscriptionID)
}

func TestBillingWebhookEventHandled(t *testing.T) {
	now := time.Now()

	assert.False(t, (&BillingWebhookEvent{}).Handled())
	assert.False(t, (&BillingWebhookEvent{ProcessedAt: &now}).Handled())
	assert.False(t, (&BillingWebhookEvent{ProcessedAt: &now, Outcome: OutcomeFailed}).Handled())
	assert.True(t, (&BillingWebhookEvent{ProcessedAt: &now, Outcome: "applied"}).Handled())
	assert.True(t, (&BillingWebhookEvent{ProcessedAt: &now, Outcome: "conflict"}).Handled())
}

func TestListingTableName(t *testing.T) {
	assert.Equal(t, "negocios", Listing{}.TableName())
}
