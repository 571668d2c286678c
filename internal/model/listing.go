package model

import (
	"time"

	"vempraca_backend/pkg/visibility"
)

// Listing is a business directory entry (Supabase table "negocios").
type Listing struct {
	ID                   string     `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerID              string     `json:"usuario_id" gorm:"column:usuario_id;type:uuid;not null;index"`
	Name                 string     `json:"nome" gorm:"column:nome"`
	Slug                 string     `json:"slug" gorm:"uniqueIndex"`
	Category             string     `json:"categoria" gorm:"column:categoria;index"`
	City                 string     `json:"cidade" gorm:"column:cidade;index"`
	IsVisible            bool       `json:"is_visible" gorm:"not null;default:false;index"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id" gorm:"index"`
	StripeCustomerID     *string    `json:"stripe_customer_id"`
	Grandfathered        bool       `json:"grandfathered" gorm:"not null;default:false"`
	VisibilityEventAt    *time.Time `json:"visibility_event_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (Listing) TableName() string {
	return "negocios"
}

// ToVisibility returns the reconciler view of the listing.
func (l *Listing) ToVisibility() *visibility.Listing {
	out := &visibility.Listing{
		ID:                l.ID,
		OwnerID:           l.OwnerID,
		IsVisible:         l.IsVisible,
		Grandfathered:     l.Grandfathered,
		VisibilityEventAt: l.VisibilityEventAt,
	}
	if l.StripeSubscriptionID != nil {
		out.SubscriptionID = *l.StripeSubscriptionID
	}
	if l.StripeCustomerID != nil {
		out.CustomerID = *l.StripeCustomerID
	}
	return out
}
