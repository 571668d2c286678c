package database

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"vempraca_backend/internal/model"
	"vempraca_backend/pkg/visibility"
)

// ListingStore implements visibility.Store over the negocios table.
type ListingStore struct {
	db *gorm.DB
}

func NewListingStore(db *gorm.DB) *ListingStore {
	return &ListingStore{db: db}
}

func (s *ListingStore) FindListing(ctx context.Context, id string) (*visibility.Listing, error) {
	var listing model.Listing
	if err := s.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, visibility.ErrListingNotFound
		}
		return nil, err
	}
	return listing.ToVisibility(), nil
}

// ApplyVisibility writes the update in a single statement keyed by id.
func (s *ListingStore) ApplyVisibility(ctx context.Context, id string, u visibility.Update) error {
	updates := map[string]interface{}{
		"is_visible": u.Visible,
	}
	if u.SubscriptionID != "" {
		updates["stripe_subscription_id"] = u.SubscriptionID
	}
	if u.CustomerID != "" {
		updates["stripe_customer_id"] = u.CustomerID
	}

	if u.EventAt != nil {
		// GREATEST skips NULL in Postgres, so an unset stamp takes the event time.
		updates["visibility_event_at"] = gorm.Expr("GREATEST(visibility_event_at, ?)", *u.EventAt)
	}

	q := s.db.WithContext(ctx).Model(&model.Listing{}).Where("id = ?", id)
	if u.NotBefore != nil {
		q = q.Where("visibility_event_at IS NULL OR visibility_event_at <= ?", *u.NotBefore)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Nothing matched: either the row is gone or a newer event won.
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Listing{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return visibility.ErrListingNotFound
	}
	if u.NotBefore != nil {
		return visibility.ErrStaleEvent
	}
	return nil
}

// ListBound returns non-grandfathered listings with a subscription, ordered by
// id, starting after afterID.
func (s *ListingStore) ListBound(ctx context.Context, afterID string, limit int) ([]visibility.Listing, error) {
	var rows []model.Listing
	q := s.db.WithContext(ctx).
		Where("stripe_subscription_id IS NOT NULL AND stripe_subscription_id <> ''").
		Where("grandfathered = ?", false).
		Order("id ASC").
		Limit(limit)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]visibility.Listing, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToVisibility())
	}
	return out, nil
}
