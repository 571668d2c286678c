package seed

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vempraca_backend/internal/model"
)

type demoListing struct {
	Name          string
	Category      string
	City          string
	Visible       bool
	Grandfathered bool
}

var demoListings = []demoListing{
	{Name: "Padaria Pão Quente", Category: "Padarias", City: "Belo Horizonte", Visible: true, Grandfathered: true},
	{Name: "Oficina do Zé", Category: "Automotivo", City: "Contagem"},
	{Name: "Salão Beleza Pura", Category: "Beleza", City: "Belo Horizonte"},
}

// SeedDemoListings creates a small set of listings owned by ownerID for local
// development. Existing slugs are left untouched.
func SeedDemoListings(db *gorm.DB, ownerID string) ([]model.Listing, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("owner id must be a uuid: %w", err)
	}

	created := make([]model.Listing, 0, len(demoListings))
	for _, d := range demoListings {
		listing := model.Listing{
			ID:            uuid.NewString(),
			OwnerID:       ownerID,
			Name:          d.Name,
			Slug:          slug.Make(d.Name + " " + d.City),
			Category:      d.Category,
			City:          d.City,
			IsVisible:     d.Visible,
			Grandfathered: d.Grandfathered,
		}

		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoNothing: true,
		}).Create(&listing)
		if res.Error != nil {
			log.Error().Err(res.Error).Str("slug", listing.Slug).Msg("Error creating demo listing")
			continue
		}
		if res.RowsAffected > 0 {
			created = append(created, listing)
		}
	}

	log.Info().Int("created", len(created)).Msg("Demo listings seeded")
	return created, nil
}
