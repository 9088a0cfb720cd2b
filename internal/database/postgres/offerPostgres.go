package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/dealslot/internal/entity"
)

// offerRepository exposes read-only catalog lookups. Offer and venue content
// is owned by the CMS side of the platform; the engine only reads policy.
type offerRepository struct {
	db *sql.DB
}

func NewOfferRepository(db *sql.DB) OfferRepository {
	return &offerRepository{db: db}
}

func (r *offerRepository) GetByID(ctx context.Context, id int64) (*entity.Offer, error) {
	query := `
		SELECT id, venue_id, title, status, per_user_limit,
		       cooldown_minutes, claim_limit_global, created_at
		FROM offers
		WHERE id = $1
	`

	var offer entity.Offer
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&offer.ID,
		&offer.VenueID,
		&offer.Title,
		&offer.Status,
		&offer.PerUserLimit,
		&offer.CooldownMinutes,
		&offer.ClaimLimitGlobal,
		&offer.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, entity.ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offer: %v", err)
	}
	return &offer, nil
}

func (r *offerRepository) GetVenue(ctx context.Context, id int64) (*entity.Venue, error) {
	query := `SELECT id, name, address FROM venues WHERE id = $1`

	var venue entity.Venue
	err := r.db.QueryRowContext(ctx, query, id).Scan(&venue.ID, &venue.Name, &venue.Address)
	if err == sql.ErrNoRows {
		return nil, entity.ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get venue: %v", err)
	}
	return &venue, nil
}
