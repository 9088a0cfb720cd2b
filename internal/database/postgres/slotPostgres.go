package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/dealslot/internal/entity"
)

type slotRepository struct {
	db *sql.DB
}

func NewSlotRepository(db *sql.DB) SlotRepository {
	return &slotRepository{db: db}
}

const slotColumns = `
	id, offer_id, starts_at, ends_at, qty_total, qty_remaining,
	mode, drip_every_minutes, drip_qty, drip_released, created_at, updated_at
`

func scanSlot(row interface{ Scan(...interface{}) error }) (*entity.OfferSlot, error) {
	var slot entity.OfferSlot
	err := row.Scan(
		&slot.ID,
		&slot.OfferID,
		&slot.StartsAt,
		&slot.EndsAt,
		&slot.QtyTotal,
		&slot.QtyRemaining,
		&slot.Mode,
		&slot.DripEveryMinutes,
		&slot.DripQty,
		&slot.DripReleased,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *slotRepository) Create(ctx context.Context, slot *entity.OfferSlot) error {
	query := `
		INSERT INTO offer_slots (
			offer_id, starts_at, ends_at, qty_total, qty_remaining,
			mode, drip_every_minutes, drip_qty, drip_released, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		slot.OfferID,
		slot.StartsAt,
		slot.EndsAt,
		slot.QtyTotal,
		slot.QtyRemaining,
		slot.Mode,
		slot.DripEveryMinutes,
		slot.DripQty,
		slot.DripReleased,
		now,
		now,
	).Scan(&slot.ID)

	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}

	slot.CreatedAt = now
	slot.UpdatedAt = now
	return nil
}

// CreateBatch inserts the slots of one bulk pattern expansion in a single
// transaction so a partial pattern never becomes visible.
func (r *slotRepository) CreateBatch(ctx context.Context, slots []*entity.OfferSlot) error {
	if len(slots) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO offer_slots (
			offer_id, starts_at, ends_at, qty_total, qty_remaining,
			mode, drip_every_minutes, drip_qty, drip_released, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	now := time.Now()
	for _, slot := range slots {
		err := tx.QueryRowContext(ctx, query,
			slot.OfferID,
			slot.StartsAt,
			slot.EndsAt,
			slot.QtyTotal,
			slot.QtyRemaining,
			slot.Mode,
			slot.DripEveryMinutes,
			slot.DripQty,
			slot.DripReleased,
			now,
			now,
		).Scan(&slot.ID)
		if err != nil {
			return fmt.Errorf("failed to create slot in batch: %w", err)
		}
		slot.CreatedAt = now
		slot.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

func (r *slotRepository) GetByID(ctx context.Context, id int64) (*entity.OfferSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM offer_slots WHERE id = $1`

	slot, err := scanSlot(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %v", err)
	}
	return slot, nil
}

func (r *slotRepository) GetByOfferID(ctx context.Context, offerID int64) ([]*entity.OfferSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM offer_slots WHERE offer_id = $1 ORDER BY starts_at ASC`

	rows, err := r.db.QueryContext(ctx, query, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots by offer: %v", err)
	}
	defer rows.Close()

	var slots []*entity.OfferSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %v", err)
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slots: %v", err)
	}
	return slots, nil
}

func (r *slotRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM offer_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrSlotNotFound
	}
	return nil
}

// DecrementQty is the single choke-point for consuming inventory: the
// decrement succeeds only while a unit remains, so concurrent callers can
// never both take the last one.
func (r *slotRepository) DecrementQty(ctx context.Context, slotID int64) error {
	query := `
		UPDATE offer_slots
		SET qty_remaining = qty_remaining - 1, updated_at = $2
		WHERE id = $1 AND qty_remaining > 0
	`

	result, err := r.db.ExecContext(ctx, query, slotID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to decrement slot quantity: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return entity.ErrSoldOut
	}
	return nil
}

// IncrementQty returns one unit, clamped at qty_total.
func (r *slotRepository) IncrementQty(ctx context.Context, slotID int64) error {
	query := `
		UPDATE offer_slots
		SET qty_remaining = qty_remaining + 1, updated_at = $2
		WHERE id = $1 AND qty_remaining < qty_total
	`

	result, err := r.db.ExecContext(ctx, query, slotID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to increment slot quantity: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return entity.ErrConcurrentUpdate
	}
	return nil
}

func (r *slotRepository) FindLiveSlot(ctx context.Context, offerID int64, now time.Time) (*entity.OfferSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM offer_slots
		WHERE offer_id = $1 AND starts_at <= $2 AND ends_at > $2 AND qty_remaining > 0
		ORDER BY ends_at ASC
		LIMIT 1
	`

	slot, err := scanSlot(r.db.QueryRowContext(ctx, query, offerID, now))
	if err == sql.ErrNoRows {
		return nil, entity.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find live slot: %v", err)
	}
	return slot, nil
}

// GetDripSlots returns live drip slots that still have quantity to release.
func (r *slotRepository) GetDripSlots(ctx context.Context, now time.Time) ([]*entity.OfferSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM offer_slots
		WHERE mode = 'drip' AND starts_at <= $1 AND ends_at > $1 AND drip_released < qty_total
		ORDER BY starts_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query drip slots: %v", err)
	}
	defer rows.Close()

	var slots []*entity.OfferSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan drip slot: %v", err)
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drip slots: %v", err)
	}
	return slots, nil
}

// ReleaseDrip adds delta units and advances drip_released. The guard on the
// previous drip_released value makes concurrent tickers release each
// increment exactly once.
func (r *slotRepository) ReleaseDrip(ctx context.Context, slotID int64, delta, prevReleased int) error {
	query := `
		UPDATE offer_slots
		SET qty_remaining = LEAST(qty_remaining + $2, qty_total),
		    drip_released = drip_released + $2,
		    updated_at = $4
		WHERE id = $1 AND drip_released = $3 AND drip_released + $2 <= qty_total
	`

	result, err := r.db.ExecContext(ctx, query, slotID, delta, prevReleased, time.Now())
	if err != nil {
		return fmt.Errorf("failed to release drip quantity: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return entity.ErrConcurrentUpdate
	}
	return nil
}
