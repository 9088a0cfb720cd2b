package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/dealslot/internal/entity"
)

type claimRepository struct {
	db *sql.DB
}

func NewClaimRepository(db *sql.DB) ClaimRepository {
	return &claimRepository{db: db}
}

const claimColumns = `
	id, offer_id, slot_id, user_id, status, six_code, qr_token,
	reserved_at, expires_at, redeemed_at, staff_id, created_at, updated_at
`

func scanClaim(row interface{ Scan(...interface{}) error }) (*entity.Claim, error) {
	var claim entity.Claim
	err := row.Scan(
		&claim.ID,
		&claim.OfferID,
		&claim.SlotID,
		&claim.UserID,
		&claim.Status,
		&claim.SixCode,
		&claim.QRToken,
		&claim.ReservedAt,
		&claim.ExpiresAt,
		&claim.RedeemedAt,
		&claim.StaffID,
		&claim.CreatedAt,
		&claim.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// Reserve performs the central atomic unit of the engine: a conditional
// decrement of the slot's remaining quantity plus the claim insert, in one
// transaction. Read-then-write is not allowed here; the decrement's
// affected-row count decides the race.
func (r *claimRepository) Reserve(ctx context.Context, claim *entity.Claim) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	now := time.Now()

	result, err := tx.ExecContext(ctx, `
		UPDATE offer_slots
		SET qty_remaining = qty_remaining - 1, updated_at = $2
		WHERE id = $1 AND qty_remaining > 0
	`, claim.SlotID, now)
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

	query := `
		INSERT INTO claims (
			offer_id, slot_id, user_id, status, six_code, qr_token,
			reserved_at, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err = tx.QueryRowContext(ctx, query,
		claim.OfferID,
		claim.SlotID,
		claim.UserID,
		claim.Status,
		claim.SixCode,
		claim.QRToken,
		claim.ReservedAt,
		claim.ExpiresAt,
		now,
		now,
	).Scan(&claim.ID)
	if err != nil {
		return fmt.Errorf("failed to create claim: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	claim.CreatedAt = now
	claim.UpdatedAt = now
	return nil
}

func (r *claimRepository) GetByID(ctx context.Context, id int64) (*entity.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`

	claim, err := scanClaim(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %v", err)
	}
	return claim, nil
}

func (r *claimRepository) GetByUserID(ctx context.Context, userID int64) ([]*entity.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE user_id = $1 ORDER BY reserved_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims by user: %v", err)
	}
	defer rows.Close()

	var claims []*entity.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %v", err)
		}
		claims = append(claims, claim)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claims: %v", err)
	}
	return claims, nil
}

// FindByCredential matches a six-code or QR token. Reserved claims win over
// historical terminal ones so the verifier can tell "already used" apart
// from "not found".
func (r *claimRepository) FindByCredential(ctx context.Context, codeOrToken string) (*entity.Claim, error) {
	query := `
		SELECT ` + claimColumns + `
		FROM claims
		WHERE six_code = $1 OR qr_token = $1
		ORDER BY (status = 'reserved') DESC, reserved_at DESC
		LIMIT 1
	`

	claim, err := scanClaim(r.db.QueryRowContext(ctx, query, codeOrToken))
	if err == sql.ErrNoRows {
		return nil, entity.ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find claim by credential: %v", err)
	}
	return claim, nil
}

// Redeem is a terminal transition guarded by a status-equality check.
func (r *claimRepository) Redeem(ctx context.Context, id int64, staffID int64, at time.Time) error {
	query := `
		UPDATE claims
		SET status = $2, redeemed_at = $3, staff_id = $4, updated_at = $3
		WHERE id = $1 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		id, entity.ClaimStatusRedeemed, at, staffID, entity.ClaimStatusReserved)
	if err != nil {
		return fmt.Errorf("failed to redeem claim: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return entity.ErrClaimAlreadyTerminal
	}
	return nil
}

// Expire transitions one claim to expired and returns its unit to the slot,
// in one transaction. Sweeping an already-terminal claim reports
// reclaimed=false and no error, which makes retried sweeps idempotent.
func (r *claimRepository) Expire(ctx context.Context, id, slotID int64, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE claims
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`, id, entity.ClaimStatusExpired, at, entity.ClaimStatusReserved)
	if err != nil {
		return false, fmt.Errorf("failed to expire claim: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rowsAffected == 0 {
		// Already terminal: redeemed in the meantime, or a retried sweep.
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE offer_slots
		SET qty_remaining = qty_remaining + 1, updated_at = $2
		WHERE id = $1 AND qty_remaining < qty_total
	`, slotID, at)
	if err != nil {
		return false, fmt.Errorf("failed to return unit to slot: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %v", err)
	}
	return true, nil
}

func (r *claimRepository) GetExpired(ctx context.Context, before time.Time) ([]*entity.ClaimExpiration, error) {
	query := `
		SELECT
			c.id, c.offer_id, c.slot_id, c.user_id, c.six_code, c.expires_at,
			COALESCE(u.telegram_id, '') AS telegram_id,
			o.title AS offer_title, o.venue_id
		FROM claims c
		JOIN offers o ON c.offer_id = o.id
		LEFT JOIN users u ON c.user_id = u.id
		WHERE c.status = 'reserved' AND c.expires_at <= $1
		ORDER BY c.expires_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired claims: %v", err)
	}
	defer rows.Close()

	var expirations []*entity.ClaimExpiration
	for rows.Next() {
		var e entity.ClaimExpiration
		err := rows.Scan(
			&e.ClaimID,
			&e.OfferID,
			&e.SlotID,
			&e.UserID,
			&e.SixCode,
			&e.ExpiresAt,
			&e.TelegramID,
			&e.OfferTitle,
			&e.VenueID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired claim: %v", err)
		}
		expirations = append(expirations, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired claims: %v", err)
	}
	return expirations, nil
}

// CountActiveByOfferAndUser counts reserved+redeemed claims: both consume
// the per-user allowance, expired ones do not.
func (r *claimRepository) CountActiveByOfferAndUser(ctx context.Context, offerID, userID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM claims
		WHERE offer_id = $1 AND user_id = $2 AND status IN ('reserved', 'redeemed')
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, offerID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user claims: %v", err)
	}
	return count, nil
}

func (r *claimRepository) CountActiveByOffer(ctx context.Context, offerID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM claims
		WHERE offer_id = $1 AND status IN ('reserved', 'redeemed')
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, offerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count offer claims: %v", err)
	}
	return count, nil
}

func (r *claimRepository) LastClaimAt(ctx context.Context, offerID, userID int64) (*time.Time, error) {
	query := `
		SELECT MAX(reserved_at) FROM claims
		WHERE offer_id = $1 AND user_id = $2
	`
	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, offerID, userID).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last claim time: %v", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (r *claimRepository) CountActiveBySlot(ctx context.Context, slotID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM claims
		WHERE slot_id = $1 AND status IN ('reserved', 'redeemed')
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, slotID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count slot claims: %v", err)
	}
	return count, nil
}
