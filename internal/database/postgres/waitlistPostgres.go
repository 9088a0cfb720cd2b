package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/dealslot/internal/entity"
)

type waitlistRepository struct {
	db *sql.DB
}

func NewWaitlistRepository(db *sql.DB) WaitlistRepository {
	return &waitlistRepository{db: db}
}

const waitlistColumns = `
	id, offer_id, user_id, position, auto_claim, status, created_at, updated_at
`

func scanEntry(row interface{ Scan(...interface{}) error }) (*entity.WaitlistEntry, error) {
	var e entity.WaitlistEntry
	err := row.Scan(
		&e.ID,
		&e.OfferID,
		&e.UserID,
		&e.Position,
		&e.AutoClaim,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// lockOffer takes the per-offer scoped lock for the current transaction.
// Все перестановки позиций идут под этим замком, иначе два одновременных
// leave дадут дубликаты позиций.
func lockOffer(ctx context.Context, tx *sql.Tx, offerID int64) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, waitlistLockClass, offerID); err != nil {
		return fmt.Errorf("failed to take offer waitlist lock: %v", err)
	}
	return nil
}

// Lock class separating waitlist locks from any other advisory lock user.
const waitlistLockClass = 4101

func (r *waitlistRepository) Join(ctx context.Context, entry *entity.WaitlistEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if err := lockOffer(ctx, tx, entry.OfferID); err != nil {
		return err
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM waitlist_entries
		WHERE offer_id = $1 AND user_id = $2 AND status IN ('waiting', 'notified')
	`, entry.OfferID, entry.UserID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to check existing waitlist entry: %v", err)
	}
	if existing > 0 {
		return entity.ErrAlreadyWaiting
	}

	var tail int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM waitlist_entries
		WHERE offer_id = $1 AND status IN ('waiting', 'notified')
	`, entry.OfferID).Scan(&tail)
	if err != nil {
		return fmt.Errorf("failed to count queue length: %v", err)
	}

	now := time.Now()
	entry.Position = tail + 1
	entry.Status = entity.WaitlistStatusWaiting

	err = tx.QueryRowContext(ctx, `
		INSERT INTO waitlist_entries (
			offer_id, user_id, position, auto_claim, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, entry.OfferID, entry.UserID, entry.Position, entry.AutoClaim, entry.Status, now, now).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to create waitlist entry: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	entry.CreatedAt = now
	entry.UpdatedAt = now
	return nil
}

func (r *waitlistRepository) Leave(ctx context.Context, offerID, userID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if err := lockOffer(ctx, tx, offerID); err != nil {
		return err
	}

	var pos int
	err = tx.QueryRowContext(ctx, `
		SELECT position FROM waitlist_entries
		WHERE offer_id = $1 AND user_id = $2 AND status IN ('waiting', 'notified')
	`, offerID, userID).Scan(&pos)
	if err == sql.ErrNoRows {
		return entity.ErrWaitlistEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to find waitlist entry: %v", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM waitlist_entries
		WHERE offer_id = $1 AND user_id = $2 AND status IN ('waiting', 'notified')
	`, offerID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete waitlist entry: %v", err)
	}

	if err := renumberAfter(ctx, tx, offerID, pos); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

// renumberAfter closes the gap left at position pos: dense 1..N, no holes.
func renumberAfter(ctx context.Context, tx *sql.Tx, offerID int64, pos int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE waitlist_entries
		SET position = position - 1, updated_at = $3
		WHERE offer_id = $1 AND position > $2 AND status IN ('waiting', 'notified')
	`, offerID, pos, time.Now())
	if err != nil {
		return fmt.Errorf("failed to renumber waitlist: %v", err)
	}
	return nil
}

func (r *waitlistRepository) HeadWaiting(ctx context.Context, offerID int64) (*entity.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE offer_id = $1 AND status = 'waiting'
		ORDER BY position ASC
		LIMIT 1
	`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, offerID))
	if err == sql.ErrNoRows {
		return nil, entity.ErrWaitlistEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue head: %v", err)
	}
	return entry, nil
}

func (r *waitlistRepository) Resolve(ctx context.Context, entryID int64, status entity.WaitlistStatus) error {
	if status != entity.WaitlistStatusClaimed && status != entity.WaitlistStatusExpired {
		return entity.ErrInvalidInput
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	var offerID int64
	var pos int
	err = tx.QueryRowContext(ctx, `
		SELECT offer_id, position FROM waitlist_entries
		WHERE id = $1 AND status IN ('waiting', 'notified')
	`, entryID).Scan(&offerID, &pos)
	if err == sql.ErrNoRows {
		return entity.ErrWaitlistEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to find waitlist entry: %v", err)
	}

	if err := lockOffer(ctx, tx, offerID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE waitlist_entries
		SET status = $2, position = 0, updated_at = $3
		WHERE id = $1
	`, entryID, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to resolve waitlist entry: %v", err)
	}

	if err := renumberAfter(ctx, tx, offerID, pos); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

func (r *waitlistRepository) MarkNotified(ctx context.Context, entryID int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE waitlist_entries
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`, entryID, entity.WaitlistStatusNotified, time.Now(), entity.WaitlistStatusWaiting)
	if err != nil {
		return fmt.Errorf("failed to mark waitlist entry notified: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return entity.ErrWaitlistEntryNotFound
	}
	return nil
}

func (r *waitlistRepository) GetByOfferAndUser(ctx context.Context, offerID, userID int64) (*entity.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE offer_id = $1 AND user_id = $2 AND status IN ('waiting', 'notified')
	`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, offerID, userID))
	if err == sql.ErrNoRows {
		return nil, entity.ErrWaitlistEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry: %v", err)
	}
	return entry, nil
}

func (r *waitlistRepository) GetQueue(ctx context.Context, offerID int64) ([]*entity.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE offer_id = $1 AND status IN ('waiting', 'notified')
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query waitlist: %v", err)
	}
	defer rows.Close()

	var entries []*entity.WaitlistEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %v", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating waitlist: %v", err)
	}
	return entries, nil
}

func (r *waitlistRepository) CountWaiting(ctx context.Context, offerID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM waitlist_entries
		WHERE offer_id = $1 AND status IN ('waiting', 'notified')
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, offerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count waitlist entries: %v", err)
	}
	return count, nil
}
