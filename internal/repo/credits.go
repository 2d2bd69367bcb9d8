package repo

import (
	"context"
	"database/sql"
	"time"

	"bidforge/internal/domain"
)

// GrantCredits adds credits to an owner's balance, creating the row if absent.
func (r Repo) GrantCredits(ctx context.Context, ownerID string, amount int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO credits(owner_id,credits,updated_at) VALUES (?,?,?)
ON CONFLICT(owner_id) DO UPDATE SET credits=credits+excluded.credits, updated_at=excluded.updated_at`,
		ownerID, amount, now)
	return err
}

// DeductCredit removes one credit inside tx. The balance may go negative;
// billing reconciles later, the pipeline result is never retracted.
func (r Repo) DeductCredit(ctx context.Context, tx *sql.Tx, ownerID string, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO credits(owner_id,credits,updated_at) VALUES (?,-1,?)
ON CONFLICT(owner_id) DO UPDATE SET credits=credits-1, updated_at=excluded.updated_at`,
		ownerID, now)
	return err
}

func (r Repo) GetCredits(ctx context.Context, ownerID string) (domain.CreditBalance, error) {
	var b domain.CreditBalance
	err := r.DB.QueryRowContext(ctx, `SELECT owner_id,credits,updated_at FROM credits WHERE owner_id=?`, ownerID).
		Scan(&b.OwnerID, &b.Credits, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}
