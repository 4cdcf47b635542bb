package storage

import (
	"context"
	"database/sql"
	"fmt"

	pq "github.com/lib/pq"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

// StateRepo guarda ExitRecord y RemovedRolesRecord en Postgres.
type StateRepo struct{ db *sql.DB }

func NewStateRepo(db *sql.DB) *StateRepo { return &StateRepo{db: db} }

func (r *StateRepo) LoadAll(ctx context.Context) (domain.State, error) {
	st := domain.NewState()

	rows, err := r.db.QueryContext(ctx, `SELECT member_id, exit_at FROM focus_exit_records`)
	if err != nil {
		return st, fmt.Errorf("load exits: %w", err)
	}
	for rows.Next() {
		var rec domain.ExitRecord
		if err := rows.Scan(&rec.MemberID, &rec.ExitAt); err != nil {
			rows.Close()
			return st, err
		}
		st.Exits[rec.MemberID] = rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}

	rows, err = r.db.QueryContext(ctx, `SELECT member_id, role_ids FROM focus_removed_roles`)
	if err != nil {
		return st, fmt.Errorf("load removed roles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec domain.RemovedRolesRecord
		if err := rows.Scan(&rec.MemberID, pq.Array(&rec.RoleIDs)); err != nil {
			return st, err
		}
		st.RemovedRoles[rec.MemberID] = rec
	}
	return st, rows.Err()
}

// SaveAll reemplaza las dos tablas en una sola transacción.
func (r *StateRepo) SaveAll(ctx context.Context, st domain.State) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM focus_exit_records`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM focus_removed_roles`); err != nil {
		return err
	}
	for _, rec := range st.Exits {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO focus_exit_records (member_id, exit_at) VALUES ($1, $2)
`, rec.MemberID, rec.ExitAt.UTC()); err != nil {
			return fmt.Errorf("save exit %s: %w", rec.MemberID, err)
		}
	}
	for _, rec := range st.RemovedRoles {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO focus_removed_roles (member_id, role_ids, updated_at) VALUES ($1, $2, NOW())
`, rec.MemberID, pq.Array(rec.RoleIDs)); err != nil {
			return fmt.Errorf("save removed roles %s: %w", rec.MemberID, err)
		}
	}
	return tx.Commit()
}

// Release borra todo lo persistido de un miembro (statectl).
func (r *StateRepo) Release(ctx context.Context, memberID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, q := range []string{
		`DELETE FROM focus_exit_records WHERE member_id = $1`,
		`DELETE FROM focus_removed_roles WHERE member_id = $1`,
	} {
		res, err := tx.ExecContext(ctx, q, memberID)
		if err != nil {
			return false, err
		}
		c, _ := res.RowsAffected()
		n += c
	}
	return n > 0, tx.Commit()
}
