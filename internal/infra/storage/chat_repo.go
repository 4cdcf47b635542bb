package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

// ChatRepo: historial del asistente, una fila por turno.
type ChatRepo struct{ db *sql.DB }

func NewChatRepo(db *sql.DB) *ChatRepo { return &ChatRepo{db: db} }

func (r *ChatRepo) Append(ctx context.Context, t domain.ChatTurn) error {
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_messages (member_id, role, content, created_at) VALUES ($1, $2, $3, $4)
`, t.MemberID, string(t.Role), t.Content, at.UTC())
	return err
}

// Recent devuelve los últimos limit turnos en orden cronológico.
func (r *ChatRepo) Recent(ctx context.Context, memberID string, limit int) ([]domain.ChatTurn, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT member_id, role, content, created_at FROM (
  SELECT id, member_id, role, content, created_at
    FROM chat_messages
   WHERE member_id = $1
   ORDER BY id DESC
   LIMIT $2
) t ORDER BY id ASC
`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ChatTurn
	for rows.Next() {
		var t domain.ChatTurn
		var role string
		if err := rows.Scan(&t.MemberID, &role, &t.Content, &t.At); err != nil {
			return nil, err
		}
		t.Role = domain.ChatRole(role)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *ChatRepo) Trim(ctx context.Context, memberID string, keep int) error {
	_, err := r.db.ExecContext(ctx, `
DELETE FROM chat_messages
 WHERE member_id = $1
   AND id NOT IN (
     SELECT id FROM chat_messages WHERE member_id = $1 ORDER BY id DESC LIMIT $2
   )
`, memberID, keep)
	return err
}

func (r *ChatRepo) Clear(ctx context.Context, memberID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE member_id = $1`, memberID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
