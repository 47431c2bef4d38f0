package database

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/statstutor/internal/model"
)

// AppendTurn appends a turn to its conversation's log, assigning ID and the
// next sequence number in a single statement.
func (db *DB) AppendTurn(ctx context.Context, t *model.Turn) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO conversation_turns (conversation_id, seq, role, content, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_turns WHERE conversation_id = ?), ?, ?, ?)
		RETURNING id, seq`,
		t.ConversationID, t.ConversationID, string(t.Role), t.Content, t.CreatedAt.UTC().Format(timeLayout),
	)
	if err := row.Scan(&t.ID, &t.Seq); err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}
	return nil
}

// ListTurns returns every turn of a conversation in log order.
func (db *DB) ListTurns(ctx context.Context, conversationID string) ([]model.Turn, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, conversation_id, seq, role, content, created_at
		FROM conversation_turns WHERE conversation_id = ? ORDER BY seq`, conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		var role, created string
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Seq, &role, &t.Content, &created); err != nil {
			return nil, err
		}
		t.Role = model.Role(role)
		t.CreatedAt = parseTime(created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
