package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentchat/chat"
)

// SaveMessages replaces the stored history of agent with msgs.
func (s *Store) SaveMessages(ctx context.Context, agent string, msgs []*chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE agent = ?`, agent); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO messages (agent, position, id, role, body, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		body, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode message %s: %w", m.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, agent, i, m.ID, string(m.Role), string(body), m.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

// LoadMessages returns the stored history of agent in order. Rows that no
// longer decode are skipped.
func (s *Store) LoadMessages(ctx context.Context, agent string) ([]*chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, body FROM messages
	WHERE agent = ?
	ORDER BY position
	`, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*chat.Message
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		m := &chat.Message{}
		if err := json.Unmarshal([]byte(body), m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) ClearMessages(ctx context.Context, agent string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE agent = ?`, agent); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

// Agents lists every agent name with stored history or schedules.
func (s *Store) Agents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT agent FROM messages
	UNION
	SELECT agent FROM schedules
	ORDER BY agent
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
