package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLite records facts in the public_facts table created by the store
// migrations.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite { return &SQLite{db: db} }

func (s *SQLite) Commit(ctx context.Context, f Fact) (Handle, error) {
	if err := f.validate(); err != nil {
		return "", err
	}
	var player sql.NullString
	if f.Player != "" {
		player = sql.NullString{String: f.Player, Valid: true}
	}
	h := newHandle()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO public_facts(handle, kind, player, created_at) VALUES(?, ?, ?, ?)`,
		string(h), string(f.Kind), player, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to commit fact: %w", err)
	}
	return h, nil
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT handle, kind, player, created_at FROM public_facts
		 ORDER BY rowid DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			kind   string
			player sql.NullString
		)
		if err := rows.Scan(&e.Handle, &kind, &player, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Fact.Kind = Kind(kind)
		e.Fact.Player = player.String
		out = append(out, e)
	}
	return out, rows.Err()
}
