package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/MJE43/buried-treasure-go/internal/keylock"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// SQLite is a Store backed by a SQLite file. Mutations of one player are
// serialised by a keyed lock and run inside a single transaction.
type SQLite struct {
	db    *sql.DB
	locks keylock.Table
	now   func() time.Time
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for an
// ephemeral database. Call Migrate before first use.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite is not concurrent for writes; an in-memory database also only
	// exists on the connection that created it.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLite{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// DB exposes the handle so the account layer can share the file.
func (s *SQLite) DB() *sql.DB { return s.db }

// Migrate applies the embedded goose migrations.
func (s *SQLite) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

const selectPlayer = `SELECT id, pos_x, pos_y, gold, health, explored, buried,
	tiles_explored, treasures_found, traps_triggered, loot_buried, loot_dug_up,
	joined_at, updated_at FROM players`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (PlayerRecord, error) {
	var (
		rec              PlayerRecord
		explored, buried string
	)
	err := row.Scan(&rec.ID, &rec.Position.X, &rec.Position.Y, &rec.Gold, &rec.Health,
		&explored, &buried,
		&rec.Stats.TilesExplored, &rec.Stats.TreasuresFound, &rec.Stats.TrapsTriggered,
		&rec.Stats.LootBuried, &rec.Stats.LootDugUp,
		&rec.JoinedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PlayerRecord{}, ErrNotFound
	}
	if err != nil {
		return PlayerRecord{}, err
	}
	if err := json.Unmarshal([]byte(explored), &rec.Explored); err != nil {
		return PlayerRecord{}, fmt.Errorf("decode explored set: %w", err)
	}
	if err := json.Unmarshal([]byte(buried), &rec.Buried); err != nil {
		return PlayerRecord{}, fmt.Errorf("decode buried set: %w", err)
	}
	return rec, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (PlayerRecord, error) {
	return scanPlayer(s.db.QueryRowContext(ctx, selectPlayer+` WHERE id=?`, id))
}

func (s *SQLite) Create(ctx context.Context, id string) (PlayerRecord, error) {
	rec := NewRecord(id, s.now())
	explored, buried, err := encodeSets(rec)
	if err != nil {
		return PlayerRecord{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO players(id, pos_x, pos_y, gold, health, explored, buried, joined_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Position.X, rec.Position.Y, rec.Gold, rec.Health, explored, buried, rec.JoinedAt, rec.UpdatedAt)
	if err != nil {
		if isConstraintErr(err) {
			return PlayerRecord{}, ErrAlreadyExists
		}
		return PlayerRecord{}, fmt.Errorf("failed to create player: %w", err)
	}
	return rec, nil
}

func (s *SQLite) Mutate(ctx context.Context, id string, fn MutateFunc) (PlayerRecord, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PlayerRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prev, err := scanPlayer(tx.QueryRowContext(ctx, selectPlayer+` WHERE id=?`, id))
	if err != nil {
		return PlayerRecord{}, err
	}
	work := prev.Clone()
	if err := fn(&work); err != nil {
		return PlayerRecord{}, err
	}
	if err := settle(prev, &work); err != nil {
		return PlayerRecord{}, err
	}
	work.UpdatedAt = s.now()

	explored, buried, err := encodeSets(work)
	if err != nil {
		return PlayerRecord{}, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE players SET pos_x=?, pos_y=?, gold=?, health=?, explored=?, buried=?,
		 tiles_explored=?, treasures_found=?, traps_triggered=?, loot_buried=?, loot_dug_up=?,
		 updated_at=? WHERE id=?`,
		work.Position.X, work.Position.Y, work.Gold, work.Health, explored, buried,
		work.Stats.TilesExplored, work.Stats.TreasuresFound, work.Stats.TrapsTriggered,
		work.Stats.LootBuried, work.Stats.LootDugUp, work.UpdatedAt, id)
	if err != nil {
		return PlayerRecord{}, fmt.Errorf("failed to update player: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return PlayerRecord{}, fmt.Errorf("failed to commit player: %w", err)
	}
	return work, nil
}

func (s *SQLite) List(ctx context.Context) ([]PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectPlayer+` ORDER BY joined_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var out []PlayerRecord
	for rows.Next() {
		rec, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func encodeSets(rec PlayerRecord) (string, string, error) {
	explored, err := json.Marshal(rec.Explored)
	if err != nil {
		return "", "", err
	}
	buried, err := json.Marshal(rec.Buried)
	if err != nil {
		return "", "", err
	}
	return string(explored), string(buried), nil
}

func isConstraintErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "unique constraint")
}

var _ Store = (*SQLite)(nil)
var _ Store = (*Memory)(nil)
