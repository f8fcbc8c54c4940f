package store

import (
	"context"
	"database/sql"
	"encoding/json"
	errs "errors"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fablegame/fable/internal/engine"
	"github.com/fablegame/fable/internal/quota"
	"github.com/fablegame/fable/internal/util"
)

var (
	ErrNoChange = errs.New("no change")
	ErrNotFound = errs.New("not found")
)

// DB wraps gorm.DB for repositories and exposes Close.
type DB struct {
	gorm *gorm.DB
	sql  *sql.DB
}

func (d *DB) Close() error { return d.sql.Close() }

// Open connects to DB per config.
func Open(ctx context.Context, cfg util.Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("missing DSN")
	}
	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sdb, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sdb.SetConnMaxLifetime(30 * time.Minute)
	sdb.SetMaxOpenConns(10)
	sdb.SetMaxIdleConns(5)
	if err := sdb.PingContext(ctx); err != nil {
		return nil, err
	}
	return &DB{gorm: gdb, sql: sdb}, nil
}

// WithTx executes fn within a database transaction.
func (d *DB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.gorm.WithContext(ctx).Transaction(fn)
}

// TurnRecord is the per-turn document keyed by turn number.
type TurnRecord struct {
	GameID    string         `json:"gameId"`
	TurnNo    int            `json:"turnNo"`
	Action    string         `json:"action"`
	Segment   engine.Segment `json:"segment"`
	CreatedAt time.Time      `json:"createdAt"`
}

// GameSummary is the listing shape for the load-game screen.
type GameSummary struct {
	ID            string
	Era           string
	Theme         string
	CharacterName string
	TurnCount     int
	GameOver      bool
	UpdatedAt     time.Time
}

// GameRepo persists game aggregates and their turn/memory subcollections.
type GameRepo struct{ db *DB }

func NewGameRepo(db *DB) *GameRepo { return &GameRepo{db: db} }

// SaveTurn batch-writes the updated aggregate, the per-turn record and the
// latest memory batch in one transaction.
func (r *GameRepo) SaveTurn(ctx context.Context, g *engine.GameState, turn *TurnRecord) error {
	doc, err := json.Marshal(g)
	if err != nil {
		return wrap(err, "marshal game")
	}
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(`INSERT INTO games(id, owner_id, era, theme, character_name, turn_count, game_over, doc, updated_at)
			VALUES (?,?,?,?,?,?,?,?,now())
			ON CONFLICT (id) DO UPDATE SET
				turn_count=EXCLUDED.turn_count, game_over=EXCLUDED.game_over,
				doc=EXCLUDED.doc, updated_at=now()`,
			g.ID, g.OwnerID, g.Era, g.Theme, g.Character.Name, g.TurnCount, g.GameOver, doc).Error; err != nil {
			return wrap(err, "upsert game")
		}
		if turn != nil {
			segDoc, err := json.Marshal(turn.Segment)
			if err != nil {
				return wrap(err, "marshal segment")
			}
			if err := tx.Exec(`INSERT INTO game_turns(game_id, turn_no, action, doc)
				VALUES (?,?,?,?)
				ON CONFLICT (game_id, turn_no) DO UPDATE SET action=EXCLUDED.action, doc=EXCLUDED.doc`,
				g.ID, turn.TurnNo, turn.Action, segDoc).Error; err != nil {
				return wrap(err, "insert turn")
			}
		}
		if len(g.Memories) > 0 {
			memDoc, err := json.Marshal(g.Memories)
			if err != nil {
				return wrap(err, "marshal memories")
			}
			if err := tx.Exec(`INSERT INTO memory_batches(game_id, turn_no, doc)
				VALUES (?,?,?)
				ON CONFLICT (game_id, turn_no) DO UPDATE SET doc=EXCLUDED.doc`,
				g.ID, g.TurnCount, memDoc).Error; err != nil {
				return wrap(err, "insert memory batch")
			}
		}
		return nil
	})
}

// Get fetches the aggregate document by id.
func (r *GameRepo) Get(ctx context.Context, id string) (*engine.GameState, error) {
	row := r.db.gorm.WithContext(ctx).Raw(`SELECT doc FROM games WHERE id = ?`, id).Row()
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errs.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrap(err, "get game")
	}
	var g engine.GameState
	if err := json.Unmarshal(doc, &g); err != nil {
		return nil, wrap(err, "decode game")
	}
	return &g, nil
}

// RecentTurns returns up to n most recent turn records, newest first.
func (r *GameRepo) RecentTurns(ctx context.Context, gameID string, n int) ([]TurnRecord, error) {
	rows, err := r.db.gorm.WithContext(ctx).Raw(
		`SELECT turn_no, action, doc, created_at FROM game_turns WHERE game_id = ? ORDER BY turn_no DESC LIMIT ?`,
		gameID, n).Rows()
	if err != nil {
		return nil, wrap(err, "recent turns")
	}
	defer rows.Close()
	var out []TurnRecord
	for rows.Next() {
		var (
			rec TurnRecord
			doc []byte
		)
		if err := rows.Scan(&rec.TurnNo, &rec.Action, &doc, &rec.CreatedAt); err != nil {
			return nil, wrap(err, "scan turn")
		}
		if err := json.Unmarshal(doc, &rec.Segment); err != nil {
			return nil, wrap(err, "decode turn")
		}
		rec.GameID = gameID
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentMemoryBatches returns up to n most recent memory batches, newest first.
func (r *GameRepo) RecentMemoryBatches(ctx context.Context, gameID string, n int) ([][]engine.Memory, error) {
	rows, err := r.db.gorm.WithContext(ctx).Raw(
		`SELECT doc FROM memory_batches WHERE game_id = ? ORDER BY turn_no DESC LIMIT ?`,
		gameID, n).Rows()
	if err != nil {
		return nil, wrap(err, "recent memory batches")
	}
	defer rows.Close()
	var out [][]engine.Memory
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, wrap(err, "scan memory batch")
		}
		var batch []engine.Memory
		if err := json.Unmarshal(doc, &batch); err != nil {
			return nil, wrap(err, "decode memory batch")
		}
		out = append(out, batch)
	}
	return out, rows.Err()
}

// ListByOwner returns summaries ordered by recency.
func (r *GameRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]GameSummary, error) {
	rows, err := r.db.gorm.WithContext(ctx).Raw(
		`SELECT id, era, theme, character_name, turn_count, game_over, updated_at
		 FROM games WHERE owner_id = ? ORDER BY updated_at DESC LIMIT ?`,
		ownerID, limit).Rows()
	if err != nil {
		return nil, wrap(err, "list games")
	}
	defer rows.Close()
	var out []GameSummary
	for rows.Next() {
		var s GameSummary
		if err := rows.Scan(&s.ID, &s.Era, &s.Theme, &s.CharacterName, &s.TurnCount, &s.GameOver, &s.UpdatedAt); err != nil {
			return nil, wrap(err, "scan summary")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes the game and cascades over its subcollections.
func (r *GameRepo) Delete(ctx context.Context, gameID string) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM memory_batches WHERE game_id = ?`, gameID).Error; err != nil {
			return wrap(err, "delete memory batches")
		}
		if err := tx.Exec(`DELETE FROM game_turns WHERE game_id = ?`, gameID).Error; err != nil {
			return wrap(err, "delete turns")
		}
		if err := tx.Exec(`DELETE FROM games WHERE id = ?`, gameID).Error; err != nil {
			return wrap(err, "delete game")
		}
		return nil
	})
}

// UsageRepo backs the quota gate's Source with the usage_records table.
type UsageRepo struct{ db *DB }

func NewUsageRepo(db *DB) *UsageRepo { return &UsageRepo{db: db} }

func (r *UsageRepo) Fetch(ctx context.Context, userID string) (quota.Usage, error) {
	row := r.db.gorm.WithContext(ctx).Raw(`SELECT doc FROM usage_records WHERE user_id = ?`, userID).Row()
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errs.Is(err, sql.ErrNoRows) {
			return quota.Usage{}, ErrNotFound
		}
		return quota.Usage{}, wrap(err, "fetch usage")
	}
	var u quota.Usage
	if err := json.Unmarshal(doc, &u); err != nil {
		return quota.Usage{}, wrap(err, "decode usage")
	}
	return u, nil
}

func (r *UsageRepo) Report(ctx context.Context, u quota.Usage) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return wrap(err, "marshal usage")
	}
	return wrap(r.db.gorm.WithContext(ctx).Exec(
		`INSERT INTO usage_records(user_id, doc, updated_at) VALUES (?,?,now())
		 ON CONFLICT (user_id) DO UPDATE SET doc=EXCLUDED.doc, updated_at=now()`,
		u.UserID, doc).Error, "report usage")
}

// Helper error wrap
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}
