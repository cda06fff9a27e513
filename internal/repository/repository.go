// Package repository journals committed engine events to Postgres.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/leafsii/collateral-engine/internal/engine"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var ErrInvalidCursor = errors.New("invalid cursor")

type Repository struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewRepository(db *sql.DB, logger *zap.SugaredLogger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Open connects through the pgx stdlib driver and pings the database.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

const insertEvent = `
	INSERT INTO engine_events (id, type, user_address, asset, counterparty, amount, debt_covered, bonus, ts)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING
`

// StoredEvent is a journaled event with its position in the journal.
type StoredEvent struct {
	Seq int64 `json:"seq"`
	engine.EventRecord
}

func eventArgs(ev engine.Event) []any {
	rec := ev.Record()
	return []any{
		rec.ID,
		rec.Type,
		addressKey(ev.User),
		addressOrEmpty(ev.Asset),
		addressOrEmpty(ev.Counterparty),
		rec.Amount,
		nullable(rec.DebtCovered),
		nullable(rec.Bonus),
		rec.Timestamp,
	}
}

func addressKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func addressOrEmpty(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return addressKey(a)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Event storage
func (r *Repository) StoreEvent(ctx context.Context, event engine.Event) error {
	if _, err := r.db.ExecContext(ctx, insertEvent, eventArgs(event)...); err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

func (r *Repository) StoreBatchEvents(ctx context.Context, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		if _, err := stmt.ExecContext(ctx, eventArgs(event)...); err != nil {
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debugw("Stored batch of events", "count", len(events))
	return nil
}

// Publish implements engine.EventSink.
func (r *Repository) Publish(ctx context.Context, events []engine.Event) error {
	return r.StoreBatchEvents(ctx, events)
}

// ListUserEvents returns events where address is the user or the
// counterparty, newest first. cursor is the seq of the last event of the
// previous page; an empty nextCursor means there are no more.
func (r *Repository) ListUserEvents(ctx context.Context, address common.Address, limit int, cursor string) ([]StoredEvent, string, error) {
	limit = clampLimit(limit)
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `
		SELECT seq, id::text, type, user_address, asset, counterparty, amount::text,
		       COALESCE(debt_covered::text, ''), COALESCE(bonus::text, ''), ts
		FROM engine_events
		WHERE (user_address = $1 OR counterparty = $1)
		AND seq < $2
		ORDER BY seq DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, addressKey(address), before, limit+1) // +1 to check if there are more
	if err != nil {
		return nil, "", fmt.Errorf("failed to query user events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	var hasMore bool

	for rows.Next() {
		if len(events) >= limit {
			hasMore = true
			break
		}

		var ev StoredEvent
		var ts time.Time
		err := rows.Scan(
			&ev.Seq,
			&ev.ID,
			&ev.Type,
			&ev.User,
			&ev.Asset,
			&ev.Counterparty,
			&ev.Amount,
			&ev.DebtCovered,
			&ev.Bonus,
			&ts,
		)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan event: %w", err)
		}
		ev.User = checksum(ev.User)
		ev.Asset = checksum(ev.Asset)
		ev.Counterparty = checksum(ev.Counterparty)
		ev.Timestamp = ts.UTC()
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("row iteration error: %w", err)
	}

	var nextCursor string
	if hasMore && len(events) > 0 {
		nextCursor = strconv.FormatInt(events[len(events)-1].Seq, 10)
	}

	return events, nextCursor, nil
}

func checksum(s string) string {
	if s == "" {
		return ""
	}
	return common.HexToAddress(s).Hex()
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return int64(^uint64(0) >> 1), nil
	}
	seq, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return seq, nil
}

// Health check
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
