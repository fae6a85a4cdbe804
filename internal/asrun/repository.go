// Package asrun records what actually aired on each playout channel.
//
// A record is opened every time the device confirms an advance and closed
// (stop set) on the next advance. The most recent record per channel is the
// starting point for crash recovery.
package asrun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
)

// ErrNotFound is returned when no as-run record matches.
var ErrNotFound = errors.New("asrun: record not found")

// Record is a single aired interval. Stop is nil while the item is on air.
type Record struct {
	ID        int64      `json:"id"`
	UUID      string     `json:"uuid"`
	ChannelID int        `json:"id_channel"`
	ItemID    int64      `json:"id_item"`
	Start     time.Time  `json:"start"`
	Stop      *time.Time `json:"stop,omitempty"`
}

// Filter controls which records List returns.
type Filter struct {
	ChannelID int       // optional: 0 means all channels
	From      time.Time // optional: start >= From
	To        time.Time // optional: start < To
	Limit     int       // default 50, max 500
	Offset    int       // pagination offset
}

// ListResult contains the paginated as-run results.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Repository defines the as-run log operations.
type Repository interface {
	// Open starts a new interval for the item and returns it. Intervals
	// left open on the channel are closed at start.
	Open(ctx context.Context, channelID int, itemID int64, start time.Time) (*Record, error)

	// Close sets the stop time of an open interval.
	Close(ctx context.Context, id int64, stop time.Time) error

	// Latest returns the most recently opened record for the channel.
	// Returns ErrNotFound if the channel never aired anything.
	Latest(ctx context.Context, channelID int) (*Record, error)

	// List returns records matching the filter, most recent first.
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores the as-run log in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new as-run repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Open inserts a new open interval. Any interval still open on the channel
// is closed at start in the same transaction, so at most one record per
// channel is ever on air.
func (r *SQLiteRepository) Open(ctx context.Context, channelID int, itemID int64, start time.Time) (*Record, error) {
	rec := &Record{
		UUID:      uuid.NewString(),
		ChannelID: channelID,
		ItemID:    itemID,
		Start:     start.UTC(),
	}
	at := catalog.UnixSeconds(rec.Start)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning as-run transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx,
		`UPDATE asrun SET stop = ? WHERE channel_id = ? AND stop IS NULL`, at, channelID,
	); err != nil {
		return nil, fmt.Errorf("closing open as-run records: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO asrun (uuid, channel_id, item_id, start) VALUES (?, ?, ?, ?)`,
		rec.UUID, rec.ChannelID, rec.ItemID, at,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting as-run record: %w", err)
	}
	if rec.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading as-run record id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing as-run record: %w", err)
	}
	return rec, nil
}

// Close sets the stop time of an interval. Closing an already closed
// record overwrites its stop time.
func (r *SQLiteRepository) Close(ctx context.Context, id int64, stop time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE asrun SET stop = ? WHERE id = ?`, catalog.UnixSeconds(stop), id)
	if err != nil {
		return fmt.Errorf("closing as-run record %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// Latest returns the most recently opened record for the channel.
func (r *SQLiteRepository) Latest(ctx context.Context, channelID int) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT id, uuid, channel_id, item_id, start, stop FROM asrun
		 WHERE channel_id = ? ORDER BY id DESC LIMIT 1`, channelID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: channel %d", ErrNotFound, channelID)
		}
		return nil, fmt.Errorf("querying latest as-run record: %w", err)
	}
	return rec, nil
}

// List returns records matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 500 { //nolint:mnd // max page size for as-run queries
		filter.Limit = 500
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.ChannelID != 0 {
		conditions = append(conditions, "channel_id = ?")
		args = append(args, filter.ChannelID)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "start >= ?")
		args = append(args, catalog.UnixSeconds(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "start < ?")
		args = append(args, catalog.UnixSeconds(filter.To))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM asrun " + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting as-run records: %w", err)
	}

	query := "SELECT id, uuid, channel_id, item_id, start, stop FROM asrun " + where +
		" ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying as-run records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning as-run record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating as-run records: %w", err)
	}

	return &ListResult{
		Records: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec   Record
		start float64
		stop  sql.NullFloat64
	)
	if err := row.Scan(&rec.ID, &rec.UUID, &rec.ChannelID, &rec.ItemID, &start, &stop); err != nil {
		return nil, err
	}
	rec.Start = catalog.FromUnixSeconds(start)
	if stop.Valid {
		t := catalog.FromUnixSeconds(stop.Float64)
		rec.Stop = &t
	}
	return &rec, nil
}
