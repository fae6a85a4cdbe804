package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository is the read interface over the playout read model.
type Repository interface {
	// GetItem retrieves an item with its asset loaded.
	// Returns ErrItemNotFound if the item does not exist.
	GetItem(ctx context.Context, id int64) (*Item, error)

	// GetBinItems returns the bin's items ordered by position, then id.
	GetBinItems(ctx context.Context, binID int64) ([]Item, error)

	// GetAsset retrieves an asset by id.
	GetAsset(ctx context.Context, id int64) (*Asset, error)

	// PlayoutStatus returns the status of the asset's playout rendition on a
	// channel. A missing rendition is reported as StatusOffline.
	PlayoutStatus(ctx context.Context, assetID int64, channelID int) (ObjectStatus, error)

	// ItemEvent returns the channel event whose bin contains the item.
	ItemEvent(ctx context.Context, channelID int, itemID int64) (*Event, error)

	// AdjacentEvent returns the channel event immediately after (forward) or
	// before the given event by start time.
	AdjacentEvent(ctx context.Context, ev *Event, forward bool) (*Event, error)

	// DueEvent returns the earliest event on the channel starting after
	// the given event and no later than until, whose bin has items.
	DueEvent(ctx context.Context, after *Event, until time.Time) (*Event, error)

	// SetItemLoop persists the loop flag of an item.
	SetItemLoop(ctx context.Context, itemID int64, loop bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const itemColumns = `
	i.id, i.bin_id, i.asset_id, i.position, i.title, i.mark_in, i.mark_out,
	i.duration, i.item_role, i.run_mode, i.loop,
	a.id, a.title, a.storage_id, a.path, a.duration, a.fps, a.status`

const eventColumns = `e.id, e.channel_id, e.start, e.title, e.run_mode, e.bin_id`

// GetItem retrieves an item with its asset loaded.
func (r *SQLiteRepository) GetItem(ctx context.Context, id int64) (*Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items i LEFT JOIN assets a ON a.id = i.asset_id
		WHERE i.id = ?`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrItemNotFound, id)
		}
		return nil, fmt.Errorf("querying item %d: %w", id, err)
	}
	return item, nil
}

// GetBinItems returns the bin's items ordered by position, then id.
func (r *SQLiteRepository) GetBinItems(ctx context.Context, binID int64) ([]Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items i LEFT JOIN assets a ON a.id = i.asset_id
		WHERE i.bin_id = ?
		ORDER BY i.position ASC, i.id ASC`

	rows, err := r.db.QueryContext(ctx, query, binID)
	if err != nil {
		return nil, fmt.Errorf("querying bin %d items: %w", binID, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}
	return items, nil
}

// GetAsset retrieves an asset by id.
func (r *SQLiteRepository) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	var a Asset
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, storage_id, path, duration, fps, status FROM assets WHERE id = ?`, id,
	).Scan(&a.ID, &a.Title, &a.StorageID, &a.Path, &a.Duration, &a.FPS, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrAssetNotFound, id)
		}
		return nil, fmt.Errorf("querying asset %d: %w", id, err)
	}
	a.Status = ObjectStatus(status)
	return &a, nil
}

// PlayoutStatus returns the playout rendition status of an asset.
func (r *SQLiteRepository) PlayoutStatus(ctx context.Context, assetID int64, channelID int) (ObjectStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM asset_playout WHERE asset_id = ? AND channel_id = ?`,
		assetID, channelID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusOffline, nil
	}
	if err != nil {
		return "", fmt.Errorf("querying playout status of asset %d: %w", assetID, err)
	}
	return ObjectStatus(status), nil
}

// ItemEvent returns the channel event whose bin contains the item.
func (r *SQLiteRepository) ItemEvent(ctx context.Context, channelID int, itemID int64) (*Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events e JOIN items i ON e.bin_id = i.bin_id
		WHERE i.id = ? AND e.channel_id = ?
		ORDER BY e.start DESC LIMIT 1`

	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, itemID, channelID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: item %d on channel %d", ErrEventNotFound, itemID, channelID)
		}
		return nil, fmt.Errorf("querying event of item %d: %w", itemID, err)
	}
	return ev, nil
}

// AdjacentEvent returns the next or previous event on the same channel.
//
// Start times are compared in SQL against the stored value of the reference
// event, so no precision is lost converting through time.Time.
func (r *SQLiteRepository) AdjacentEvent(ctx context.Context, ev *Event, forward bool) (*Event, error) {
	cmp, order := ">", "ASC"
	if !forward {
		cmp, order = "<", "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM events e
		WHERE e.channel_id = ?
		AND e.start %s (SELECT start FROM events WHERE id = ?)
		ORDER BY e.start %s LIMIT 1`, eventColumns, cmp, order) //nolint:gosec // Operators are constants, not user input

	next, err := scanEvent(r.db.QueryRowContext(ctx, query, ev.ChannelID, ev.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("querying event adjacent to %d: %w", ev.ID, err)
	}
	return next, nil
}

// DueEvent returns the earliest non-empty event that has become due.
func (r *SQLiteRepository) DueEvent(ctx context.Context, after *Event, until time.Time) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e
		WHERE e.channel_id = ?
		AND e.start > (SELECT start FROM events WHERE id = ?)
		AND e.start <= ?
		AND EXISTS (SELECT 1 FROM items i WHERE i.bin_id = e.bin_id)
		ORDER BY e.start ASC LIMIT 1`

	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, after.ChannelID, after.ID, UnixSeconds(until)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("querying due event: %w", err)
	}
	return ev, nil
}

// SetItemLoop persists the loop flag of an item.
func (r *SQLiteRepository) SetItemLoop(ctx context.Context, itemID int64, loop bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE items SET loop = ? WHERE id = ?`, loop, itemID)
	if err != nil {
		return fmt.Errorf("updating item %d loop: %w", itemID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrItemNotFound, itemID)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*Item, error) {
	var (
		item                  Item
		assetRef              sql.NullInt64
		role, runMode         string
		assetID, storageID    sql.NullInt64
		assetTitle, assetPath sql.NullString
		assetStatus           sql.NullString
		assetDur, assetFPS    sql.NullFloat64
	)

	if err := row.Scan(
		&item.ID, &item.BinID, &assetRef, &item.Position, &item.Title,
		&item.MarkIn, &item.MarkOut, &item.Duration, &role, &runMode, &item.Loop,
		&assetID, &assetTitle, &storageID, &assetPath, &assetDur, &assetFPS, &assetStatus,
	); err != nil {
		return nil, err
	}

	item.Role = ItemRole(role)
	item.RunMode = RunMode(runMode)
	if assetRef.Valid {
		item.AssetID = assetRef.Int64
	}
	if assetID.Valid {
		item.Asset = &Asset{
			ID:        assetID.Int64,
			Title:     assetTitle.String,
			StorageID: int(storageID.Int64),
			Path:      assetPath.String,
			Duration:  assetDur.Float64,
			FPS:       assetFPS.Float64,
			Status:    ObjectStatus(assetStatus.String),
		}
	}
	return &item, nil
}

func scanEvent(row scanner) (*Event, error) {
	var (
		ev      Event
		start   float64
		runMode string
		binID   sql.NullInt64
	)
	if err := row.Scan(&ev.ID, &ev.ChannelID, &start, &ev.Title, &runMode, &binID); err != nil {
		return nil, err
	}
	ev.Start = FromUnixSeconds(start)
	ev.RunMode = RunMode(runMode)
	if binID.Valid {
		ev.BinID = binID.Int64
	}
	return &ev, nil
}
