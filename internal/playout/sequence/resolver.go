// Package sequence decides which item plays after (or before) another.
//
// The rules, in order:
//
//  1. Scan the item's bin past its position in the requested direction.
//  2. Moving forward onto a lead-out without forcing jumps back to the
//     bin's lead-in, or to its first item when there is none.
//  3. Items with run mode skip are passed over.
//  4. When the bin is exhausted, continue in the adjacent event of the
//     channel, unless its bin is empty or (when not forcing) it does not
//     run automatically.
//  5. Otherwise loop the current bin.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
)

// ErrNoCandidate is returned when nothing can follow the item, e.g. it no
// longer belongs to a bin with items. The channel stalls rather than
// guessing.
var ErrNoCandidate = errors.New("sequence: no candidate item")

// Direction selects forward or backward traversal.
type Direction int

// Directions.
const (
	Next Direction = iota
	Prev
)

func (d Direction) String() string {
	if d == Prev {
		return "prev"
	}
	return "next"
}

// Options modify the traversal rules.
type Options struct {
	// Force is an operator-requested step: lead-out redirection is skipped
	// and the adjacent event is entered whatever its run mode.
	Force bool

	// ForceNextEvent enters the adjacent event whatever its run mode. Set
	// while a scheduled event is being taken automatically.
	ForceNextEvent bool
}

// Store is the subset of the catalog the resolver reads.
type Store interface {
	GetBinItems(ctx context.Context, binID int64) ([]catalog.Item, error)
	ItemEvent(ctx context.Context, channelID int, itemID int64) (*catalog.Event, error)
	AdjacentEvent(ctx context.Context, ev *catalog.Event, forward bool) (*catalog.Event, error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Resolver applies the sequencing rules for one channel. It holds no
// state between calls.
type Resolver struct {
	store     Store
	channelID int
	logger    Logger
}

// NewResolver creates a resolver for the channel.
func NewResolver(store Store, channelID int) *Resolver {
	return &Resolver{store: store, channelID: channelID, logger: noopLogger{}}
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Resolve returns the item following (or preceding) item.
//
// Parameters:
//   - ctx: Context for the catalog queries
//   - item: The reference item; only ID, BinID and Position are used
//   - dir: Next or Prev
//   - opts: Traversal options
//
// Returns:
//   - *catalog.Item: The candidate, with its asset loaded
//   - error: ErrNoCandidate, or a catalog error
func (r *Resolver) Resolve(ctx context.Context, item *catalog.Item, dir Direction, opts Options) (*catalog.Item, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: no reference item", ErrNoCandidate)
	}
	r.logger.Debug("looking for an item", "direction", dir.String(), "after", item.ID)

	items, err := r.store.GetBinItems(ctx, item.BinID)
	if err != nil {
		return nil, fmt.Errorf("loading bin %d: %w", item.BinID, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: bin %d is empty", ErrNoCandidate, item.BinID)
	}

	if dir == Prev {
		for i := len(items) - 1; i >= 0; i-- {
			if items[i].Position < item.Position && items[i].RunMode != catalog.RunSkip {
				return &items[i], nil
			}
		}
	} else {
		for i := range items {
			cand := &items[i]
			if cand.Position <= item.Position {
				continue
			}
			if cand.Role == catalog.RoleLeadOut && !opts.Force {
				r.logger.Info("cueing lead in", "bin", item.BinID)
				return leadIn(items), nil
			}
			if cand.RunMode == catalog.RunSkip {
				continue
			}
			return cand, nil
		}
	}

	if next, ok := r.fromAdjacentEvent(ctx, item, dir, opts); ok {
		return next, nil
	}

	r.logger.Info("looping current playlist", "bin", item.BinID)
	if dir == Prev {
		return &items[len(items)-1], nil
	}
	return &items[0], nil
}

// fromAdjacentEvent takes the first (or last) item of the neighbouring
// event. ok is false when that event cannot be entered.
func (r *Resolver) fromAdjacentEvent(ctx context.Context, item *catalog.Item, dir Direction, opts Options) (*catalog.Item, bool) {
	current, err := r.store.ItemEvent(ctx, r.channelID, item.ID)
	if err != nil {
		r.logger.Debug("item has no event", "item", item.ID, "error", err)
		return nil, false
	}

	ev, err := r.store.AdjacentEvent(ctx, current, dir == Next)
	if err != nil {
		r.logger.Debug("no adjacent event", "direction", dir.String(), "error", err)
		return nil, false
	}
	if ev.BinID == 0 {
		return nil, false
	}
	if ev.RunMode != catalog.RunAuto && !opts.Force && !opts.ForceNextEvent {
		r.logger.Debug("adjacent playlist run mode is not auto", "event", ev.ID, "run_mode", ev.RunMode)
		return nil, false
	}

	items, err := r.store.GetBinItems(ctx, ev.BinID)
	if err != nil || len(items) == 0 {
		r.logger.Debug("adjacent playlist is empty", "event", ev.ID)
		return nil, false
	}
	if dir == Prev {
		return &items[len(items)-1], true
	}
	return &items[0], true
}

// leadIn returns the bin's lead-in item, or its first item.
func leadIn(items []catalog.Item) *catalog.Item {
	for i := range items {
		if items[i].Role == catalog.RoleLeadIn {
			return &items[i]
		}
	}
	return &items[0]
}
