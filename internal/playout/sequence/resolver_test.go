package sequence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/catalog/catalogtest"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/sequence"
)

var t0 = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

// fixture layout (channel 1):
//
//	event 1 @06:00 bin 10: 101 lead_in, 102, 103 skip, 104, 105 lead_out, 106
//	event 2 @07:00 bin 20: 201, 202
//	event 3 @08:00 bin 30: (empty)
//	event 4 @09:00 bin 40 manual: 401
func setup(t *testing.T) (*sequence.Resolver, *catalog.SQLiteRepository) {
	t.Helper()
	db := catalogtest.OpenDB(t)
	fx := catalogtest.NewFixture(t, db)

	fx.Asset(catalog.Asset{ID: 1, Duration: 10})
	for _, b := range []int64{10, 20, 30, 40, 50} {
		fx.Bin(b)
	}
	fx.Item(catalog.Item{ID: 101, BinID: 10, AssetID: 1, Position: 0, Role: catalog.RoleLeadIn})
	fx.Item(catalog.Item{ID: 102, BinID: 10, AssetID: 1, Position: 1})
	fx.Item(catalog.Item{ID: 103, BinID: 10, AssetID: 1, Position: 2, RunMode: catalog.RunSkip})
	fx.Item(catalog.Item{ID: 104, BinID: 10, AssetID: 1, Position: 3})
	fx.Item(catalog.Item{ID: 105, BinID: 10, AssetID: 1, Position: 4, Role: catalog.RoleLeadOut})
	fx.Item(catalog.Item{ID: 106, BinID: 10, AssetID: 1, Position: 5})
	fx.Item(catalog.Item{ID: 201, BinID: 20, AssetID: 1, Position: 0})
	fx.Item(catalog.Item{ID: 202, BinID: 20, AssetID: 1, Position: 1})
	fx.Item(catalog.Item{ID: 401, BinID: 40, AssetID: 1, Position: 0})
	fx.Item(catalog.Item{ID: 501, BinID: 50, AssetID: 1, Position: 0})

	fx.Event(catalog.Event{ID: 1, ChannelID: 1, Start: t0, BinID: 10})
	fx.Event(catalog.Event{ID: 2, ChannelID: 1, Start: t0.Add(time.Hour), BinID: 20})
	fx.Event(catalog.Event{ID: 3, ChannelID: 1, Start: t0.Add(2 * time.Hour), BinID: 30})
	fx.Event(catalog.Event{ID: 4, ChannelID: 1, Start: t0.Add(3 * time.Hour), BinID: 40, RunMode: catalog.RunManual})

	repo := catalog.NewSQLiteRepository(db.DB)
	return sequence.NewResolver(repo, 1), repo
}

func TestResolve(t *testing.T) {
	r, repo := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		from int64
		dir  sequence.Direction
		opts sequence.Options
		want int64
	}{
		{"next in bin", 101, sequence.Next, sequence.Options{}, 102},
		{"skips skip items", 102, sequence.Next, sequence.Options{}, 104},
		{"lead out redirects to lead in", 104, sequence.Next, sequence.Options{}, 101},
		{"forced passes lead out", 104, sequence.Next, sequence.Options{Force: true}, 105},
		{"bin exhausted enters next event", 106, sequence.Next, sequence.Options{}, 201},
		{"prev in bin", 202, sequence.Prev, sequence.Options{Force: true}, 201},
		{"prev skips skip items", 104, sequence.Prev, sequence.Options{Force: true}, 102},
		{"prev enters previous event", 201, sequence.Prev, sequence.Options{Force: true}, 106},
		{"empty next event loops", 202, sequence.Next, sequence.Options{}, 201},
		{"first event prev loops to last", 101, sequence.Prev, sequence.Options{Force: true}, 106},
		{"item without event loops its bin", 501, sequence.Next, sequence.Options{}, 501},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, err := repo.GetItem(ctx, tt.from)
			if err != nil {
				t.Fatalf("GetItem(%d) error = %v", tt.from, err)
			}
			got, err := r.Resolve(ctx, from, tt.dir, tt.opts)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.ID != tt.want {
				t.Errorf("Resolve(%d, %s) = %d, want %d", tt.from, tt.dir, got.ID, tt.want)
			}
			if got.Asset == nil {
				t.Error("candidate asset not loaded")
			}
		})
	}
}

func TestResolveRunModeGate(t *testing.T) {
	db := catalogtest.OpenDB(t)
	fx := catalogtest.NewFixture(t, db)
	fx.Bin(10)
	fx.Bin(20)
	fx.Item(catalog.Item{ID: 101, BinID: 10, Position: 0, Duration: 5})
	fx.Item(catalog.Item{ID: 102, BinID: 10, Position: 1, Duration: 5})
	fx.Item(catalog.Item{ID: 201, BinID: 20, Position: 0, Duration: 5})
	fx.Event(catalog.Event{ID: 1, ChannelID: 1, Start: t0, BinID: 10})
	fx.Event(catalog.Event{ID: 2, ChannelID: 1, Start: t0.Add(time.Hour), BinID: 20, RunMode: catalog.RunSoft})

	repo := catalog.NewSQLiteRepository(db.DB)
	r := sequence.NewResolver(repo, 1)
	ctx := context.Background()
	last, err := repo.GetItem(ctx, 102)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}

	got, err := r.Resolve(ctx, last, sequence.Next, sequence.Options{})
	if err != nil || got.ID != 101 {
		t.Errorf("non-auto next event should loop: got %v, %v", got, err)
	}

	got, err = r.Resolve(ctx, last, sequence.Next, sequence.Options{ForceNextEvent: true})
	if err != nil || got.ID != 201 {
		t.Errorf("ForceNextEvent should enter the soft event: got %v, %v", got, err)
	}
}

func TestResolveNoCandidate(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, nil, sequence.Next, sequence.Options{}); !errors.Is(err, sequence.ErrNoCandidate) {
		t.Errorf("Resolve(nil) error = %v, want ErrNoCandidate", err)
	}
	orphan := &catalog.Item{ID: 999, BinID: 30}
	if _, err := r.Resolve(ctx, orphan, sequence.Next, sequence.Options{}); !errors.Is(err, sequence.ErrNoCandidate) {
		t.Errorf("Resolve(orphan) error = %v, want ErrNoCandidate", err)
	}
}

// Stepping forward then back returns to the original position, or earlier
// when a lead-out redirect or a wrap intervened.
func TestNextThenPrevDoesNotOvershoot(t *testing.T) {
	r, repo := setup(t)
	ctx := context.Background()

	for _, id := range []int64{101, 102, 104, 201} {
		item, err := repo.GetItem(ctx, id)
		if err != nil {
			t.Fatalf("GetItem(%d) error = %v", id, err)
		}
		next, err := r.Resolve(ctx, item, sequence.Next, sequence.Options{Force: true})
		if err != nil {
			t.Fatalf("Resolve(next) error = %v", err)
		}
		back, err := r.Resolve(ctx, next, sequence.Prev, sequence.Options{Force: true})
		if err != nil {
			t.Fatalf("Resolve(prev) error = %v", err)
		}
		if back.BinID == item.BinID && back.Position > item.Position {
			t.Errorf("item %d: next=%d prev=%d overshoots position %d", id, next.ID, back.ID, item.Position)
		}
		if back.ID != item.ID {
			t.Errorf("item %d: next then prev = %d, want the original item", id, back.ID)
		}
	}
}
