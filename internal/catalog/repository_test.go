package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/catalog/catalogtest"
)

var t0 = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func setupRepo(t *testing.T) (*catalog.SQLiteRepository, *catalogtest.Fixture) {
	t.Helper()
	db := catalogtest.OpenDB(t)
	fx := catalogtest.NewFixture(t, db)

	fx.Asset(catalog.Asset{ID: 1, Title: "Opening", StorageID: 1, Path: "a/1.mov", Duration: 60})
	fx.Asset(catalog.Asset{ID: 2, Title: "Movie", StorageID: 1, Path: "a/2.mov", Duration: 5400, Status: catalog.StatusOffline})
	fx.Playout(1, 1, catalog.StatusOnline)

	fx.Bin(10)
	fx.Bin(20)
	fx.Bin(30)
	fx.Item(catalog.Item{ID: 102, BinID: 10, AssetID: 2, Position: 1})
	fx.Item(catalog.Item{ID: 101, BinID: 10, AssetID: 1, Position: 0, Loop: true})
	fx.Item(catalog.Item{ID: 103, BinID: 10, Position: 1, Title: "Live block", Role: catalog.RoleLive})
	fx.Item(catalog.Item{ID: 201, BinID: 20, AssetID: 1, Position: 0})

	fx.Event(catalog.Event{ID: 1, ChannelID: 1, Start: t0, BinID: 10})
	fx.Event(catalog.Event{ID: 2, ChannelID: 1, Start: t0.Add(time.Hour), BinID: 30})
	fx.Event(catalog.Event{ID: 3, ChannelID: 1, Start: t0.Add(2 * time.Hour), BinID: 20, RunMode: catalog.RunHard})
	fx.Event(catalog.Event{ID: 4, ChannelID: 2, Start: t0.Add(30 * time.Minute), BinID: 20})

	return catalog.NewSQLiteRepository(db.DB), fx
}

func TestGetItem(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	item, err := repo.GetItem(ctx, 101)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if item.Asset == nil || item.Asset.Title != "Opening" {
		t.Fatalf("GetItem() asset = %+v, want Opening", item.Asset)
	}
	if !item.Loop {
		t.Error("GetItem() loop = false, want true")
	}
	if item.RunMode != catalog.RunAuto {
		t.Errorf("GetItem() run mode = %q, want auto", item.RunMode)
	}

	virtual, err := repo.GetItem(ctx, 103)
	if err != nil {
		t.Fatalf("GetItem(virtual) error = %v", err)
	}
	if !virtual.IsVirtual() || virtual.Asset != nil {
		t.Errorf("item 103 should be virtual, got %+v", virtual)
	}

	if _, err := repo.GetItem(ctx, 999); !errors.Is(err, catalog.ErrItemNotFound) {
		t.Errorf("GetItem(999) error = %v, want ErrItemNotFound", err)
	}
}

func TestGetBinItemsOrder(t *testing.T) {
	repo, _ := setupRepo(t)

	items, err := repo.GetBinItems(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetBinItems() error = %v", err)
	}
	var ids []int64
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	want := []int64{101, 102, 103}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v (position, then id)", ids, want)
		}
	}

	empty, err := repo.GetBinItems(context.Background(), 30)
	if err != nil {
		t.Fatalf("GetBinItems(empty) error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty bin returned %d items", len(empty))
	}
}

func TestPlayoutStatus(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	st, err := repo.PlayoutStatus(ctx, 1, 1)
	if err != nil || st != catalog.StatusOnline {
		t.Errorf("PlayoutStatus(1, 1) = %q, %v; want online", st, err)
	}
	st, err = repo.PlayoutStatus(ctx, 1, 2)
	if err != nil || st != catalog.StatusOffline {
		t.Errorf("PlayoutStatus(1, 2) = %q, %v; want offline", st, err)
	}
}

func TestItemEvent(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	ev, err := repo.ItemEvent(ctx, 1, 102)
	if err != nil {
		t.Fatalf("ItemEvent() error = %v", err)
	}
	if ev.ID != 1 || !ev.Start.Equal(t0) {
		t.Errorf("ItemEvent() = %+v, want event 1 at %v", ev, t0)
	}

	ev, err = repo.ItemEvent(ctx, 2, 201)
	if err != nil || ev.ID != 4 {
		t.Errorf("ItemEvent(ch 2) = %+v, %v; want event 4", ev, err)
	}

	if _, err := repo.ItemEvent(ctx, 2, 101); !errors.Is(err, catalog.ErrEventNotFound) {
		t.Errorf("ItemEvent(ch 2, item 101) error = %v, want ErrEventNotFound", err)
	}
}

func TestAdjacentEvent(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	first := &catalog.Event{ID: 1, ChannelID: 1}

	next, err := repo.AdjacentEvent(ctx, first, true)
	if err != nil || next.ID != 2 {
		t.Fatalf("AdjacentEvent(next) = %+v, %v; want event 2", next, err)
	}

	last := &catalog.Event{ID: 3, ChannelID: 1}
	prev, err := repo.AdjacentEvent(ctx, last, false)
	if err != nil || prev.ID != 2 {
		t.Fatalf("AdjacentEvent(prev) = %+v, %v; want event 2", prev, err)
	}

	if _, err := repo.AdjacentEvent(ctx, first, false); !errors.Is(err, catalog.ErrEventNotFound) {
		t.Errorf("AdjacentEvent before first error = %v, want ErrEventNotFound", err)
	}
}

func TestDueEvent(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	first := &catalog.Event{ID: 1, ChannelID: 1}

	if _, err := repo.DueEvent(ctx, first, t0.Add(90*time.Minute)); !errors.Is(err, catalog.ErrEventNotFound) {
		t.Errorf("DueEvent() error = %v, want ErrEventNotFound (event 2 bin is empty)", err)
	}

	ev, err := repo.DueEvent(ctx, first, t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("DueEvent() error = %v", err)
	}
	if ev.ID != 3 || ev.RunMode != catalog.RunHard {
		t.Errorf("DueEvent() = %+v, want hard event 3", ev)
	}
}

func TestSetItemLoop(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	if err := repo.SetItemLoop(ctx, 101, false); err != nil {
		t.Fatalf("SetItemLoop() error = %v", err)
	}
	item, err := repo.GetItem(ctx, 101)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if item.Loop {
		t.Error("loop flag was not persisted")
	}

	if err := repo.SetItemLoop(ctx, 999, true); !errors.Is(err, catalog.ErrItemNotFound) {
		t.Errorf("SetItemLoop(999) error = %v, want ErrItemNotFound", err)
	}
}
