package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nebulabroadcast/nebula-worker/internal/asrun"
	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
)

// OnChange records a confirmed advance: it closes the previous as-run
// interval, opens a new one and notifies plugins and publishers.
func (s *Session) OnChange(ctx context.Context) {
	item := s.ctrl.Status().CurrentItem

	s.mu.Lock()
	s.currentItem = item
	if item == nil {
		s.currentEvent = nil
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	event, err := s.catalog.ItemEvent(ctx, s.channel.ID, item.ID)
	if err != nil {
		if !isNotFound(err) {
			s.logger.Error("unable to load current event", "channel", s.channel.ID, "item", item.ID, "error", err)
		}
		event = nil
	}

	s.logger.Info("advanced", "channel", s.channel.ID, "item", item)

	now := s.now()
	s.mu.Lock()
	s.currentEvent = event
	lastRun := s.lastRun
	s.mu.Unlock()

	if lastRun != 0 {
		if err := s.asrun.Close(ctx, lastRun, now); err != nil {
			s.logger.Error("unable to close as-run record", "channel", s.channel.ID, "id", lastRun, "error", err)
		}
	}

	rec, err := s.asrun.Open(ctx, s.channel.ID, item.ID, now)
	s.mu.Lock()
	if err != nil {
		s.lastRun = 0
	} else {
		s.lastRun = rec.ID
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("unable to open as-run record", "channel", s.channel.ID, "item", item.ID, "error", err)
	} else {
		s.publisher.PublishAdvance(s.channel.ID, rec, item)
	}

	s.plugins.Load().OnChange(ctx)
	s.publishStatus(true)
}

// OnProgress publishes status at most every statusInterval and ticks
// plugins.
func (s *Session) OnProgress() {
	s.publishStatus(false)
	s.plugins.Load().Tick(s.context())
}

func (s *Session) publishStatus(force bool) {
	now := s.now()
	s.mu.Lock()
	due := force || now.Sub(s.lastInfo) > statusInterval
	if due {
		s.lastInfo = now
	}
	s.mu.Unlock()

	if due {
		s.publisher.PublishStatus(s.channel.ID, s.Stat())
	}
}

// OnLiveEnter marks a live source as on air.
func (s *Session) OnLiveEnter() {
	s.mu.Lock()
	s.currentLive = true
	s.cuedLive = false
	s.mu.Unlock()
	s.logger.Info("entering a live event", "channel", s.channel.ID)
}

// OnLiveLeave clears the live overlay.
func (s *Session) OnLiveLeave() {
	s.mu.Lock()
	s.currentLive = false
	s.mu.Unlock()
	s.logger.Info("leaving a live event", "channel", s.channel.ID)
}

// OnMain is the scheduling tick. It starts the next due event according to
// its run mode. Auto events need no action here: they follow through
// normal sequencing.
func (s *Session) OnMain(ctx context.Context) {
	s.ctrl.OnMain(ctx)

	current := s.ctrl.Status().CurrentItem
	if current == nil {
		return
	}

	currentEvent, err := s.catalog.ItemEvent(ctx, s.channel.ID, current.ID)
	if err != nil {
		s.logger.Warn("unable to fetch the current event", "channel", s.channel.ID, "item", current.ID, "error", err)
		return
	}

	next, err := s.catalog.DueEvent(ctx, currentEvent, s.now())
	if err != nil {
		if !errors.Is(err, catalog.ErrEventNotFound) {
			s.logger.Error("unable to look up due event", "channel", s.channel.ID, "error", err)
			return
		}
		s.mu.Lock()
		s.autoEvent = 0
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	already := s.autoEvent == next.ID
	live := s.currentLive
	s.mu.Unlock()
	if already {
		return
	}

	switch next.RunMode {
	case catalog.RunSoft:
		s.softCue(ctx, currentEvent, next, live)
	case catalog.RunHard:
		s.hardCue(ctx, next)
	}
}

// softCue lets the current block finish: it cues the current bin's
// post-lead-out item when there is one, else pre-cues the next event.
func (s *Session) softCue(ctx context.Context, currentEvent, next *catalog.Event, live bool) {
	s.logger.Info("soft cue", "channel", s.channel.ID, "event", next)

	items, err := s.catalog.GetBinItems(ctx, currentEvent.BinID)
	if err != nil {
		s.logger.Error("unable to load current bin", "channel", s.channel.ID, "bin", currentEvent.BinID, "error", err)
		return
	}
	for i := range items {
		if items[i].Role != catalog.RoleLeadOut || i+1 >= len(items) {
			continue
		}
		// A live block is taken over immediately.
		s.autoCue(ctx, &items[i+1], live)
		s.markAutoEvent(next.ID)
		return
	}

	first, err := s.firstItem(ctx, next)
	if err != nil {
		return
	}
	cued := s.ctrl.Status().CuedItem
	if cued == nil || cued.ID == first.ID {
		return
	}
	s.autoCue(ctx, first, false)
	s.markAutoEvent(next.ID)
}

// hardCue cuts to the next event immediately.
func (s *Session) hardCue(ctx context.Context, next *catalog.Event) {
	s.logger.Info("hard cue", "channel", s.channel.ID, "event", next)

	first, err := s.firstItem(ctx, next)
	if err != nil {
		return
	}
	s.autoCue(ctx, first, true)
	s.markAutoEvent(next.ID)
}

func (s *Session) autoCue(ctx context.Context, item *catalog.Item, play bool) {
	if err := s.cue(ctx, item, play); err != nil {
		s.logger.Error("scheduled cue failed", "channel", s.channel.ID, "item", item, "error", err)
		return
	}
	if play {
		s.OnChange(ctx)
	}
}

func (s *Session) firstItem(ctx context.Context, ev *catalog.Event) (*catalog.Item, error) {
	items, err := s.catalog.GetBinItems(ctx, ev.BinID)
	if err != nil {
		s.logger.Error("unable to load event bin", "channel", s.channel.ID, "event", ev.ID, "error", err)
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("event %d has an empty bin", ev.ID)
	}
	return &items[0], nil
}

func (s *Session) markAutoEvent(id int64) {
	s.mu.Lock()
	s.autoEvent = id
	s.mu.Unlock()
}

// Recover restores playback after a restart from the last as-run record.
// An item that has fully aired is followed by playing the next one
// immediately; otherwise the next item is only cued.
func (s *Session) Recover(ctx context.Context) error {
	s.logger.Warn("performing recovery", "channel", s.channel.ID)

	last, err := s.asrun.Latest(ctx, s.channel.ID)
	if err != nil {
		if errors.Is(err, asrun.ErrNotFound) {
			s.logger.Error("unable to perform recovery, nothing has aired", "channel", s.channel.ID)
		}
		return fmt.Errorf("%w: %w", ErrRecoveryFailed, err)
	}

	item, err := s.catalog.GetItem(ctx, last.ItemID)
	if err != nil {
		s.logger.Error("unable to perform recovery", "channel", s.channel.ID, "item", last.ItemID, "error", err)
		return fmt.Errorf("%w: %w", ErrRecoveryFailed, err)
	}

	s.ctrl.Restore(item)
	s.mu.Lock()
	s.currentItem = item
	s.cuedLive = false
	if last.Stop == nil {
		// The interval left open by the previous run closes on the next advance.
		s.lastRun = last.ID
	}
	s.mu.Unlock()

	aired := !last.Start.Add(seconds(item.EffectiveDuration())).After(s.now())
	if aired {
		s.logger.Info("last item has been broadcast", "channel", s.channel.ID, "item", item)
	} else {
		s.logger.Info("last item has not been fully broadcast", "channel", s.channel.ID, "item", item)
	}

	if next := s.CueNext(ctx, item, aired); next == nil {
		s.logger.Error("recovery failed, unable to cue", "channel", s.channel.ID)
		return fmt.Errorf("%w: unable to cue", ErrRecoveryFailed)
	}

	s.OnChange(ctx)
	return nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
