package session

import (
	"context"
	"fmt"

	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/controller"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/plugin"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/sequence"
)

// CueRequest selects the item to cue. Item takes precedence over ItemID.
type CueRequest struct {
	ItemID int64
	Item   *catalog.Item
	// Play starts the item immediately instead of preloading it.
	Play bool
}

// Cue preloads an item, or plays it when req.Play is set.
//
// Returns:
//   - error: ErrMissingArgument, catalog.ErrItemNotFound, ErrVirtualItem,
//     ErrLiveSourceMissing, ErrNotPlayable or a device error
func (s *Session) Cue(ctx context.Context, req CueRequest) error {
	item := req.Item
	if item == nil {
		if req.ItemID == 0 {
			return fmt.Errorf("%w: no item specified", ErrMissingArgument)
		}
		var err error
		if item, err = s.catalog.GetItem(ctx, req.ItemID); err != nil {
			return fmt.Errorf("unable to cue: %w", err)
		}
	}

	if err := s.cue(ctx, item, req.Play); err != nil {
		return err
	}
	if req.Play {
		s.OnChange(ctx)
	}
	return nil
}

// cue resolves the file for item and hands it to the controller. Session
// state changes only when the controller accepts the cue.
func (s *Session) cue(ctx context.Context, item *catalog.Item, play bool) error {
	req := controller.CueRequest{
		Item: item,
		Play: play,
		Auto: item.RunMode != catalog.RunManual,
		Loop: item.Loop,
	}

	if item.Role == catalog.RoleLive {
		if s.channel.LiveSource == "" {
			return ErrLiveSourceMissing
		}
		s.logger.Info("next item is live", "channel", s.channel.ID, "item", item)
		req.Fname = s.channel.LiveSource
		if err := s.ctrl.Cue(ctx, req); err != nil {
			return err
		}
		s.mu.Lock()
		s.cuedLive = true
		s.mu.Unlock()
		return nil
	}

	if item.IsVirtual() {
		return fmt.Errorf("%w: %s", ErrVirtualItem, item)
	}

	fname, err := s.playableFile(ctx, item)
	if err != nil {
		return err
	}
	req.Fname = fname

	if err := s.ctrl.Cue(ctx, req); err != nil {
		return err
	}
	s.mu.Lock()
	s.cuedLive = false
	s.mu.Unlock()
	return nil
}

// playableFile picks the channel's playout rendition, falling back to the
// asset's own file when remote playback is allowed.
func (s *Session) playableFile(ctx context.Context, item *catalog.Item) (string, error) {
	status, err := s.catalog.PlayoutStatus(ctx, item.AssetID, s.channel.ID)
	if err != nil {
		return "", fmt.Errorf("reading playout status: %w", err)
	}

	switch status {
	case catalog.StatusOnline, catalog.StatusCreating, catalog.StatusUnknown:
		if _, ok := s.storages.PlayoutPath(s.channel, item.AssetID); ok {
			return s.storages.PlayoutName(item.AssetID), nil
		}
	}

	if s.channel.AllowRemote && item.Asset != nil && item.Asset.Status.Available() {
		if path, err := s.storages.AssetPath(item.Asset); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: unable to cue %s playout file", ErrNotPlayable, status)
}

// CueForward cues the item after the cued one. It returns nil without error
// when nothing is cued.
func (s *Session) CueForward(ctx context.Context) (*catalog.Item, error) {
	return s.cueAdjacent(ctx, sequence.Next)
}

// CueBackward cues the item before the cued one. It returns nil without
// error when nothing is cued.
func (s *Session) CueBackward(ctx context.Context) (*catalog.Item, error) {
	return s.cueAdjacent(ctx, sequence.Prev)
}

func (s *Session) cueAdjacent(ctx context.Context, dir sequence.Direction) (*catalog.Item, error) {
	cued := s.ctrl.Status().CuedItem
	if cued == nil {
		return nil, nil //nolint:nilnil // Nothing cued is not an error
	}
	next, err := s.resolver.Resolve(ctx, cued, dir, sequence.Options{Force: true})
	if err != nil {
		return nil, err
	}
	if err := s.cue(ctx, next, false); err != nil {
		return nil, err
	}
	return next, nil
}

// CueNext cues the item following item, or the current item when item is
// nil. Items that fail to cue are skipped; after maxCueLevel consecutive
// failures it gives up. It returns the cued item or nil.
func (s *Session) CueNext(ctx context.Context, item *catalog.Item, play bool) *catalog.Item {
	return s.cueNext(ctx, item, 0, play)
}

func (s *Session) cueNext(ctx context.Context, item *catalog.Item, level int, play bool) *catalog.Item {
	if item == nil {
		item = s.ctrl.Status().CurrentItem
	}
	if item == nil {
		s.logger.Warn("unable to cue next item, no current clip", "channel", s.channel.ID)
		return nil
	}

	s.mu.Lock()
	forceNextEvent := s.autoEvent != 0
	s.mu.Unlock()

	next, err := s.resolver.Resolve(ctx, item, sequence.Next, sequence.Options{ForceNextEvent: forceNextEvent})
	if err != nil {
		s.logger.Error("unable to resolve next item", "channel", s.channel.ID, "item", item, "error", err)
		return nil
	}

	s.logger.Info("auto-cueing", "channel", s.channel.ID, "item", next)
	if err := s.cue(ctx, next, play); err != nil {
		if level > maxCueLevel {
			s.logger.Error("unable to cue any following item", "channel", s.channel.ID, "item", next, "error", err)
			return nil
		}
		s.logger.Warn("unable to cue, trying next", "channel", s.channel.ID, "item", next, "error", err)
		return s.cueNext(ctx, next, level+1, play)
	}
	return next
}

// Take starts the cued item.
func (s *Session) Take(ctx context.Context) error {
	return s.ctrl.Take(ctx)
}

// Retake restarts the current item.
func (s *Session) Retake(ctx context.Context) error {
	return s.ctrl.Retake(ctx)
}

// Freeze toggles pause.
func (s *Session) Freeze(ctx context.Context) error {
	return s.ctrl.Freeze(ctx)
}

// Abort stops playback and reloads the cued item.
func (s *Session) Abort(ctx context.Context) error {
	return s.ctrl.Abort(ctx)
}

// Clear empties the feed layer.
func (s *Session) Clear(ctx context.Context) error {
	return s.ctrl.Clear(ctx)
}

// Set changes a controller property. A changed loop flag is persisted onto
// the current item.
func (s *Session) Set(ctx context.Context, key, value string) error {
	if key == "" || value == "" {
		return fmt.Errorf("%w: key and value are required", ErrMissingArgument)
	}
	if err := s.ctrl.Set(ctx, key, value); err != nil {
		return err
	}
	if key != "loop" {
		return nil
	}

	loop := controller.ParseBool(value)
	s.mu.Lock()
	item := s.currentItem
	changed := item != nil && item.Loop != loop
	if changed {
		// Items are shared with the controller and plugins; swap in a copy.
		updated := *item
		updated.Loop = loop
		item = &updated
		s.currentItem = item
	}
	s.mu.Unlock()

	if !changed {
		return nil
	}
	if err := s.catalog.SetItemLoop(ctx, item.ID, loop); err != nil {
		return fmt.Errorf("saving loop flag: %w", err)
	}
	s.logger.Info("loop changed", "channel", s.channel.ID, "item", item.ID, "loop", loop)
	return nil
}

// PluginList returns manifests of plugins that expose controls.
func (s *Session) PluginList() []plugin.Manifest {
	return s.plugins.Load().List()
}

// PluginExec runs an operator action on a plugin.
func (s *Session) PluginExec(ctx context.Context, name, action string, data map[string]any) error {
	if name == "" || action == "" {
		return fmt.Errorf("%w: plugin or action not specified", ErrMissingArgument)
	}
	s.logger.Debug("executing plugin action", "channel", s.channel.ID, "plugin", name, "action", action)
	return s.plugins.Load().Exec(ctx, name, action, data)
}
