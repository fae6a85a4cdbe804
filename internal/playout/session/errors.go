package session

import "errors"

// Domain errors for the session package.
var (
	// ErrMissingArgument is returned when a command lacks a required field.
	ErrMissingArgument = errors.New("session: missing argument")

	// ErrLiveSourceMissing is returned when cueing a live item on a channel
	// without a configured live source.
	ErrLiveSourceMissing = errors.New("session: live source is not configured")

	// ErrVirtualItem is returned when cueing an item that has no asset.
	ErrVirtualItem = errors.New("session: unable to cue virtual item")

	// ErrNotPlayable is returned when no playable file exists for an item.
	ErrNotPlayable = errors.New("session: no playable file")

	// ErrRecoveryFailed is returned when Recover cannot restore playback.
	ErrRecoveryFailed = errors.New("session: recovery failed")
)
