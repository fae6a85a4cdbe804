package controller

import "errors"

// Domain errors for the controller package.
var (
	// ErrUnknownEngine is returned by New for an engine outside the
	// supported set. It is a configuration error.
	ErrUnknownEngine = errors.New("controller: unknown engine")

	// ErrLiveForbidden is returned for commands that make no sense while
	// a live source is on air.
	ErrLiveForbidden = errors.New("controller: not allowed during a live item")

	// ErrNoCurrentItem is returned when a command needs an on-air item.
	ErrNoCurrentItem = errors.New("controller: no current item")

	// ErrNothingCued is returned when a command needs a cued item.
	ErrNothingCued = errors.New("controller: no item is cued")

	// ErrUnsupportedKey is returned by Set for properties the engine does
	// not expose.
	ErrUnsupportedKey = errors.New("controller: unsupported property")
)
