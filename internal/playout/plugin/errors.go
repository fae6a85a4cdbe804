package plugin

import "errors"

// Domain errors for the plugin package.
var (
	// ErrNotFound is returned when no active plugin has the requested name.
	ErrNotFound = errors.New("plugin: not found or inactive")

	// ErrCommandFailed is returned when a plugin rejects a command.
	ErrCommandFailed = errors.New("plugin: command failed")

	// ErrUnknownKind is returned for a manifest kind with no implementation.
	ErrUnknownKind = errors.New("plugin: unknown kind")

	// ErrInvalidManifest is returned when a manifest fails validation.
	ErrInvalidManifest = errors.New("plugin: invalid manifest")
)
