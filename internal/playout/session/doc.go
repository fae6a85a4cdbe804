// Package session orchestrates playout on one channel.
//
// A Session ties together the catalog read model, the sequencing resolver,
// the device controller, the as-run log, plugins and status publishers. It
// owns the channel-level state (live overlay, current event, the auto-cued
// event marker) while the controller owns the device-level cue state.
//
// The session exposes the operator commands served by the control API and
// implements the callbacks the controller makes after confirmed advances.
// Run drives the one-second scheduling tick that starts soft and hard
// events on time.
//
// Lock ordering: the session never holds its mutex while calling into the
// controller, and the controller never holds its own while calling back.
package session
