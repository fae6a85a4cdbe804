// Package controller drives a playout device for one channel.
//
// A Controller turns the channel session's intentions (cue, take, freeze and
// so on) into device commands and watches device telemetry to learn what
// actually happened. The set of engines is closed and chosen once from
// configuration by New; an unknown engine name is a configuration error.
//
// # Cue state
//
// Every controller tracks cueing with the same tri-state:
//
//	Idle ──Cue──▶ Cueing(target) ──telemetry shows target──▶ Cued
//	  ▲                │                                      │
//	  └──cmd failed────┘◀──────────stuck 5s / advance─────────┘
//
// A failed command restores the state from before the call, so callers
// never observe a half-applied cue.
//
// # Callbacks
//
// The controller reports back through the Host interface. Host methods are
// always called without the controller's lock held, so a host may call
// straight back into the controller.
package controller
