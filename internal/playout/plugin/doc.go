// Package plugin runs per-channel playout plugins.
//
// A plugin is declared by a YAML manifest in the plugins directory, one file
// per plugin named "<name>.yaml". The manifest's kind selects a built-in
// implementation:
//
//   - cg: drives a CasparCG template on its own layer
//   - nowplaying: publishes now/next information on every change
//
// Plugins receive four callbacks from the channel session: OnInit once at
// load, OnChange after every confirmed advance, OnMain on every progress
// tick and OnCommand for operator actions. OnMain runs on its own goroutine
// and a plugin never has more than one OnMain in flight; ticks that arrive
// while it is busy are skipped.
//
// Example manifest:
//
//	name: lowerthird
//	title: Lower third
//	kind: cg
//	id_layer: 20
//	settings:
//	  template: nebula/lowerthird
//	  hold: "8"
//	slots:
//	  - type: text
//	    name: text
//	  - type: action
//	    name: show
//	  - type: action
//	    name: hide
package plugin
