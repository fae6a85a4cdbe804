// Package osc receives CasparCG playback telemetry over UDP.
//
// CasparCG publishes its state as Open Sound Control 1.0 packets: bundles
// of messages addressed by path, for example
//
//	/channel/1/stage/layer/10/foreground/file/path   "nebula-42.mxf"
//	/channel/1/stage/layer/10/foreground/file/time   12.4 1800.0
//	/channel/1/stage/layer/10/background/producer    "empty"
//
// The Listener decodes each datagram and stores the values in a Tree of
// last-known facts per channel and layer. It never calls back into the
// playout code: controllers poll Snapshot on their own schedule.
// Malformed datagrams are counted and dropped; UDP offers nothing to retry.
package osc
