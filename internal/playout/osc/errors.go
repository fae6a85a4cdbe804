package osc

import "errors"

// Domain errors for the osc package.
var (
	// ErrMalformedPacket is returned when a datagram is not valid OSC.
	ErrMalformedPacket = errors.New("osc: malformed packet")

	// ErrUnsupportedType is returned for argument type tags the decoder
	// does not implement.
	ErrUnsupportedType = errors.New("osc: unsupported argument type")

	// ErrListenerClosed is returned when starting a closed listener.
	ErrListenerClosed = errors.New("osc: listener closed")
)
