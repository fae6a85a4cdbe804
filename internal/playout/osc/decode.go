package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const bundleTag = "#bundle\x00"

// maxBundleDepth bounds bundle nesting in hostile input.
const maxBundleDepth = 8

// Message is a decoded OSC message.
type Message struct {
	Address string
	Args    []any
}

// Decode parses a datagram into its messages. Bundles are flattened in
// order; their time tags are ignored because CasparCG sends them for
// immediate application.
func Decode(data []byte) ([]Message, error) {
	var msgs []Message
	if err := decodePacket(data, 0, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func decodePacket(data []byte, depth int, out *[]Message) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty packet", ErrMalformedPacket)
	}
	switch data[0] {
	case '#':
		return decodeBundle(data, depth, out)
	case '/':
		msg, err := decodeMessage(data)
		if err != nil {
			return err
		}
		*out = append(*out, msg)
		return nil
	}
	return fmt.Errorf("%w: unexpected leading byte 0x%02x", ErrMalformedPacket, data[0])
}

func decodeBundle(data []byte, depth int, out *[]Message) error {
	if depth >= maxBundleDepth {
		return fmt.Errorf("%w: bundles nested too deep", ErrMalformedPacket)
	}
	if len(data) < 16 || string(data[:8]) != bundleTag {
		return fmt.Errorf("%w: bad bundle header", ErrMalformedPacket)
	}

	rest := data[16:] // header + 8 byte time tag
	for len(rest) > 0 {
		if len(rest) < 4 {
			return fmt.Errorf("%w: truncated bundle element size", ErrMalformedPacket)
		}
		size := int(binary.BigEndian.Uint32(rest[:4]))
		rest = rest[4:]
		if size <= 0 || size > len(rest) || size%4 != 0 {
			return fmt.Errorf("%w: bundle element size %d", ErrMalformedPacket, size)
		}
		if err := decodePacket(rest[:size], depth+1, out); err != nil {
			return err
		}
		rest = rest[size:]
	}
	return nil
}

func decodeMessage(data []byte) (Message, error) {
	var msg Message

	addr, rest, err := readString(data)
	if err != nil {
		return msg, fmt.Errorf("reading address: %w", err)
	}
	msg.Address = addr

	if len(rest) == 0 {
		return msg, nil // OSC 1.0 allows messages without a type tag string
	}

	tags, rest, err := readString(rest)
	if err != nil {
		return msg, fmt.Errorf("reading type tags: %w", err)
	}
	if len(tags) == 0 || tags[0] != ',' {
		return msg, fmt.Errorf("%w: type tags must start with ','", ErrMalformedPacket)
	}

	msg.Args = make([]any, 0, len(tags)-1)
	for _, tag := range []byte(tags[1:]) {
		var arg any
		arg, rest, err = readArg(tag, rest)
		if err != nil {
			return msg, fmt.Errorf("argument %q of %s: %w", tag, addr, err)
		}
		msg.Args = append(msg.Args, arg)
	}
	return msg, nil
}

func readArg(tag byte, data []byte) (any, []byte, error) {
	switch tag {
	case 'i':
		if len(data) < 4 {
			return nil, nil, ErrMalformedPacket
		}
		return int32(binary.BigEndian.Uint32(data)), data[4:], nil //nolint:gosec // OSC int32 is two's complement
	case 'f':
		if len(data) < 4 {
			return nil, nil, ErrMalformedPacket
		}
		return math.Float32frombits(binary.BigEndian.Uint32(data)), data[4:], nil
	case 'h':
		if len(data) < 8 {
			return nil, nil, ErrMalformedPacket
		}
		return int64(binary.BigEndian.Uint64(data)), data[8:], nil //nolint:gosec // OSC int64 is two's complement
	case 'd':
		if len(data) < 8 {
			return nil, nil, ErrMalformedPacket
		}
		return math.Float64frombits(binary.BigEndian.Uint64(data)), data[8:], nil
	case 't':
		if len(data) < 8 {
			return nil, nil, ErrMalformedPacket
		}
		return binary.BigEndian.Uint64(data), data[8:], nil
	case 's', 'S':
		return readString(data)
	case 'b':
		if len(data) < 4 {
			return nil, nil, ErrMalformedPacket
		}
		n := int(binary.BigEndian.Uint32(data))
		data = data[4:]
		padded := pad4(n)
		if n < 0 || padded > len(data) {
			return nil, nil, ErrMalformedPacket
		}
		blob := make([]byte, n)
		copy(blob, data[:n])
		return blob, data[padded:], nil
	case 'T':
		return true, data, nil
	case 'F':
		return false, data, nil
	case 'N', 'I':
		return nil, data, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedType, tag)
}

// readString reads a NUL terminated string padded to a 4 byte boundary.
func readString(data []byte) (string, []byte, error) {
	end := bytes.IndexByte(data, 0)
	if end < 0 {
		return "", nil, fmt.Errorf("%w: unterminated string", ErrMalformedPacket)
	}
	next := pad4(end + 1)
	if next > len(data) {
		return "", nil, fmt.Errorf("%w: string padding", ErrMalformedPacket)
	}
	return string(data[:end]), data[next:], nil
}

func pad4(n int) int {
	return (n + 3) &^ 3
}
