package osc

import (
	"encoding/binary"
	"math"
)

// Test helpers that build OSC packets the way CasparCG sends them.

func oscString(s string) []byte {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func encodeMessage(addr string, args ...any) []byte {
	tags := ","
	var payload []byte
	for _, a := range args {
		switch v := a.(type) {
		case int32:
			tags += "i"
			payload = binary.BigEndian.AppendUint32(payload, uint32(v))
		case int64:
			tags += "h"
			payload = binary.BigEndian.AppendUint64(payload, uint64(v))
		case float32:
			tags += "f"
			payload = binary.BigEndian.AppendUint32(payload, math.Float32bits(v))
		case float64:
			tags += "d"
			payload = binary.BigEndian.AppendUint64(payload, math.Float64bits(v))
		case string:
			tags += "s"
			payload = append(payload, oscString(v)...)
		case bool:
			if v {
				tags += "T"
			} else {
				tags += "F"
			}
		case []byte:
			tags += "b"
			payload = binary.BigEndian.AppendUint32(payload, uint32(len(v)))
			payload = append(payload, v...)
			for len(payload)%4 != 0 {
				payload = append(payload, 0)
			}
		case nil:
			tags += "N"
		}
	}
	out := oscString(addr)
	out = append(out, oscString(tags)...)
	return append(out, payload...)
}

func encodeBundle(elements ...[]byte) []byte {
	out := []byte(bundleTag)
	out = binary.BigEndian.AppendUint64(out, 1) // immediately
	for _, e := range elements {
		out = binary.BigEndian.AppendUint32(out, uint32(len(e)))
		out = append(out, e...)
	}
	return out
}
