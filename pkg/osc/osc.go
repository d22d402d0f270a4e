// Package osc encodes and decodes Open Sound Control 1.0 messages.
//
// Only the argument types used by the host are supported: int32 (i),
// float32 (f), string (s), blob (b) and MIDI (m). Bundles are decoded
// by flattening their messages.
package osc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrMalformed   = errors.New("osc: malformed packet")
	ErrUnsupported = errors.New("osc: unsupported argument type")
)

// Midi is the OSC 'm' argument: port id, status, data1, data2.
type Midi [4]byte

// Message is a single OSC message.
type Message struct {
	Address string
	Args    []any
}

// AppendBinary encodes m onto dst. Arguments must be int32, float32,
// string, []byte or Midi.
func (m Message) AppendBinary(dst []byte) ([]byte, error) {
	if !strings.HasPrefix(m.Address, "/") {
		return dst, fmt.Errorf("%w: address %q", ErrMalformed, m.Address)
	}
	dst = appendString(dst, m.Address)
	tags := make([]byte, 0, len(m.Args)+1)
	tags = append(tags, ',')
	for _, a := range m.Args {
		switch a.(type) {
		case int32:
			tags = append(tags, 'i')
		case float32:
			tags = append(tags, 'f')
		case string:
			tags = append(tags, 's')
		case []byte:
			tags = append(tags, 'b')
		case Midi:
			tags = append(tags, 'm')
		default:
			return dst, fmt.Errorf("%w: %T", ErrUnsupported, a)
		}
	}
	dst = appendString(dst, string(tags))
	for _, a := range m.Args {
		switch v := a.(type) {
		case int32:
			dst = binary.BigEndian.AppendUint32(dst, uint32(v))
		case float32:
			dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
		case string:
			dst = appendString(dst, v)
		case []byte:
			dst = binary.BigEndian.AppendUint32(dst, uint32(len(v)))
			dst = append(dst, v...)
			dst = pad(dst)
		case Midi:
			dst = append(dst, v[:]...)
		}
	}
	return dst, nil
}

// MarshalBinary encodes m into a new slice.
func (m Message) MarshalBinary() ([]byte, error) {
	return m.AppendBinary(nil)
}

// Parse decodes a packet into its messages. A bundle yields every message
// it contains, in order; time tags are ignored.
func Parse(packet []byte) ([]Message, error) {
	return parse(packet, nil, 0)
}

const maxBundleDepth = 8

func parse(packet []byte, out []Message, depth int) ([]Message, error) {
	if depth > maxBundleDepth {
		return out, fmt.Errorf("%w: bundle nesting too deep", ErrMalformed)
	}
	if len(packet) == 0 {
		return out, fmt.Errorf("%w: empty packet", ErrMalformed)
	}
	if packet[0] == '#' {
		head, rest, err := readString(packet)
		if err != nil {
			return out, err
		}
		if head != "#bundle" || len(rest) < 8 {
			return out, fmt.Errorf("%w: bad bundle header", ErrMalformed)
		}
		rest = rest[8:]
		for len(rest) > 0 {
			if len(rest) < 4 {
				return out, fmt.Errorf("%w: truncated bundle element", ErrMalformed)
			}
			size := int(binary.BigEndian.Uint32(rest))
			rest = rest[4:]
			if size < 0 || size > len(rest) {
				return out, fmt.Errorf("%w: bundle element size %d", ErrMalformed, size)
			}
			if out, err = parse(rest[:size], out, depth+1); err != nil {
				return out, err
			}
			rest = rest[size:]
		}
		return out, nil
	}
	msg, err := parseMessage(packet)
	if err != nil {
		return out, err
	}
	return append(out, msg), nil
}

func parseMessage(b []byte) (Message, error) {
	addr, rest, err := readString(b)
	if err != nil {
		return Message{}, err
	}
	if !strings.HasPrefix(addr, "/") {
		return Message{}, fmt.Errorf("%w: address %q", ErrMalformed, addr)
	}
	msg := Message{Address: addr}
	if len(rest) == 0 {
		return msg, nil
	}
	tags, rest, err := readString(rest)
	if err != nil {
		return Message{}, err
	}
	if !strings.HasPrefix(tags, ",") {
		return Message{}, fmt.Errorf("%w: type tags %q", ErrMalformed, tags)
	}
	for _, t := range tags[1:] {
		switch t {
		case 'i', 'f', 'm':
			if len(rest) < 4 {
				return Message{}, fmt.Errorf("%w: truncated argument", ErrMalformed)
			}
			word := rest[:4]
			rest = rest[4:]
			switch t {
			case 'i':
				msg.Args = append(msg.Args, int32(binary.BigEndian.Uint32(word)))
			case 'f':
				msg.Args = append(msg.Args, math.Float32frombits(binary.BigEndian.Uint32(word)))
			default:
				msg.Args = append(msg.Args, Midi{word[0], word[1], word[2], word[3]})
			}
		case 's':
			var s string
			if s, rest, err = readString(rest); err != nil {
				return Message{}, err
			}
			msg.Args = append(msg.Args, s)
		case 'b':
			if len(rest) < 4 {
				return Message{}, fmt.Errorf("%w: truncated blob", ErrMalformed)
			}
			n := int(binary.BigEndian.Uint32(rest))
			rest = rest[4:]
			if n < 0 || n > len(rest) {
				return Message{}, fmt.Errorf("%w: blob size %d", ErrMalformed, n)
			}
			msg.Args = append(msg.Args, append([]byte(nil), rest[:n]...))
			rest = rest[min(len(rest), align(n)):]
		default:
			return Message{}, fmt.Errorf("%w: tag %q", ErrUnsupported, t)
		}
	}
	return msg, nil
}

func align(n int) int { return (n + 3) &^ 3 }

func pad(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

// appendString writes s null-terminated and padded to four bytes.
func appendString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	dst = append(dst, 0)
	return pad(dst)
}

func readString(b []byte) (string, []byte, error) {
	end := -1
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	if end < 0 {
		return "", nil, fmt.Errorf("%w: unterminated string", ErrMalformed)
	}
	next := align(end + 1)
	if next > len(b) {
		return "", nil, fmt.Errorf("%w: string padding", ErrMalformed)
	}
	return string(b[:end]), b[next:], nil
}
