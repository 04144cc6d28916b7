// Package orderedcode implements an order-preserving encoding for tuples of
// typed values: the lexicographic order of two encoded buffers equals the
// order of the decoded tuples, field by field, under each field's declared
// direction (ascending unless wrapped in Decr).
//
// The byte forms follow github.com/google/orderedcode so keys written by
// either implementation sort identically.
package orderedcode

import (
	"errors"
	"fmt"
	"math"
)

// Infinity sorts after every string.
type Infinity struct{}

// TrailingString is a raw suffix. It must be the last item of an encoding
// and consumes the remainder of the buffer when parsed.
type TrailingString string

// StringOrInfinity decodes either a string or the Infinity literal.
type StringOrInfinity struct {
	S   string
	Inf bool
}

// Decr marks a single field as descending: every byte the field emits is
// XOR-ed with 0xff. For Append, Val holds the value; for Parse, a pointer.
type Decr struct {
	Val interface{}
}

// ErrCorrupt is returned (wrapped) whenever a decoder meets bytes that no
// encoder produces.
var ErrCorrupt = errors.New("orderedcode: corrupt input")

const (
	increasing = 0x00
	decreasing = 0xff
)

var (
	term  = []byte{0x00, 0x01}
	lit00 = []byte{0x00, 0xff}
	litff = []byte{0xff, 0x00}
	inf   = []byte{0xff, 0xff}
	msb   = []byte{0x00, 0x80, 0xc0, 0xe0, 0xf0, 0xf8, 0xfc, 0xfe}
)

// Append encodes items in order onto buf and returns the extended buffer.
// Supported item types: int64, uint64, float64, string, Infinity,
// TrailingString, StringOrInfinity and Decr of any of these.
func Append(buf []byte, items ...interface{}) ([]byte, error) {
	for i, item := range items {
		if _, ok := item.(TrailingString); ok && i != len(items)-1 {
			return nil, errors.New("orderedcode: TrailingString must be the last item")
		}
		var err error
		buf, err = appendItem(buf, item, false)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendItem(buf []byte, item interface{}, descending bool) ([]byte, error) {
	if d, ok := item.(Decr); ok {
		if descending {
			return nil, errors.New("orderedcode: nested Decr")
		}
		return appendItem(buf, d.Val, true)
	}

	mark := len(buf)
	var err error
	switch v := item.(type) {
	case int64:
		buf = appendInt64(buf, v)
	case uint64:
		buf = appendUint64(buf, v)
	case float64:
		buf, err = appendFloat64(buf, v)
	case string:
		buf = appendString(buf, v)
	case Infinity:
		buf = append(buf, inf...)
	case TrailingString:
		buf = append(buf, v...)
	case StringOrInfinity:
		if v.Inf {
			if v.S != "" {
				return nil, errors.New("orderedcode: StringOrInfinity has both string and infinity set")
			}
			buf = append(buf, inf...)
		} else {
			buf = appendString(buf, v.S)
		}
	default:
		return nil, fmt.Errorf("orderedcode: unsupported type %T", item)
	}
	if err != nil {
		return nil, err
	}
	if descending {
		invert(buf[mark:])
	}
	return buf, nil
}

// Parse decodes len(items) fields from buf and returns the unconsumed
// remainder. Each item is a pointer to the expected type, or a Decr whose
// Val is such a pointer for descending fields.
func Parse(buf []byte, items ...interface{}) ([]byte, error) {
	for _, item := range items {
		var err error
		buf, err = parseItem(buf, item, increasing)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func parseItem(buf []byte, item interface{}, dir byte) ([]byte, error) {
	if d, ok := item.(Decr); ok {
		if dir != increasing {
			return nil, errors.New("orderedcode: nested Decr")
		}
		return parseItem(buf, d.Val, decreasing)
	}

	switch p := item.(type) {
	case *int64:
		return parseInt64(buf, dir, p)
	case *uint64:
		return parseUint64(buf, dir, p)
	case *float64:
		return parseFloat64(buf, dir, p)
	case *string:
		return parseString(buf, dir, p)
	case *Infinity:
		return parseInfinity(buf, dir)
	case *TrailingString:
		return parseTrailingString(buf, dir, p)
	case *StringOrInfinity:
		// Two-byte lookahead decides the branch; no error-driven fork.
		if len(buf) >= 2 && buf[0]^dir == inf[0] && buf[1]^dir == inf[1] {
			p.Inf = true
			p.S = ""
			return buf[2:], nil
		}
		p.Inf = false
		return parseString(buf, dir, &p.S)
	default:
		return nil, fmt.Errorf("orderedcode: unsupported type %T", item)
	}
}

//---------------------------------------------------------------------------
// scalar forms

// appendUint64 writes a length byte followed by the minimal big-endian
// representation. Zero encodes as the single byte 0x00.
func appendUint64(buf []byte, v uint64) []byte {
	var tmp [9]byte
	i := 8
	for ; v > 0; v >>= 8 {
		tmp[i] = byte(v)
		i--
	}
	tmp[i] = byte(8 - i)
	return append(buf, tmp[i:]...)
}

func parseUint64(buf []byte, dir byte, out *uint64) ([]byte, error) {
	if len(buf) == 0 {
		return nil, ErrCorrupt
	}
	n := int(buf[0] ^ dir)
	buf = buf[1:]
	if n > 8 || len(buf) < n {
		return nil, ErrCorrupt
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(buf[i]^dir)
	}
	*out = v
	return buf[n:], nil
}

// appendInt64 writes the short single-byte form for [-64, 64) and the
// unary-length-header big-endian form otherwise, with negative values
// bitwise inverted so that smaller values sort first.
func appendInt64(buf []byte, v int64) []byte {
	if v >= -64 && v < 64 {
		return append(buf, byte(v)^0x80)
	}
	neg := v < 0
	if neg {
		v = ^v
	}
	n := 1
	var tmp [10]byte
	i := 9
	for ; v > 0; v >>= 8 {
		tmp[i] = byte(v)
		i--
		n++
	}
	lfb := n > 7
	if lfb {
		n -= 7
	}
	if tmp[i+1] < 1<<uint(8-n) {
		n--
		i++
	}
	tmp[i] |= msb[n]
	if lfb {
		i--
		tmp[i] = 0xff
	}
	b := tmp[i:]
	if neg {
		invert(b)
	}
	return append(buf, b...)
}

func parseInt64(buf []byte, dir byte, out *int64) ([]byte, error) {
	if len(buf) == 0 {
		return nil, ErrCorrupt
	}
	c := buf[0] ^ dir
	buf = buf[1:]
	if c >= 0x40 && c < 0xc0 {
		*out = int64(int8(c ^ 0x80))
		return buf, nil
	}
	neg := c&0x80 == 0
	if neg {
		c = ^c
		dir = ^dir
	}
	n := 0
	if c == 0xff {
		if len(buf) == 0 {
			return nil, ErrCorrupt
		}
		c = buf[0] ^ dir
		buf = buf[1:]
		if c > 0xc0 {
			return nil, ErrCorrupt
		}
		n = 7
	}
	for mask := byte(0x80); c&mask != 0; mask >>= 1 {
		c &^= mask
		n++
	}
	x := int64(c)
	for i := 1; i < n; i++ {
		if len(buf) == 0 {
			return nil, ErrCorrupt
		}
		x = x<<8 | int64(buf[0]^dir)
		buf = buf[1:]
	}
	if neg {
		x = ^x
	}
	*out = x
	return buf, nil
}

// appendFloat64 maps the IEEE-754 bits to a sortable int64 (negatives are
// remapped below MinInt64's positive range) and reuses the int64 form.
func appendFloat64(buf []byte, v float64) ([]byte, error) {
	if math.IsNaN(v) {
		return nil, errors.New("orderedcode: cannot append NaN")
	}
	i := int64(math.Float64bits(v))
	if i < 0 {
		i = math.MinInt64 - i
	}
	return appendInt64(buf, i), nil
}

func parseFloat64(buf []byte, dir byte, out *float64) ([]byte, error) {
	var i int64
	buf, err := parseInt64(buf, dir, &i)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		i = math.MinInt64 - i
	}
	v := math.Float64frombits(uint64(i))
	if math.IsNaN(v) {
		return nil, ErrCorrupt
	}
	*out = v
	return buf, nil
}

//---------------------------------------------------------------------------
// string forms

// appendString escapes 0x00 as 0x00 0xff and 0xff as 0xff 0x00, and closes
// with the 0x00 0x01 terminator, keeping the form self-delimited while
// preserving order.
func appendString(buf []byte, v string) []byte {
	l := 0
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case 0x00:
			buf = append(buf, v[l:i]...)
			buf = append(buf, lit00...)
			l = i + 1
		case 0xff:
			buf = append(buf, v[l:i]...)
			buf = append(buf, litff...)
			l = i + 1
		}
	}
	buf = append(buf, v[l:]...)
	return append(buf, term...)
}

func parseString(buf []byte, dir byte, out *string) ([]byte, error) {
	var s []byte
	for len(buf) > 0 {
		c := buf[0] ^ dir
		buf = buf[1:]
		switch c {
		case 0x00:
			if len(buf) == 0 {
				return nil, ErrCorrupt
			}
			e := buf[0] ^ dir
			buf = buf[1:]
			switch e {
			case 0x01:
				*out = string(s)
				return buf, nil
			case 0xff:
				s = append(s, 0x00)
			default:
				return nil, ErrCorrupt
			}
		case 0xff:
			if len(buf) == 0 || buf[0]^dir != 0x00 {
				return nil, ErrCorrupt
			}
			buf = buf[1:]
			s = append(s, 0xff)
		default:
			s = append(s, c)
		}
	}
	return nil, ErrCorrupt
}

func parseInfinity(buf []byte, dir byte) ([]byte, error) {
	if len(buf) < 2 || buf[0]^dir != inf[0] || buf[1]^dir != inf[1] {
		return nil, ErrCorrupt
	}
	return buf[2:], nil
}

func parseTrailingString(buf []byte, dir byte, out *TrailingString) ([]byte, error) {
	if dir == increasing {
		*out = TrailingString(buf)
		return nil, nil
	}
	b := make([]byte, len(buf))
	copy(b, buf)
	invert(b)
	*out = TrailingString(b)
	return nil, nil
}

func invert(b []byte) {
	for i := range b {
		b[i] ^= 0xff
	}
}
