package orderedcode

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeOne(t *testing.T, items ...interface{}) []byte {
	t.Helper()
	buf, err := Append(nil, items...)
	require.NoError(t, err)
	return buf
}

func TestUint64RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 255, 256, 1<<16 - 1, 1 << 16, 1 << 32, math.MaxUint64}
	for _, v := range cases {
		buf := encodeOne(t, v)
		var got uint64
		rest, err := Parse(buf, &got)
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, v, got)
	}
}

func TestInt64RoundTrip(t *testing.T) {
	cases := []int64{
		math.MinInt64, math.MinInt64 + 1, -1 << 48, -65, -64, -1, 0, 1, 63,
		64, 255, 1 << 20, 1 << 56, math.MaxInt64,
	}
	for _, v := range cases {
		buf := encodeOne(t, v)
		var got int64
		rest, err := Parse(buf, &got)
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, v, got)
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	cases := []float64{math.Inf(-1), -1e300, -1.5, -0.0, 0.0, 1e-300, 1.5, 1e300, math.Inf(1)}
	for _, v := range cases {
		buf := encodeOne(t, v)
		var got float64
		rest, err := Parse(buf, &got)
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, v, got)
	}

	_, err := Append(nil, math.NaN())
	assert.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"", "a", "a\x00b", "\x00", "\xff", "a\xffb\x00c", "plain ascii"}
	for _, v := range cases {
		buf := encodeOne(t, v)
		var got string
		rest, err := Parse(buf, &got)
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, v, got)
	}
}

// Lexicographic byte order must equal value order for same-typed tuples.
func TestOrderPreserving(t *testing.T) {
	ints := []int64{math.MinInt64, -1 << 40, -65, -64, -63, -2, -1, 0, 1, 63, 64, 1000, 1 << 40, math.MaxInt64}
	for i := 1; i < len(ints); i++ {
		a := encodeOne(t, ints[i-1])
		b := encodeOne(t, ints[i])
		assert.True(t, bytes.Compare(a, b) < 0, "int64 %d should sort before %d", ints[i-1], ints[i])
	}

	uints := []uint64{0, 1, 2, 255, 256, 1 << 30, math.MaxUint64}
	for i := 1; i < len(uints); i++ {
		a := encodeOne(t, uints[i-1])
		b := encodeOne(t, uints[i])
		assert.True(t, bytes.Compare(a, b) < 0)
	}

	floats := []float64{math.Inf(-1), -1e10, -1, -1e-10, 0, 1e-10, 1, 1e10, math.Inf(1)}
	for i := 1; i < len(floats); i++ {
		a := encodeOne(t, floats[i-1])
		b := encodeOne(t, floats[i])
		assert.True(t, bytes.Compare(a, b) < 0, "float64 %v should sort before %v", floats[i-1], floats[i])
	}

	strs := []string{"", "\x00", "\x00\x00", "a", "a\x00", "a\x00b", "ab", "b", "\xff"}
	sorted := append([]string(nil), strs...)
	sort.Strings(sorted)
	require.Equal(t, sorted, strs)
	for i := 1; i < len(strs); i++ {
		a := encodeOne(t, strs[i-1])
		b := encodeOne(t, strs[i])
		assert.True(t, bytes.Compare(a, b) < 0, "string %q should sort before %q", strs[i-1], strs[i])
	}

	// Infinity sorts after any string.
	for _, s := range strs {
		a := encodeOne(t, s)
		b := encodeOne(t, Infinity{})
		assert.True(t, bytes.Compare(a, b) < 0)
	}
}

func TestDescendingDirection(t *testing.T) {
	vals := []int64{-100, -1, 0, 1, 100}
	for i := 1; i < len(vals); i++ {
		a := encodeOne(t, Decr{vals[i-1]})
		b := encodeOne(t, Decr{vals[i]})
		assert.True(t, bytes.Compare(a, b) > 0, "descending %d should sort after %d", vals[i-1], vals[i])
	}

	buf := encodeOne(t, Decr{int64(-42)}, Decr{"hello"})
	var i int64
	var s string
	rest, err := Parse(buf, Decr{&i}, Decr{&s})
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.EqualValues(t, -42, i)
	assert.Equal(t, "hello", s)
}

func TestTupleRoundTrip(t *testing.T) {
	buf := encodeOne(t, int64(-1), "a\x00b", Infinity{})
	var (
		i   int64
		s   string
		end Infinity
	)
	rest, err := Parse(buf, &i, &s, &end)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.EqualValues(t, -1, i)
	assert.Equal(t, "a\x00b", s)

	// The infinity terminator sorts after the same tuple closed with any
	// finite string.
	for _, tail := range []string{"", "z", "\xfe\xfe", "a\x00b"} {
		finite := encodeOne(t, int64(-1), "a\x00b", tail)
		assert.True(t, bytes.Compare(finite, buf) < 0, "tail %q should sort before infinity", tail)
	}
}

func TestStringOrInfinity(t *testing.T) {
	buf := encodeOne(t, Infinity{})
	var soi StringOrInfinity
	rest, err := Parse(buf, &soi)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.True(t, soi.Inf)

	buf = encodeOne(t, "mid")
	soi = StringOrInfinity{}
	rest, err = Parse(buf, &soi)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.False(t, soi.Inf)
	assert.Equal(t, "mid", soi.S)

	_, err = Append(nil, StringOrInfinity{S: "x", Inf: true})
	assert.Error(t, err)
}

func TestTrailingString(t *testing.T) {
	buf := encodeOne(t, uint64(7), TrailingString("raw\x00suffix\xff"))
	var (
		n  uint64
		ts TrailingString
	)
	rest, err := Parse(buf, &n, &ts)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.EqualValues(t, 7, n)
	assert.EqualValues(t, "raw\x00suffix\xff", ts)

	_, err = Append(nil, TrailingString("x"), uint64(1))
	assert.Error(t, err)
}

func TestCorruptInput(t *testing.T) {
	cases := [][]byte{
		{},                 // empty int64/uint64/string
		{0x09},             // uint64 length 9
		{0x03, 0x01},       // uint64 truncated payload
		{0xc1},             // int64 multi-byte header, missing payload
		{0x61, 0x00},       // string: unterminated escape
		{0x61, 0x00, 0x02}, // string: invalid escape
		{0x61, 0xff, 0x01}, // string: invalid 0xff escape
		{0x61},             // string: missing terminator
	}

	var u uint64
	_, err := Parse(cases[0], &u)
	assert.Error(t, err)
	_, err = Parse(cases[1], &u)
	assert.Error(t, err)
	_, err = Parse(cases[2], &u)
	assert.Error(t, err)

	var i int64
	_, err = Parse(cases[3], &i)
	assert.Error(t, err)

	var s string
	for _, bz := range cases[4:] {
		_, err = Parse(bz, &s)
		assert.Error(t, err, "%x", bz)
	}

	var ifn Infinity
	_, err = Parse([]byte{0xff}, &ifn)
	assert.Error(t, err)
	_, err = Parse([]byte{0xff, 0xfe}, &ifn)
	assert.Error(t, err)
}
