package svarint

import (
	"math"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		data     []byte
		expected int64
		consumed int
	}{
		{"zero", []byte{0x00}, 0, 1},
		{"two bytes", []byte{0x81, 0x01}, 0b10000001, 2},
		{"three bytes", []byte{0x81, 0x81, 0x01}, 0b100000010000001, 3},
		{"nine bytes", append(bytesOf(0x81, 8), 0x01), 0x0204081020408101, 9},
		{"trailing bytes ignored", []byte{0x7f, 0xff}, 0x7f, 1},
		{"minus one", bytesOf(0xff, 9), -1, 9},
	}

	for _, aTestCase := range testCases {
		t.Run(aTestCase.name, func(t *testing.T) {
			actual, n, err := Get(aTestCase.data)
			require.NoError(t, err)
			assert.Equal(t, aTestCase.expected, actual)
			assert.Equal(t, aTestCase.consumed, n)
		})
	}
}

func TestGet_Malformed(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{nil, {0x80}, bytesOf(0x81, 8)} {
		_, _, err := Get(data)
		assert.ErrorIs(t, err, ErrMalformed)
	}

	_, _, err := GetAt([]byte{0x01}, 2)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestGetAt(t *testing.T) {
	t.Parallel()

	buf := Append([]byte{0xaa, 0xbb}, 300)
	x, next, err := GetAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(300), x)
	assert.Equal(t, len(buf), next)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	values := []int64{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 1<<56 - 1, 1 << 56, math.MaxInt64, math.MinInt64, -1}
	for range 1000 {
		values = append(values, gofakeit.Int64())
	}

	for _, v := range values {
		buf := Append(nil, v)
		assert.Len(t, buf, Length(v), "value %d", v)

		actual, n, err := Get(buf)
		require.NoError(t, err)
		assert.Equal(t, v, actual)
		assert.Equal(t, len(buf), n)
	}
}

func TestLength(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, Length(0))
	assert.Equal(t, 1, Length(127))
	assert.Equal(t, 2, Length(128))
	assert.Equal(t, 8, Length(uint64(1)<<56-1))
	assert.Equal(t, 9, Length(uint64(1)<<56))
	assert.Equal(t, 9, Length(int64(-1)))
}

func bytesOf(b byte, n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return buf
}
