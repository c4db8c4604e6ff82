package transform

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/payload"
)

func signed(vs ...int64) []uint64 {
	out := make([]uint64, len(vs))
	for i, v := range vs {
		out[i] = uint64(v) //nolint:gosec
	}

	return out
}

func binarizeAll(t *testing.T, bz binarizer, values []uint64) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	for _, v := range values {
		require.NoError(t, bz.encode(w, v))
	}
	w.Align()
	require.NoError(t, w.Flush())

	return buf.Bytes()
}

func TestBinarizationRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		b      Binarization
		out    int
		values []uint64
	}{
		{"BI", Binarization{ID: BinaryCoding}, 8, []uint64{0, 1, 200, 255}},
		{"TU", Binarization{ID: TruncatedUnary, CMax: 5}, 8, []uint64{0, 1, 4, 5}},
		{"EG", Binarization{ID: ExpGolomb}, 63, []uint64{0, 1, 2, 3, 7, 1000, 1 << 40}},
		{"SEG", Binarization{ID: SignedExpGolomb}, 32, signed(-1000, -1, 0, 1, 5)},
		{"TEG", Binarization{ID: TruncatedExpGolomb, CMax: 3}, 32, []uint64{0, 1, 2, 3, 4, 100}},
		{"STEG", Binarization{ID: SignedTruncatedExpGolomb, CMax: 2}, 32, signed(-5, -1, 0, 1, 2, 9)},
		{"SUTU", Binarization{ID: SplitUnitWiseTruncatedUnary, SplitUnitSize: 3}, 8, []uint64{0, 7, 8, 255}},
		{"SSUTU", Binarization{ID: SignedSplitUnitWiseTruncatedUnary, SplitUnitSize: 4}, 8, signed(-200, 0, 17, 255)},
		{"DTU", Binarization{ID: DoubleTruncatedUnary, CMax: 4, SplitUnitSize: 2}, 8, []uint64{0, 3, 4, 5, 255}},
		{"DTU no prefix", Binarization{ID: DoubleTruncatedUnary, SplitUnitSize: 4}, 8, []uint64{0, 9, 255}},
		{"SDTU", Binarization{ID: SignedDoubleTruncatedUnary, CMax: 2, SplitUnitSize: 4}, 8, signed(-100, 0, 2, 250)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bz, err := newBinarizer(tt.b, tt.out, tt.out, uint64(tt.b.CMax))
			require.NoError(t, err)

			data := binarizeAll(t, bz, tt.values)
			r := bitio.NewReader(payload.FromBytes(data))
			for i, want := range tt.values {
				require.Equal(t, want, bz.decode(r), "value %d", i)
			}
			require.NoError(t, r.Err())
		})
	}
}

func TestBinarizationBits(t *testing.T) {
	t.Run("exp-Golomb", func(t *testing.T) {
		bz, err := newBinarizer(Binarization{ID: ExpGolomb}, 32, 32, 0)
		require.NoError(t, err)
		// 1 010 011 00100
		require.Equal(t, []byte{0xA6, 0x40}, binarizeAll(t, bz, []uint64{0, 1, 2, 3}))
	})

	t.Run("truncated unary", func(t *testing.T) {
		bz, err := newBinarizer(Binarization{ID: TruncatedUnary, CMax: 3}, 8, 8, 3)
		require.NoError(t, err)
		// 0 110 111
		require.Equal(t, []byte{0x6E}, binarizeAll(t, bz, []uint64{0, 2, 3}))
	})

	t.Run("signed sign bit only when non-zero", func(t *testing.T) {
		bz, err := newBinarizer(Binarization{ID: SignedDoubleTruncatedUnary, CMax: 2, SplitUnitSize: 4}, 8, 8, 2)
		require.NoError(t, err)
		// zero is the single TU bin 0; -1 is TU "10" then sign 1: 0101
		require.Equal(t, []byte{0x50}, binarizeAll(t, bz, signed(0, -1)))
	})
}

func TestSignedMapping(t *testing.T) {
	pairs := []struct {
		s int64
		u uint64
	}{{0, 0}, {1, 1}, {-1, 2}, {2, 3}, {-2, 4}, {1000, 1999}, {-1000, 2000}}
	for _, p := range pairs {
		require.Equal(t, p.u, zigzag(p.s))
		require.Equal(t, p.s, unzigzag(p.u))
	}
}

func TestBinarizationErrors(t *testing.T) {
	_, err := newBinarizer(Binarization{ID: SplitUnitWiseTruncatedUnary}, 8, 8, 0)
	require.ErrorIs(t, err, errs.ErrInvalidValue)

	_, err = newBinarizer(Binarization{ID: 12}, 8, 8, 0)
	require.ErrorIs(t, err, errs.ErrUnknownVariant)

	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	tu, err := newBinarizer(Binarization{ID: TruncatedUnary, CMax: 3}, 8, 8, 3)
	require.NoError(t, err)
	require.ErrorIs(t, tu.encode(w, 4), errs.ErrInvalidValue)

	bi, err := newBinarizer(Binarization{ID: BinaryCoding}, 4, 4, 0)
	require.NoError(t, err)
	require.ErrorIs(t, bi.encode(w, 16), errs.ErrInvalidValue)

	sutu, err := newBinarizer(Binarization{ID: SplitUnitWiseTruncatedUnary, SplitUnitSize: 2}, 4, 4, 0)
	require.NoError(t, err)
	require.ErrorIs(t, sutu.encode(w, 16), errs.ErrInvalidValue)
}

func TestExpGolombRejectsLongPrefix(t *testing.T) {
	r := bitio.NewReader(payload.FromBytes(make([]byte, 16)))
	readEG(r)
	require.ErrorIs(t, r.Err(), errs.ErrStructural)
}

func TestParseBinarizationID(t *testing.T) {
	for id := BinaryCoding; id <= SignedDoubleTruncatedUnary; id++ {
		got, ok := ParseBinarizationID(id.String())
		require.True(t, ok)
		require.Equal(t, id, got)
	}
	_, ok := ParseBinarizationID("CABAC")
	require.False(t, ok)
	require.Equal(t, "Unknown", BinarizationID(10).String())
}
