package signature

import (
	"bytes"
	"testing"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/payload"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, write func(w *bitio.Writer) error, wantBits int64) *bitio.Reader {
	t.Helper()

	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	require.NoError(t, write(w))
	require.Equal(t, wantBits, w.BitsWritten())
	require.NoError(t, w.Flush())

	return bitio.NewReader(payload.FromBytes(buf.Bytes()))
}

func TestPackLayout(t *testing.T) {
	p := Params{IntegerBits: 8, BitsPerSymbol: 3}

	// Two symbols per integer; variable length adds a zero terminator.
	ints, err := p.Pack(Signature{0, 1, 2})
	require.NoError(t, err)
	require.Equal(t, []uint64{0b001_010, 0b011_000}, ints)

	fixed := Params{IntegerBits: 8, BitsPerSymbol: 3, Length: 3}
	ints, err = fixed.Pack(Signature{0, 1, 2})
	require.NoError(t, err)
	require.Equal(t, []uint64{0b001_010, 0b011}, ints)
}

func TestSignatureRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		sig    Signature
	}{
		{"variable dna", Params{IntegerBits: 16, BitsPerSymbol: 3}, Signature{0, 1, 2, 3, 4, 0, 1}},
		{"variable exact multiple", Params{IntegerBits: 6, BitsPerSymbol: 3}, Signature{4, 4}},
		{"variable empty", Params{IntegerBits: 6, BitsPerSymbol: 3}, Signature{}},
		{"fixed dna", Params{IntegerBits: 16, BitsPerSymbol: 3, Length: 7}, Signature{0, 1, 2, 3, 4, 0, 1}},
		{"fixed iupac", Params{IntegerBits: 32, BitsPerSymbol: 5, Length: 10}, Signature{15, 0, 7, 3, 1, 2, 14, 9, 8, 11}},
		{"wide integers", Params{IntegerBits: 64, BitsPerSymbol: 5}, Signature{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bits, err := tt.params.SizeInBits(tt.sig)
			require.NoError(t, err)

			r := roundTrip(t, func(w *bitio.Writer) error { return tt.params.Write(w, tt.sig) }, bits)
			got := tt.params.Read(r)
			require.NoError(t, r.Err())
			require.Equal(t, []uint8(tt.sig), []uint8(got))
			require.Equal(t, bits, r.BitPosition())
		})
	}
}

func TestSignatureValidation(t *testing.T) {
	_, err := Params{IntegerBits: 2, BitsPerSymbol: 3}.Pack(Signature{1})
	require.ErrorIs(t, err, errs.ErrInvalidValue)

	_, err = Params{IntegerBits: 8, BitsPerSymbol: 3, Length: 2}.Pack(Signature{1})
	require.ErrorIs(t, err, errs.ErrInvalidValue)

	_, err = Params{IntegerBits: 8, BitsPerSymbol: 3}.Pack(Signature{7})
	require.ErrorIs(t, err, errs.ErrInvalidValue)
}

func TestListForms(t *testing.T) {
	p := Params{IntegerBits: 12, BitsPerSymbol: 3, Length: 4}
	sigs := []Signature{{0, 1, 2, 3}, {3, 2, 1, 0}}

	t.Run("bare when count equals base", func(t *testing.T) {
		bits, err := p.ListSizeInBits(sigs, 2)
		require.NoError(t, err)
		require.Equal(t, int64(24), bits)

		r := roundTrip(t, func(w *bitio.Writer) error { return p.WriteList(w, sigs, 2) }, bits)
		got := p.ReadList(r, 2)
		require.NoError(t, r.Err())
		require.Equal(t, sigs, got)
	})

	t.Run("counted otherwise", func(t *testing.T) {
		bits, err := p.ListSizeInBits(sigs, 3)
		require.NoError(t, err)
		require.Equal(t, int64(24+12+16), bits)

		r := roundTrip(t, func(w *bitio.Writer) error { return p.WriteList(w, sigs, 3) }, bits)
		got := p.ReadList(r, 3)
		require.NoError(t, r.Err())
		require.Equal(t, sigs, got)
	})

	t.Run("empty list", func(t *testing.T) {
		bits, err := p.ListSizeInBits(nil, 1)
		require.NoError(t, err)

		r := roundTrip(t, func(w *bitio.Writer) error { return p.WriteList(w, nil, 1) }, bits)
		require.Empty(t, p.ReadList(r, 1))
		require.NoError(t, r.Err())
	})
}

func TestIntegerList(t *testing.T) {
	vals := []uint64{0x12, 0x34, 0x56}

	for _, base := range []int{3, 2} {
		bits := IntegerListSizeInBits(vals, 8, base)
		r := roundTrip(t, func(w *bitio.Writer) error {
			WriteIntegerList(w, vals, 8, base)
			return w.Err()
		}, bits)

		got := ReadIntegerList(r, 8, base)
		require.NoError(t, r.Err())
		require.Equal(t, vals, got)
	}

	// A bare list starting with the sentinel value falls back to the counted form.
	clash := []uint64{0xFF, 0x01}
	bits := IntegerListSizeInBits(clash, 8, 2)
	require.Equal(t, int64(16+8+16), bits)

	r := roundTrip(t, func(w *bitio.Writer) error {
		WriteIntegerList(w, clash, 8, 2)
		return w.Err()
	}, bits)
	require.Equal(t, clash, ReadIntegerList(r, 8, 2))
}

func TestReadListTruncated(t *testing.T) {
	p := Params{IntegerBits: 8, BitsPerSymbol: 3, Length: 2}
	r := bitio.NewReader(payload.FromBytes([]byte{0xFF, 0x00, 0x10}))
	require.Nil(t, p.ReadList(r, 1))
	require.ErrorIs(t, r.Err(), errs.ErrLimitExceeded)
}
