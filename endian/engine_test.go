package endian

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWire(t *testing.T) {
	engine := Wire()
	require.Implements(t, (*EndianEngine)(nil), engine)
	require.Equal(t, binary.BigEndian, engine)

	// A box length of 18 as it appears after the key.
	b := engine.AppendUint64(nil, 18)
	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 18}, b)
	require.Equal(t, uint64(18), engine.Uint64(b))

	b = engine.AppendUint32(nil, 0x01020304)
	require.Equal(t, []byte{1, 2, 3, 4}, b)
	require.Equal(t, uint16(0x0102), engine.Uint16(b))
}
