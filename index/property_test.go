package index

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/payload"
)

// gapTable lays out one class with one descriptor over two sequences; every
// access unit and block sits gap+1 bytes after the previous one.
func gapTable(gaps0, gaps1 []uint8) (*MasterIndexTable, []uint64, error) {
	l := Layout{
		DatasetType:    format.DatasetAligned,
		SequenceBlocks: []uint32{uint32(len(gaps0)), uint32(len(gaps1))}, //nolint:gosec
		Classes:        []ClassLayout{{Class: format.ClassM, NumDescriptors: 1}},
	}
	b, err := NewBuilder(l)
	if err != nil {
		return nil, nil, err
	}

	var offsets []uint64
	next := uint64(0)
	for s, gaps := range [][]uint8{gaps0, gaps1} {
		for a, g := range gaps {
			next += uint64(g) + 1
			offsets = append(offsets, next)
			tr := Triplet{Seq: SequenceIndex(s), AU: uint32(a)} //nolint:gosec
			if err := b.SetAccessUnit(tr, AccessUnitEntry{ByteOffset: next, BlockOffsets: []uint64{next}}); err != nil {
				return nil, nil, err
			}
		}
	}
	m, err := b.Build()

	return m, offsets, err
}

func TestIndexProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("next block start chains every recorded offset", prop.ForAll(
		func(gaps0, gaps1 []uint8) bool {
			m, offsets, err := gapTable(gaps0, gaps1)
			if err != nil {
				return false
			}
			for i, off := range offsets {
				next, ok := m.NextBlockStart(0, 0, off)
				if i == len(offsets)-1 {
					if ok {
						return false
					}
					continue
				}
				if !ok || next != offsets[i+1] {
					return false
				}
			}

			return m.BlocksOrdered()
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("encoded table decodes to the same lookups", prop.ForAll(
		func(gaps0, gaps1 []uint8) bool {
			m, offsets, err := gapTable(gaps0, gaps1)
			if err != nil {
				return false
			}

			var buf bytes.Buffer
			w := bitio.NewWriter(&buf)
			if err := box.WriteWithHeader(w, m); err != nil || w.Flush() != nil {
				return false
			}
			decoded := New(m.Layout())
			if err := box.Read(bitio.NewReader(payload.FromBytes(buf.Bytes())), decoded); err != nil {
				return false
			}

			for _, off := range offsets {
				tr, ok := decoded.TripletAt(off)
				if !ok {
					return false
				}
				block, err := decoded.BlockByteOffset(tr, 0)
				if err != nil || block != off {
					return false
				}
			}

			return decoded.Validate() == nil
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
