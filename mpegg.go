// Package mpegg reads and writes box-structured genomic container files.
//
// A file holds dataset groups; each dataset stores compressed sequencing
// records as access units, either with their descriptor blocks inline
// (block-header mode) or split into one descriptor stream per data class
// and descriptor (columnar mode). A master index table maps (reference
// sequence, data class, access unit, descriptor) coordinates to byte
// offsets, so a single block can be located without scanning the file.
//
// # Core Features
//
//   - Size-checked box framing: every declared length is verified on read
//   - Zero-copy payloads over in-memory, memory-mapped or S3 arenas
//   - Master index table lookups and block range delimiting
//   - Subsequence transforms (equality, match, run-length, merge) over a
//     pluggable entropy backend with optional Zstd, S2, LZ4 or Snappy
//     compression of the coded streams
//   - YAML encoding profiles compiled into parameter sets
//   - Prometheus metrics and slog debug records for decoders
//
// # Basic Usage
//
// Building and writing a columnar dataset:
//
//	h := entity.NewDatasetHeader(1, 1)
//	h.MIT = true
//	h.Sequences = []entity.Sequence{{ID: 0}}
//	h.Classes = []entity.ClassEntry{{Class: format.ClassP, Descriptors: []format.DescriptorID{format.DescPOS}}}
//
//	b, _ := entity.NewDatasetBuilder(h)
//	_ = b.AddAccessUnit(0, &entity.AccessUnitHeader{Class: format.ClassP, Start: 100, End: 200},
//	    entity.Block{Descriptor: format.DescPOS, Payload: payload.FromBytes(data)})
//	ds, _ := b.Build()
//
//	f := &entity.File{
//	    Header: entity.NewFileHeader(),
//	    Groups: []*entity.DatasetGroup{entity.NewDatasetGroup(1, ds)},
//	}
//	_ = mpegg.WriteFile("reads.mgb", f)
//
// Random access to one descriptor block:
//
//	a, _ := mpegg.OpenFile("reads.mgb")
//	defer a.Close()
//
//	ds, _ := a.Groups[0].Dataset(1)
//	p, err := ds.DescriptorPayload(index.Triplet{Seq: 0, Class: 0, AU: 0}, format.DescPOS)
//	if errs.IsLookupMiss(err) {
//	    // the block is not present in this dataset
//	}
//
// # Package Structure
//
// This package wraps the entity decoder and encoder for the common cases.
// The entity package exposes the box hierarchy, the index package the
// master index table, and the transform package the descriptor coders.
package mpegg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/arloliu/mpegg/entity"
	"github.com/arloliu/mpegg/payload"
)

// Archive is a decoded file whose payloads still point into an open arena.
// It must be closed once no payload taken from it is in use.
type Archive struct {
	*entity.File

	closer io.Closer
}

// Close releases the underlying arena.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}

	return a.closer.Close()
}

// ReadFile reads and decodes the whole file at path into memory.
func ReadFile(path string, opts ...entity.DecoderOption) (*entity.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return decodeArena(payload.BytesArena(data), opts)
}

// OpenFile memory-maps the file at path and decodes its structure. Payloads
// are read from the mapping on demand.
func OpenFile(path string, opts ...entity.DecoderOption) (*Archive, error) {
	arena, err := payload.OpenFile(path)
	if err != nil {
		return nil, err
	}

	f, err := decodeArena(arena, opts)
	if err != nil {
		return nil, errors.Join(err, arena.Close())
	}

	return &Archive{File: f, closer: arena}, nil
}

// OpenS3 decodes the object s3://bucket/key. Payload reads become ranged GET
// requests issued with ctx.
func OpenS3(ctx context.Context, bucket, key string, opts ...entity.DecoderOption) (*Archive, error) {
	arena, err := payload.OpenS3(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	f, err := decodeArena(arena, opts)
	if err != nil {
		return nil, err
	}

	return &Archive{File: f}, nil
}

// Decode reads r to the end and decodes it.
func Decode(r io.Reader, opts ...entity.DecoderOption) (*entity.File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read container: %w", err)
	}

	return decodeArena(payload.BytesArena(data), opts)
}

func decodeArena(arena payload.Arena, opts []entity.DecoderOption) (*entity.File, error) {
	dec, err := entity.NewDecoder(arena, opts...)
	if err != nil {
		return nil, err
	}

	return dec.DecodeFile()
}

// Encode writes f to w.
func Encode(w io.Writer, f *entity.File, opts ...entity.EncoderOption) error {
	enc, err := entity.NewEncoder(w, opts...)
	if err != nil {
		return err
	}

	return enc.EncodeFile(f)
}

// WriteFile writes f to a new file at path, replacing any existing one.
func WriteFile(path string, f *entity.File, opts ...entity.EncoderOption) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(out, f, opts...); err != nil {
		return errors.Join(err, out.Close())
	}

	return out.Close()
}
