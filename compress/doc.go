// Package compress provides general-purpose codecs for entropy-coded
// descriptor sub-streams.
//
// The transform package produces one byte stream per descriptor
// subsequence. When a parameter set selects the compressed entropy
// backend, each finished stream is passed through one of these codecs
// before it is framed into a block:
//   - None: bytes are stored as produced
//   - Zstd: best ratio, suited to archival datasets
//   - S2: balanced speed and ratio
//   - LZ4: fastest decompression, suited to random-access reads
//   - Snappy: block format compatible with existing Snappy tooling
//
// # Zstd implementations
//
// Zstd uses the pure Go klauspost/compress/zstd encoder by default. Building
// with cgo and the gozstd tag switches to the libzstd binding from
// valyala/gozstd:
//
//	go build -tags gozstd ./...
//
// Both produce standard zstd frames, so streams written by one are readable
// by the other.
//
// # Thread Safety
//
// All codecs are stateless values backed by pooled encoders and may be
// shared across goroutines, including the workers of Dataset.ReadRanges.
package compress
