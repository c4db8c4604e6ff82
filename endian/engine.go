// Package endian fixes the byte order of multi-byte fields.
//
// Every integer in a container file, from box lengths to the size prefixes
// of framed subsequences, is stored most significant byte first. Code that
// touches raw bytes takes its byte order from Wire rather than naming
// binary.BigEndian directly.
//
//	engine := endian.Wire()
//	buf = engine.AppendUint32(buf, uint32(len(stream)))
//
// Engines are stateless and safe for concurrent use.
package endian

import "encoding/binary"

// EndianEngine combines the ByteOrder and AppendByteOrder interfaces of
// encoding/binary.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Wire returns the byte order of the container format.
func Wire() EndianEngine {
	return binary.BigEndian
}
