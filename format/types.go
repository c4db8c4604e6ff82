package format

import (
	"crypto/md5"
	"crypto/sha256"
)

type (
	DataClass         uint8
	DatasetType       uint8
	AlphabetID        uint8
	DescriptorID      uint8
	ChecksumAlgorithm uint8
	ReferenceType     uint8
	CompressionType   uint8
)

const (
	ClassP  DataClass = 1 // ClassP represents perfectly matching reads.
	ClassN  DataClass = 2 // ClassN represents reads with substitutions of unknown bases only.
	ClassM  DataClass = 3 // ClassM represents reads with substitutions.
	ClassI  DataClass = 4 // ClassI represents reads with insertions, deletions and clips.
	ClassHM DataClass = 5 // ClassHM represents half-mapped read pairs.
	ClassU  DataClass = 6 // ClassU represents unmapped reads.
)

const (
	DatasetNonAligned DatasetType = 0 // DatasetNonAligned carries unaligned reads only.
	DatasetAligned    DatasetType = 1 // DatasetAligned carries reads aligned to a reference.
	DatasetReference  DatasetType = 2 // DatasetReference carries a reference sequence.
)

const (
	AlphabetDNA   AlphabetID = 0 // AlphabetDNA is {A,C,G,T,N}.
	AlphabetIUPAC AlphabetID = 1 // AlphabetIUPAC is the 16 symbol IUPAC nucleotide alphabet.
)

// Descriptor identifiers.
const (
	DescPOS DescriptorID = iota
	DescRCOMP
	DescFLAGS
	DescMMPOS
	DescMMTYPE
	DescCLIPS
	DescUREADS
	DescRLEN
	DescPAIR
	DescMSCORE
	DescMMAP
	DescMSAR
	DescRTYPE
	DescRGROUP
	DescQV
	DescRNAME
	DescRFTP
	DescRFTT
)

// NumDescriptors is the number of defined descriptor identifiers.
const NumDescriptors = int(DescRFTT) + 1

const (
	ChecksumMD5    ChecksumAlgorithm = 0 // ChecksumMD5 is a 128-bit MD5 digest.
	ChecksumSHA256 ChecksumAlgorithm = 1 // ChecksumSHA256 is a 256-bit SHA-2 digest.
)

const (
	ReferenceMPEGG ReferenceType = 0 // ReferenceMPEGG points at a dataset inside another container.
	ReferenceRaw   ReferenceType = 1 // ReferenceRaw points at a raw sequence file.
	ReferenceFASTA ReferenceType = 2 // ReferenceFASTA points at a FASTA file.
)

const (
	CompressionNone   CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd   CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2     CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4    CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
	CompressionSnappy CompressionType = 0x5 // CompressionSnappy represents Snappy block compression.
)

var classNames = [...]string{"", "P", "N", "M", "I", "HM", "U"}

func (c DataClass) String() string {
	if c >= ClassP && c <= ClassU {
		return classNames[c]
	}

	return "Unknown"
}

// Valid reports whether c is one of the six defined data classes.
func (c DataClass) Valid() bool {
	return c >= ClassP && c <= ClassU
}

// IsAligned reports whether records of this class carry a genomic position.
func (c DataClass) IsAligned() bool {
	return c >= ClassP && c <= ClassHM
}

// ParseDataClass returns the class named s ("P", "N", "M", "I", "HM" or "U").
func ParseDataClass(s string) (DataClass, bool) {
	for i := ClassP; i <= ClassU; i++ {
		if classNames[i] == s {
			return i, true
		}
	}

	return 0, false
}

func (t DatasetType) String() string {
	switch t {
	case DatasetNonAligned:
		return "NonAligned"
	case DatasetAligned:
		return "Aligned"
	case DatasetReference:
		return "Reference"
	default:
		return "Unknown"
	}
}

// Valid reports whether t is a defined dataset type.
func (t DatasetType) Valid() bool {
	return t <= DatasetReference
}

func (a AlphabetID) String() string {
	switch a {
	case AlphabetDNA:
		return "DNA"
	case AlphabetIUPAC:
		return "IUPAC"
	default:
		return "Unknown"
	}
}

// Valid reports whether a is a defined alphabet.
func (a AlphabetID) Valid() bool {
	return a <= AlphabetIUPAC
}

// Size returns the number of symbols in the alphabet.
func (a AlphabetID) Size() int {
	if a == AlphabetIUPAC {
		return 16
	}

	return 5
}

// BitsPerSymbol returns the width used to pack one symbol code plus one, so
// that the zero value stays free as a terminator.
func (a AlphabetID) BitsPerSymbol() int {
	if a == AlphabetIUPAC {
		return 5
	}

	return 3
}

var descriptorNames = [...]string{
	"POS", "RCOMP", "FLAGS", "MMPOS", "MMTYPE", "CLIPS", "UREADS", "RLEN", "PAIR",
	"MSCORE", "MMAP", "MSAR", "RTYPE", "RGROUP", "QV", "RNAME", "RFTP", "RFTT",
}

func (d DescriptorID) String() string {
	if int(d) < NumDescriptors {
		return descriptorNames[d]
	}

	return "Unknown"
}

// Valid reports whether d is a defined descriptor.
func (d DescriptorID) Valid() bool {
	return int(d) < NumDescriptors
}

// ParseDescriptorID returns the descriptor named s, e.g. "MMTYPE".
func ParseDescriptorID(s string) (DescriptorID, bool) {
	for i, name := range descriptorNames {
		if name == s {
			return DescriptorID(i), true
		}
	}

	return 0, false
}

func (c ChecksumAlgorithm) String() string {
	switch c {
	case ChecksumMD5:
		return "MD5"
	case ChecksumSHA256:
		return "SHA256"
	default:
		return "Unknown"
	}
}

// Valid reports whether c is a defined checksum algorithm.
func (c ChecksumAlgorithm) Valid() bool {
	return c <= ChecksumSHA256
}

// Len returns the digest length in bytes, or 0 for an unknown algorithm.
func (c ChecksumAlgorithm) Len() int {
	switch c {
	case ChecksumMD5:
		return md5.Size
	case ChecksumSHA256:
		return sha256.Size
	default:
		return 0
	}
}

// Sum computes the digest of data with algorithm c.
func (c ChecksumAlgorithm) Sum(data []byte) []byte {
	switch c {
	case ChecksumMD5:
		sum := md5.Sum(data)
		return sum[:]
	case ChecksumSHA256:
		sum := sha256.Sum256(data)
		return sum[:]
	default:
		return nil
	}
}

func (r ReferenceType) String() string {
	switch r {
	case ReferenceMPEGG:
		return "MPEGG"
	case ReferenceRaw:
		return "Raw"
	case ReferenceFASTA:
		return "FASTA"
	default:
		return "Unknown"
	}
}

// Valid reports whether r is a defined reference type.
func (r ReferenceType) Valid() bool {
	return r <= ReferenceFASTA
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	case CompressionSnappy:
		return "Snappy"
	default:
		return "Unknown"
	}
}
