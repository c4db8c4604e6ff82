package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataClass(t *testing.T) {
	require.Equal(t, "HM", ClassHM.String())
	require.Equal(t, "Unknown", DataClass(0).String())
	require.True(t, ClassM.IsAligned())
	require.False(t, ClassU.IsAligned())
	require.False(t, DataClass(7).Valid())

	c, ok := ParseDataClass("U")
	require.True(t, ok)
	require.Equal(t, ClassU, c)

	_, ok = ParseDataClass("X")
	require.False(t, ok)
}

func TestDescriptorID(t *testing.T) {
	require.Equal(t, 18, NumDescriptors)
	require.Equal(t, "MMTYPE", DescMMTYPE.String())
	require.Equal(t, DescriptorID(12), DescRTYPE)

	d, ok := ParseDescriptorID("RFTT")
	require.True(t, ok)
	require.Equal(t, DescRFTT, d)
	require.False(t, DescriptorID(18).Valid())
}

func TestAlphabet(t *testing.T) {
	require.Equal(t, 5, AlphabetDNA.Size())
	require.Equal(t, 3, AlphabetDNA.BitsPerSymbol())
	require.Equal(t, 16, AlphabetIUPAC.Size())
	require.Equal(t, 5, AlphabetIUPAC.BitsPerSymbol())
}

func TestChecksumAlgorithm(t *testing.T) {
	require.Equal(t, 16, ChecksumMD5.Len())
	require.Equal(t, 32, ChecksumSHA256.Len())
	require.Len(t, ChecksumMD5.Sum([]byte("ACGT")), 16)
	require.Len(t, ChecksumSHA256.Sum([]byte("ACGT")), 32)
	require.Nil(t, ChecksumAlgorithm(9).Sum(nil))
	require.Zero(t, ChecksumAlgorithm(9).Len())
}

func TestEnumStrings(t *testing.T) {
	require.Equal(t, "Reference", DatasetReference.String())
	require.Equal(t, "FASTA", ReferenceFASTA.String())
	require.Equal(t, "Snappy", CompressionSnappy.String())
	require.Equal(t, "Unknown", CompressionType(0).String())
}
