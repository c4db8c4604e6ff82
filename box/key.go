package box

import "fmt"

// Key is the 4 character tag that opens every box.
type Key [4]byte

// Box keys defined by the container format.
var (
	KeyFileHeader             = MustKey("flhd")
	KeyDatasetGroup           = MustKey("dgcn")
	KeyDatasetGroupHeader     = MustKey("dghd")
	KeyReference              = MustKey("refr")
	KeyReferenceMetadata      = MustKey("rfmd")
	KeyLabelList              = MustKey("labl")
	KeyLabel                  = MustKey("lbll")
	KeyDataset                = MustKey("dtcn")
	KeyDatasetHeader          = MustKey("dthd")
	KeyParameterSet           = MustKey("pars")
	KeyMasterIndexTable       = MustKey("mitb")
	KeyAccessUnit             = MustKey("aucn")
	KeyAccessUnitHeader       = MustKey("auhd")
	KeyAccessUnitInformation  = MustKey("auhd")
	KeyAccessUnitProtection   = MustKey("aupr")
	KeyDescriptorStream       = MustKey("dscn")
	KeyDescriptorStreamHeader = MustKey("dshd")
	KeyDatasetMetadata        = MustKey("dtmd")
	KeyDatasetProtection      = MustKey("dtpr")
	KeyDatasetGroupMetadata   = MustKey("dgmd")
	KeyDatasetGroupProtection = MustKey("dgpr")
)

// MustKey converts a 4 character ASCII string into a Key. It panics on any other input.
func MustKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}

	return k
}

// ParseKey converts a 4 character printable ASCII string into a Key.
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != len(k) {
		return k, fmt.Errorf("box key %q must be 4 bytes", s)
	}
	copy(k[:], s)
	if !k.Valid() {
		return k, fmt.Errorf("box key %q is not printable ASCII", s)
	}

	return k, nil
}

// Valid reports whether every byte of k is printable ASCII.
func (k Key) Valid() bool {
	for _, c := range k {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}

	return true
}

func (k Key) String() string {
	if !k.Valid() {
		return fmt.Sprintf("%x", k[:])
	}

	return string(k[:])
}
