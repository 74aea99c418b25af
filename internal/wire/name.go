package wire

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// KeySize is the size of the key hash a Namer is keyed with.
const KeySize = 32

// nameDomain separates container-name hashes from other uses of the key hash.
var nameDomain = []byte("stow.container.name.v1")

// Namer derives container file names from ArchiveIDs.
//
// The name is a keyed BLAKE3 hash of the ArchiveID followed by the decimal
// sequence number and the codec extension:
//
//	9c1f0a2d33b4e5f6_000003.stz
//
// The hash hides the stream identity from anyone without the key; the
// sequence suffix lets readers order a folder before any container is opened.
type Namer struct {
	key [KeySize]byte
	ext string
}

// NewNamer returns a Namer for the given key hash and extension.
// The extension includes its leading dot.
func NewNamer(key [KeySize]byte, ext string) Namer {
	return Namer{key: key, ext: ext}
}

// Name returns the file name of the container with the given ID.
func (n Namer) Name(id ArchiveID) string {
	hasher, err := blake3.NewKeyed(n.key[:])
	if err != nil {
		panic("wire: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(nameDomain)
	_, _ = hasher.Write(id.Bytes())
	sum := hasher.Sum(nil)
	return fmt.Sprintf("%s_%06d%s", hex.EncodeToString(sum[:8]), id.Sequence, n.ext)
}

// ParseSequence extracts the numeric sequence suffix from a container
// file name. It reports false when the name does not carry one, for
// example after a container was renamed by hand.
func ParseSequence(name string) (uint32, bool) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	i := strings.LastIndexByte(base, '_')
	if i < 0 || i == len(base)-1 {
		return 0, false
	}
	seq, err := strconv.ParseUint(base[i+1:], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(seq), true
}
