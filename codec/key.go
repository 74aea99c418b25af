package codec

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of a key hash.
const KeySize = 32

// keyDomain is the BLAKE3 derive-key context for passphrase hashing.
const keyDomain = "stow 2026 container key hash v1"

// hkdfInfoStream separates stream keys from any other HKDF use of the key hash.
var hkdfInfoStream = []byte("stow.container.stream.v1")

// DeriveKeyHash hashes a secret into the key hash used to key container
// streams and names. An empty secret yields a fixed, public key hash.
func DeriveKeyHash(secret []byte) [KeySize]byte {
	var out [KeySize]byte
	blake3.DeriveKey(keyDomain, secret, out[:])
	return out
}

// newStreamCipher derives the per-container ChaCha20 keystream from the
// key hash salted with the container's ArchiveID.
func newStreamCipher(keyHash [KeySize]byte, id []byte) (*chacha20.Cipher, error) {
	key := make([]byte, chacha20.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, keyHash[:], id, hkdfInfoStream), key); err != nil {
		return nil, fmt.Errorf("derive stream key: %w", err)
	}
	// Every container has its own key, so a fixed nonce is never reused.
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("stream cipher: %w", err)
	}
	return c, nil
}
