// Package keyring manages the per-user asymmetric key pair used for message
// key wrapping. The public half is published to the key directory; the
// private half never leaves the client.
package keyring

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/mbeoliero/vesper/pkg/errcode"
	"golang.org/x/crypto/nacl/box"
)

// KeySize is the byte length of both key halves
const KeySize = 32

// PublicKey is a parsed, usable public key handle
type PublicKey struct {
	raw [KeySize]byte
}

// Bytes returns the raw key material
func (k *PublicKey) Bytes() *[KeySize]byte {
	return &k.raw
}

// Encode returns the base64 form published to the key directory
func (k *PublicKey) Encode() string {
	return base64.StdEncoding.EncodeToString(k.raw[:])
}

// KeyPair is a user's persistent asymmetric key pair
type KeyPair struct {
	public  PublicKey
	private [KeySize]byte
}

// Generate creates a fresh key pair
func Generate() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errcode.ErrEncryptionFailure.Wrap(err)
	}

	kp := &KeyPair{}
	kp.public.raw = *pub
	kp.private = *priv
	return kp, nil
}

// Public returns the public half
func (kp *KeyPair) Public() *PublicKey {
	return &kp.public
}

// PrivateBytes exposes the private half to the codec. Callers must not
// persist or transmit it.
func (kp *KeyPair) PrivateBytes() *[KeySize]byte {
	return &kp.private
}

// Import restores a key pair from its base64-encoded halves, for clients
// reloading a locally stored identity.
func Import(publicB64, privateB64 string) (*KeyPair, error) {
	pub, err := ImportPublicKey(publicB64)
	if err != nil {
		return nil, err
	}

	privRaw, err := base64.StdEncoding.DecodeString(privateB64)
	if err != nil || len(privRaw) != KeySize {
		return nil, errcode.ErrInvalidKeyFormat
	}

	kp := &KeyPair{public: *pub}
	copy(kp.private[:], privRaw)
	return kp, nil
}

// ExportPrivate returns the base64 private half for local storage
func (kp *KeyPair) ExportPrivate() string {
	return base64.StdEncoding.EncodeToString(kp.private[:])
}

// ImportPublicKey parses a peer's published public key. Malformed material
// fails fast with ErrInvalidKeyFormat so a message is never composed against
// a bad key.
func ImportPublicKey(raw string) (*PublicKey, error) {
	if raw == "" {
		return nil, errcode.ErrInvalidKeyFormat
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errcode.ErrInvalidKeyFormat.Wrap(err)
	}
	if len(decoded) != KeySize {
		return nil, errcode.ErrInvalidKeyFormat
	}

	pub := &PublicKey{}
	copy(pub.raw[:], decoded)
	return pub, nil
}
