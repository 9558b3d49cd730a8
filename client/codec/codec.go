// Package codec encrypts message plaintext into the transport envelope and
// decrypts it on read. Stateless and side-effect-free: every call generates
// a fresh content key and nonce, so the same plaintext never produces the
// same ciphertext twice.
package codec

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/mbeoliero/vesper/client/keyring"
	"github.com/mbeoliero/vesper/pkg/errcode"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	contentKeySize = 32
	nonceSize      = 24
)

// Envelope is the wire form of an encrypted message: ciphertext plus the
// content key wrapped once per party. Either wrapped key recovers the same
// content key, so sender and recipient decrypt identical plaintext.
type Envelope struct {
	Content         string `json:"content"`
	KeyForSender    string `json:"key_for_sender"`
	KeyForRecipient string `json:"key_for_recipient"`
}

// Encrypt seals plaintext under a fresh random content key and wraps that
// key for both parties.
func Encrypt(plaintext string, senderKey, recipientKey *keyring.PublicKey) (*Envelope, error) {
	if senderKey == nil || recipientKey == nil {
		return nil, errcode.ErrInvalidKeyFormat
	}

	var contentKey [contentKeySize]byte
	if _, err := rand.Read(contentKey[:]); err != nil {
		return nil, errcode.ErrEncryptionFailure.Wrap(err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errcode.ErrEncryptionFailure.Wrap(err)
	}

	// nonce||ciphertext, base64
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &contentKey)

	keyForSender, err := wrapKey(&contentKey, senderKey)
	if err != nil {
		return nil, err
	}
	keyForRecipient, err := wrapKey(&contentKey, recipientKey)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Content:         base64.StdEncoding.EncodeToString(sealed),
		KeyForSender:    keyForSender,
		KeyForRecipient: keyForRecipient,
	}, nil
}

// Decrypt unwraps the content key with the viewer's key pair and opens the
// ciphertext. wrappedKey must be the blob matching the viewer's role. A
// wrapped key that does not correspond to the viewer's private key fails
// with ErrDecryptionFailure; callers render a placeholder instead of the
// message body.
func Decrypt(content, wrappedKey string, viewer *keyring.KeyPair) (string, error) {
	if viewer == nil || wrappedKey == "" {
		return "", errcode.ErrDecryptionFailure
	}

	contentKey, err := unwrapKey(wrappedKey, viewer)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(content)
	if err != nil || len(sealed) < nonceSize {
		return "", errcode.ErrDecryptionFailure
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, contentKey)
	if !ok {
		return "", errcode.ErrDecryptionFailure
	}
	return string(plaintext), nil
}

// wrapKey seals the content key under one party's public key. Anonymous
// sealing keeps the envelope self-contained: unwrapping needs only the
// party's own key pair.
func wrapKey(contentKey *[contentKeySize]byte, to *keyring.PublicKey) (string, error) {
	sealed, err := box.SealAnonymous(nil, contentKey[:], to.Bytes(), rand.Reader)
	if err != nil {
		return "", errcode.ErrEncryptionFailure.Wrap(err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func unwrapKey(wrappedKey string, viewer *keyring.KeyPair) (*[contentKeySize]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(wrappedKey)
	if err != nil {
		return nil, errcode.ErrDecryptionFailure
	}

	raw, ok := box.OpenAnonymous(nil, sealed, viewer.Public().Bytes(), viewer.PrivateBytes())
	if !ok || len(raw) != contentKeySize {
		return nil, errcode.ErrDecryptionFailure
	}

	var contentKey [contentKeySize]byte
	copy(contentKey[:], raw)
	return &contentKey, nil
}
