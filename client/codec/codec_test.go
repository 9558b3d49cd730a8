package codec

import (
	"testing"

	"github.com/mbeoliero/vesper/client/keyring"
	"github.com/mbeoliero/vesper/pkg/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePair(t *testing.T) *keyring.KeyPair {
	t.Helper()
	kp, err := keyring.Generate()
	require.NoError(t, err)
	return kp
}

func TestRoundTripBothParties(t *testing.T) {
	sender := makePair(t)
	recipient := makePair(t)

	plaintexts := []string{
		"Salaam",
		"",
		"a longer message with spaces, punctuation... and unicode: 你好 \U0001f600",
		string(make([]byte, 4096)),
	}

	for _, plaintext := range plaintexts {
		env, err := Encrypt(plaintext, sender.Public(), recipient.Public())
		require.NoError(t, err)
		require.NotEmpty(t, env.Content)
		require.NotEmpty(t, env.KeyForSender)
		require.NotEmpty(t, env.KeyForRecipient)

		bySender, err := Decrypt(env.Content, env.KeyForSender, sender)
		require.NoError(t, err)
		assert.Equal(t, plaintext, bySender)

		byRecipient, err := Decrypt(env.Content, env.KeyForRecipient, recipient)
		require.NoError(t, err)
		assert.Equal(t, plaintext, byRecipient)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	sender := makePair(t)
	recipient := makePair(t)

	first, err := Encrypt("same plaintext", sender.Public(), recipient.Public())
	require.NoError(t, err)
	second, err := Encrypt("same plaintext", sender.Public(), recipient.Public())
	require.NoError(t, err)

	assert.NotEqual(t, first.Content, second.Content)
	assert.NotEqual(t, first.KeyForSender, second.KeyForSender)
	assert.NotEqual(t, first.KeyForRecipient, second.KeyForRecipient)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	sender := makePair(t)
	recipient := makePair(t)
	outsider := makePair(t)

	env, err := Encrypt("secret", sender.Public(), recipient.Public())
	require.NoError(t, err)

	// An outsider cannot unwrap either blob
	_, err = Decrypt(env.Content, env.KeyForRecipient, outsider)
	assert.ErrorIs(t, err, errcode.ErrDecryptionFailure)

	// The recipient's key pair cannot open the sender's blob
	_, err = Decrypt(env.Content, env.KeyForSender, recipient)
	assert.ErrorIs(t, err, errcode.ErrDecryptionFailure)
}

func TestDecryptMalformedInput(t *testing.T) {
	viewer := makePair(t)
	peer := makePair(t)

	env, err := Encrypt("hello", viewer.Public(), peer.Public())
	require.NoError(t, err)

	_, err = Decrypt("%%%not-base64%%%", env.KeyForSender, viewer)
	assert.ErrorIs(t, err, errcode.ErrDecryptionFailure)

	_, err = Decrypt(env.Content, "%%%not-base64%%%", viewer)
	assert.ErrorIs(t, err, errcode.ErrDecryptionFailure)

	_, err = Decrypt(env.Content, "", viewer)
	assert.ErrorIs(t, err, errcode.ErrDecryptionFailure)

	// Tampered ciphertext must not open
	tampered := "AAAA" + env.Content[4:]
	if tampered != env.Content {
		_, err = Decrypt(tampered, env.KeyForSender, viewer)
		assert.ErrorIs(t, err, errcode.ErrDecryptionFailure)
	}
}
