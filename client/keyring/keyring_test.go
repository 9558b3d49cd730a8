package keyring

import (
	"testing"

	"github.com/mbeoliero/vesper/pkg/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndRoundTripImport(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	require.NotNil(t, kp)

	restored, err := Import(kp.Public().Encode(), kp.ExportPrivate())
	require.NoError(t, err)
	assert.Equal(t, kp.Public().Bytes(), restored.Public().Bytes())
	assert.Equal(t, kp.PrivateBytes(), restored.PrivateBytes())
}

func TestImportPublicKey(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	pub, err := ImportPublicKey(kp.Public().Encode())
	require.NoError(t, err)
	assert.Equal(t, kp.Public().Bytes(), pub.Bytes())
}

func TestImportPublicKeyMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not base64", "!!!not-a-key!!!"},
		{"wrong length", "c2hvcnQ="},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ImportPublicKey(tc.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, errcode.ErrInvalidKeyFormat)
		})
	}
}

func TestImportRejectsBadPrivateHalf(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	_, err = Import(kp.Public().Encode(), "bm90LWEta2V5")
	assert.ErrorIs(t, err, errcode.ErrInvalidKeyFormat)
}
