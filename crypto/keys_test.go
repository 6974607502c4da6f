package crypto

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundtrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr := key.PubKey().Address()
	encoded := addr.String()
	require.True(t, strings.HasPrefix(encoded, string(VTXPrefix)))

	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.True(t, addr.Equal(decoded))
	require.Equal(t, addr.Raw(), decoded.Raw())
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	_, err := DecodeAddress("nhb1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq")
	require.Error(t, err)
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	_, err := DecodeAddress("not-an-address")
	require.Error(t, err)
}

func TestPrivateKeyBytesRoundtrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.True(t, key.PubKey().Address().Equal(restored.PubKey().Address()))
}

func TestKeystoreRoundtrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "operator.keystore")
	require.NoError(t, SaveToKeystore(path, key, "hunter2"))

	loaded, err := LoadFromKeystore(path, "hunter2")
	require.NoError(t, err)
	require.True(t, key.PubKey().Address().Equal(loaded.PubKey().Address()))

	_, err = LoadFromKeystore(path, "wrong-pass")
	require.Error(t, err)
}
