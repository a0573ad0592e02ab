package xqueue

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	headers := map[string]string{"level": "INFO", "guid": "abc", "empty": ""}
	b, err := encodeEntry([]byte("hello"), headers)
	require.NoError(t, err)

	payload, got, err := decodeEntry(b)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(payload))
	assert.Equal(t, headers, got)

	again, err := encodeEntry([]byte("hello"), headers)
	require.NoError(t, err)
	assert.Equal(t, b, again, "encoding is deterministic")
}

func TestCodec_Layout(t *testing.T) {
	b, err := encodeEntry([]byte("x"), map[string]string{"k": "vv"})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0, 0, 0, 1, 'x',
		0, 0, 0, 1,
		0, 1, 'k', 0, 2, 'v', 'v',
	}, b)
}

func TestCodec_EmptyEntry(t *testing.T) {
	b, err := encodeEntry(nil, nil)
	require.NoError(t, err)
	payload, headers, err := decodeEntry(b)
	require.NoError(t, err)
	assert.Empty(t, payload)
	assert.Nil(t, headers)
}

func TestCodec_Corrupted(t *testing.T) {
	good, err := encodeEntry([]byte("payload"), map[string]string{"a": "b"})
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":            nil,
		"truncated":        good[:len(good)-1],
		"trailing":         append(append([]byte{}, good...), 0),
		"payload overrun":  {0, 0, 1, 0, 'x'},
		"header count lie": {0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff},
	}
	for name, b := range cases {
		_, _, err := decodeEntry(b)
		assert.ErrorIs(t, err, ErrCorruptedEntry, name)
	}
}

func TestCodec_HeaderTooLong(t *testing.T) {
	_, err := encodeEntry(nil, map[string]string{"k": strings.Repeat("v", 1<<16)})
	assert.ErrorIs(t, err, ErrHeaderTooLong)
}

func TestCipher_SealOpen(t *testing.T) {
	for _, alg := range []string{"", "AES-GCM", CipherXChaCha} {
		c, err := newPayloadCipher([]byte("secret"), alg)
		require.NoError(t, err, alg)

		sealed, err := c.seal([]byte("record"), []byte("guid-1"))
		require.NoError(t, err)
		assert.NotContains(t, string(sealed), "record")

		plain, err := c.open(sealed, []byte("guid-1"))
		require.NoError(t, err)
		assert.Equal(t, "record", string(plain))

		_, err = c.open(sealed, []byte("guid-2"))
		assert.ErrorIs(t, err, ErrCipher, "bound to entry key")
		_, err = c.open(sealed[:3], []byte("guid-1"))
		assert.ErrorIs(t, err, ErrCipher)
	}
}

func TestCipher_NonceIsRandom(t *testing.T) {
	c, err := newPayloadCipher([]byte("secret"), "")
	require.NoError(t, err)
	a, err := c.seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := c.seal([]byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCipher_Invalid(t *testing.T) {
	_, err := newPayloadCipher(nil, "")
	assert.ErrorIs(t, err, ErrCipher)
	_, err = newPayloadCipher([]byte("k"), "des")
	assert.ErrorIs(t, err, ErrCipher)
}

func TestKeyProviders(t *testing.T) {
	ctx := context.Background()

	t.Setenv("XSINK_TEST_KEY", "base64:"+base64.StdEncoding.EncodeToString([]byte("from-env")))
	p, err := lookupKeyProvider("ENV", Properties{"keyenv": "XSINK_TEST_KEY"})
	require.NoError(t, err)
	key, err := p.SecretKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-env", string(key))

	path := filepath.Join(t.TempDir(), "queue.key")
	require.NoError(t, os.WriteFile(path, []byte("hex:6b6579\n"), 0o600))
	p, err = lookupKeyProvider("file", Properties{PropKeyFile: path})
	require.NoError(t, err)
	key, err = p.SecretKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "key", string(key))

	p, err = lookupKeyProvider("Static", Properties{PropKey: "raw-key"})
	require.NoError(t, err)
	key, err = p.SecretKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "raw-key", string(key))
}

func TestKeyProviders_Errors(t *testing.T) {
	_, err := lookupKeyProvider("vault", nil)
	assert.ErrorIs(t, err, ErrKeyProvider)
	_, err = lookupKeyProvider("file", Properties{})
	assert.ErrorIs(t, err, ErrKeyProvider)
	_, err = lookupKeyProvider("static", Properties{})
	assert.ErrorIs(t, err, ErrKeyProvider)

	p, err := lookupKeyProvider("env", Properties{PropKeyEnv: "XSINK_TEST_KEY_UNSET"})
	require.NoError(t, err)
	_, err = p.SecretKey(context.Background())
	assert.Error(t, err)
}

func TestRegisterKeyProvider(t *testing.T) {
	RegisterKeyProvider("Vault-Test", func(Properties) (KeyProvider, error) {
		return KeyProviderFunc(func(context.Context) ([]byte, error) { return []byte("v"), nil }), nil
	})
	p, err := lookupKeyProvider("vault-test", nil)
	require.NoError(t, err)
	key, err := p.SecretKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v", string(key))
}

func TestProperties_Get(t *testing.T) {
	p := Properties{"KeyProvider": "env", "keyprovider": "file"}
	v, ok := p.Get("keyprovider")
	assert.True(t, ok)
	assert.Equal(t, "file", v)
	_, ok = Properties(nil).Get("x")
	assert.False(t, ok)
}
