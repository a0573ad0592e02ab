package xqueue

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// 支持的算法名（属性 cipher）
const (
	CipherAESGCM   = "aes-gcm"
	CipherXChaCha  = "xchacha20-poly1305"
	hkdfInfo       = "xsink/xqueue journal v1"
	derivedKeySize = 32
)

// payloadCipher 对条目记录做认证加密
//
// 密文格式为 nonce || AEAD(record)，附加数据为条目 GUID，
// 记录不能被挪到另一个键下解密。
type payloadCipher struct {
	alg  string
	aead cipher.AEAD
}

// newPayloadCipher 用 HKDF-SHA256 从密钥材料派生 256 位密钥
func newPayloadCipher(secret []byte, alg string) (*payloadCipher, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret key", ErrCipher)
	}
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("%w: derive key: %w", ErrCipher, err)
	}

	alg = strings.ToLower(strings.TrimSpace(alg))
	var (
		aead cipher.AEAD
		err  error
	)
	switch alg {
	case "", CipherAESGCM:
		alg = CipherAESGCM
		var block cipher.Block
		if block, err = aes.NewCipher(key); err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case CipherXChaCha:
		aead, err = chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("%w: unknown cipher %q", ErrCipher, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCipher, alg, err)
	}
	return &payloadCipher{alg: alg, aead: aead}, nil
}

func (c *payloadCipher) seal(plain, ad []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	out := make([]byte, ns, ns+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("%w: nonce: %w", ErrCipher, err)
	}
	return c.aead.Seal(out, out[:ns], plain, ad), nil
}

func (c *payloadCipher) open(sealed, ad []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(sealed) < ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrCipher)
	}
	plain, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], ad)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCipher, err)
	}
	return plain, nil
}
