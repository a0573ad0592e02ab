package xqueue

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
)

// 属性名（大小写不敏感）
const (
	PropKeyProvider = "keyProvider"
	PropCipher      = "cipher"
	PropKeyEnv      = "keyEnv"
	PropKeyFile     = "keyFile"
	PropKey         = "key"
)

// DefaultKeyEnv env 提供者默认读取的环境变量
const DefaultKeyEnv = "XSINK_QUEUE_KEY"

// KeyProvider 提供加密日志用的密钥材料
type KeyProvider interface {
	SecretKey(ctx context.Context) ([]byte, error)
}

// KeyProviderFunc 函数形式的 KeyProvider
type KeyProviderFunc func(ctx context.Context) ([]byte, error)

// SecretKey 实现 KeyProvider
func (f KeyProviderFunc) SecretKey(ctx context.Context) ([]byte, error) { return f(ctx) }

// KeyProviderFactory 按队列属性构造 KeyProvider
type KeyProviderFactory func(props Properties) (KeyProvider, error)

var (
	providerMu sync.RWMutex
	providers  = map[string]KeyProviderFactory{
		"env":    envKeyProvider,
		"file":   fileKeyProvider,
		"static": staticKeyProvider,
	}
)

// RegisterKeyProvider 注册密钥提供者，名称大小写不敏感
func RegisterKeyProvider(name string, f KeyProviderFactory) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providers[strings.ToLower(name)] = f
}

// lookupKeyProvider 按名称构造提供者
func lookupKeyProvider(name string, props Properties) (KeyProvider, error) {
	providerMu.RLock()
	f, ok := providers[strings.ToLower(strings.TrimSpace(name))]
	providerMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrKeyProvider, name)
	}
	p, err := f(props)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrKeyProvider, name, err)
	}
	return p, nil
}

// Properties 队列属性，键大小写不敏感
type Properties map[string]string

// Get 按键取值，先精确匹配再忽略大小写
func (p Properties) Get(key string) (string, bool) {
	if v, ok := p[key]; ok {
		return v, true
	}
	for k, v := range p {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// decodeKeyMaterial 支持 base64: 与 hex: 前缀，否则按原始字节使用
func decodeKeyMaterial(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "base64:"):
		return base64.StdEncoding.DecodeString(s[len("base64:"):])
	case strings.HasPrefix(s, "hex:"):
		return hex.DecodeString(s[len("hex:"):])
	default:
		return []byte(s), nil
	}
}

func envKeyProvider(props Properties) (KeyProvider, error) {
	name, ok := props.Get(PropKeyEnv)
	if !ok || name == "" {
		name = DefaultKeyEnv
	}
	return KeyProviderFunc(func(context.Context) ([]byte, error) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return nil, fmt.Errorf("environment variable %s not set", name)
		}
		return decodeKeyMaterial(v)
	}), nil
}

func fileKeyProvider(props Properties) (KeyProvider, error) {
	path, ok := props.Get(PropKeyFile)
	if !ok || path == "" {
		return nil, fmt.Errorf("missing property %s", PropKeyFile)
	}
	return KeyProviderFunc(func(context.Context) ([]byte, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return decodeKeyMaterial(string(b))
	}), nil
}

func staticKeyProvider(props Properties) (KeyProvider, error) {
	v, ok := props.Get(PropKey)
	if !ok || v == "" {
		return nil, fmt.Errorf("missing property %s", PropKey)
	}
	key, err := decodeKeyMaterial(v)
	if err != nil {
		return nil, err
	}
	return KeyProviderFunc(func(context.Context) ([]byte, error) { return key, nil }), nil
}
