package xqueue

import (
	"context"
	"fmt"

	"github.com/omeyang/xsink/pkg/appender/xrecord"
	"github.com/omeyang/xsink/pkg/storage/xjournal"
)

// Decoder 不启动 Manager 而解码日志中的记录，用于离线检查
type Decoder struct {
	cipher *payloadCipher
}

// NewDecoder 按属性包构造解密器；未配置 keyProvider 时只能解码明文记录
func NewDecoder(ctx context.Context, props Properties) (*Decoder, error) {
	c, err := buildCipher(ctx, props)
	if err != nil {
		return nil, err
	}
	return &Decoder{cipher: c}, nil
}

// Decode 解密（如需）并解码一条记录
func (d *Decoder) Decode(r xjournal.Record) (xrecord.Entry, error) {
	return decodeRecord(d.cipher, r)
}

func decodeRecord(c *payloadCipher, r xjournal.Record) (xrecord.Entry, error) {
	data := r.Data
	if r.Encrypted() {
		if c == nil {
			return xrecord.Entry{}, fmt.Errorf("%w: seq %d is encrypted but no key is configured", ErrCipher, r.Seq)
		}
		plain, err := c.open(data, r.GUID)
		if err != nil {
			return xrecord.Entry{}, fmt.Errorf("seq %d: %w", r.Seq, err)
		}
		data = plain
	}
	payload, headers, err := decodeEntry(data)
	if err != nil {
		return xrecord.Entry{}, fmt.Errorf("seq %d: %w", r.Seq, err)
	}
	return xrecord.Entry{Key: r.GUID, Payload: payload, Headers: headers}, nil
}
