package xqueue

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// encodeEntry 编码条目记录（大端）：
//
//	payloadLen u32 | payload | headerCount u32 | (keyLen u16 | key | valLen u16 | val)*
//
// header 按键排序，相同内容的条目编码结果相同。
func encodeEntry(payload []byte, headers map[string]string) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrCorruptedEntry, len(payload))
	}
	keys := make([]string, 0, len(headers))
	size := 8 + len(payload)
	for k, v := range headers {
		if len(k) > math.MaxUint16 || len(v) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: %.32q", ErrHeaderTooLong, k)
		}
		keys = append(keys, k)
		size += 4 + len(k) + len(v)
	}
	sort.Strings(keys)

	b := make([]byte, 0, size)
	b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
	b = append(b, payload...)
	b = binary.BigEndian.AppendUint32(b, uint32(len(keys)))
	for _, k := range keys {
		v := headers[k]
		b = binary.BigEndian.AppendUint16(b, uint16(len(k)))
		b = append(b, k...)
		b = binary.BigEndian.AppendUint16(b, uint16(len(v)))
		b = append(b, v...)
	}
	return b, nil
}

// decodeEntry 是 encodeEntry 的逆过程；尾部多余字节视为损坏
func decodeEntry(b []byte) ([]byte, map[string]string, error) {
	d := decoder{b: b}
	n := d.u32()
	payload := d.bytes(int(n))
	count := d.u32()
	if d.err == nil && uint64(count)*4 > uint64(len(d.b)) {
		d.err = fmt.Errorf("header count %d exceeds remaining %d bytes", count, len(d.b))
	}
	var headers map[string]string
	if d.err == nil && count > 0 {
		headers = make(map[string]string, count)
		for range count {
			k := d.bytes(int(d.u16()))
			v := d.bytes(int(d.u16()))
			if d.err != nil {
				break
			}
			headers[string(k)] = string(v)
		}
	}
	if d.err == nil && len(d.b) != 0 {
		d.err = fmt.Errorf("%d trailing bytes", len(d.b))
	}
	if d.err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCorruptedEntry, d.err)
	}
	return payload, headers, nil
}

type decoder struct {
	b   []byte
	err error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || len(d.b) < n {
		d.err = fmt.Errorf("need %d bytes, have %d", n, len(d.b))
		return false
	}
	return true
}

func (d *decoder) u32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.b)
	d.b = d.b[4:]
	return v
}

func (d *decoder) u16() uint16 {
	if !d.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(d.b)
	d.b = d.b[2:]
	return v
}

func (d *decoder) bytes(n int) []byte {
	if !d.need(n) {
		return nil
	}
	v := d.b[:n:n]
	d.b = d.b[n:]
	return v
}
