package xjournal

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

const (
	keyPrefix = "q/"
	seqLen    = 8
	headerLen = 1 + 8
)

// FlagEncrypted 记录体已加密
const FlagEncrypted byte = 1 << 0

func entryPrefix(name string) []byte {
	return []byte(keyPrefix + name + "/e/")
}

func metaSeqKey(name string) []byte {
	return []byte(keyPrefix + name + "/m/seq")
}

func entryKey(prefix []byte, seq uint64, guid []byte) []byte {
	k := make([]byte, 0, len(prefix)+seqLen+len(guid))
	k = append(k, prefix...)
	k = binary.BigEndian.AppendUint64(k, seq)
	return append(k, guid...)
}

// prefixEnd 返回大于所有以 p 为前缀的键的最小键
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func checksum(flags byte, data []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write([]byte{flags})
	_, _ = d.Write(data)
	return d.Sum64()
}

func frame(flags byte, data []byte) []byte {
	v := make([]byte, headerLen, headerLen+len(data))
	v[0] = flags
	binary.BigEndian.PutUint64(v[1:headerLen], checksum(flags, data))
	return append(v, data...)
}

func unframe(v []byte) (byte, []byte, bool) {
	if len(v) < headerLen {
		return 0, nil, false
	}
	flags := v[0]
	data := v[headerLen:]
	if binary.BigEndian.Uint64(v[1:headerLen]) != checksum(flags, data) {
		return 0, nil, false
	}
	return flags, data, true
}

func keyString(k []byte) string {
	return hex.EncodeToString(k)
}
