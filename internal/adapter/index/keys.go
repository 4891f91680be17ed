package index

import (
	"encoding/binary"
)

// keyWithSeq appends the sequence and the length of the key, so the
// same key can be stored multiple times and the original key can be
// restored.
func keyWithSeq(key []byte, seq uint64) []byte {
	lkey := len(key)
	mk := make([]byte, lkey+8+2)
	copy(mk[:lkey], key)
	binary.BigEndian.PutUint64(mk[lkey:], seq)
	binary.BigEndian.PutUint16(mk[lkey+8:], uint16(lkey))
	return mk
}

func keyLen(key []byte) int {
	if len(key) < 10 {
		return -1
	}
	return int(binary.BigEndian.Uint16(key[len(key)-2:]))
}

// originalKey returns the key passed to keyWithSeq, nil if k wasn't
// created by keyWithSeq.
func originalKey(k []byte) []byte {
	l := keyLen(k)
	if l < 0 || l != len(k)-10 {
		return nil
	}
	return k[:l]
}

// uint64ToKey big endian bytes of passed v
func uint64ToKey(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func keyToUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func joinKey(parts ...string) []byte {
	var n int
	for _, p := range parts {
		n += len(p) + 1
	}
	k := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			k = append(k, 0)
		}
		k = append(k, p...)
	}
	return k
}

func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
