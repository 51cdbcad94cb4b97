package location

import "encoding/binary"

// HashSeed is the seed shared by every uid derivation.
const HashSeed uint32 = 42

const (
	murmurM uint32 = 0x5bd1e995
	murmurR        = 24
)

// Hash32 is MurmurHash2 (32-bit) over key with HashSeed.
func Hash32(key []byte) uint32 {
	h := HashSeed ^ uint32(len(key))
	for len(key) >= 4 {
		k := binary.LittleEndian.Uint32(key)
		k *= murmurM
		k ^= k >> murmurR
		k *= murmurM
		h *= murmurM
		h ^= k
		key = key[4:]
	}
	switch len(key) {
	case 3:
		h ^= uint32(key[2]) << 16
		fallthrough
	case 2:
		h ^= uint32(key[1]) << 8
		fallthrough
	case 1:
		h ^= uint32(key[0])
		h *= murmurM
	}
	h ^= h >> 13
	h *= murmurM
	h ^= h >> 15
	return h
}

// HashString hashes the bytes of s.
func HashString(s string) uint32 {
	return Hash32([]byte(s))
}
