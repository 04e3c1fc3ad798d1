package questions

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	mathrand "math/rand"
	"strconv"
)

// NewSeed returns a fresh variant seed.
func NewSeed() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(buf[:]), 36)
}

// RandFromSeed returns a generator that yields the same sequence for the same seed.
func RandFromSeed(seed string) *mathrand.Rand {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(seed))
	return mathrand.New(mathrand.NewSource(int64(hasher.Sum64())))
}
