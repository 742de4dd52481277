// Package bloom implements a Bloom filter over string keys. The bits live in
// a BitSet, normally a Redis string shared by every replica.
package bloom

import (
	"context"

	"deepfake/internal/pkg/hash"
)

// BitSet stores the filter's bits.
type BitSet interface {
	// Test reports whether every offset is set.
	Test(ctx context.Context, offsets []uint) (bool, error)
	Set(ctx context.Context, offsets []uint) error
}

// Filter answers "possibly added" or "definitely not added" for keys.
type Filter struct {
	bits   BitSet
	size   uint
	hashes uint
}

// New creates a filter of size bits probed by hashes positions per key.
func New(bits BitSet, size, hashes uint) *Filter {
	if size == 0 {
		size = 1
	}
	if hashes == 0 {
		hashes = 1
	}
	return &Filter{bits: bits, size: size, hashes: hashes}
}

// NewRedis creates a filter whose bits are the Redis string at key.
func NewRedis(store RedisStore, key string, size, hashes uint) *Filter {
	return New(NewRedisBitSet(store, key, size), size, hashes)
}

// offsets derives the probe positions by double hashing: h1 + i*h2.
func (f *Filter) offsets(key string) []uint {
	data := []byte(key)
	h1 := hash.Hash(data)
	h2 := hash.HashSeeded(data, 1) | 1
	out := make([]uint, f.hashes)
	for i := range out {
		out[i] = uint((h1 + uint64(i)*h2) % uint64(f.size))
	}
	return out
}

// Add records key.
func (f *Filter) Add(ctx context.Context, key string) error {
	return f.bits.Set(ctx, f.offsets(key))
}

// MayContain reports false only when key was never added.
func (f *Filter) MayContain(ctx context.Context, key string) (bool, error) {
	return f.bits.Test(ctx, f.offsets(key))
}
