package bloom

import (
	"context"
	_ "embed"
	"errors"
	"strconv"

	"deepfake/internal/pkg/redis"
)

// ErrOffsetOutOfRange is returned for an offset beyond the bit set size.
var ErrOffsetOutOfRange = errors.New("bloom: offset out of range")

var (
	//go:embed set_script.lua
	setLuaScript string
	setScript    = redis.NewScript(setLuaScript)

	//go:embed get_script.lua
	getLuaScript string
	getScript    = redis.NewScript(getLuaScript)
)

// RedisStore is the subset of redis.Cache the bit set needs.
type RedisStore interface {
	ScriptRun(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error)
}

// RedisBitSet keeps bits in one Redis string, updated atomically by Lua.
type RedisBitSet struct {
	store RedisStore
	key   string
	size  uint
}

// NewRedisBitSet creates a bit set stored at key.
func NewRedisBitSet(store RedisStore, key string, size uint) *RedisBitSet {
	return &RedisBitSet{store: store, key: key, size: size}
}

func (r *RedisBitSet) args(offsets []uint) ([]any, error) {
	args := make([]any, len(offsets))
	for i, offset := range offsets {
		if offset >= r.size {
			return nil, ErrOffsetOutOfRange
		}
		args[i] = strconv.FormatUint(uint64(offset), 10)
	}
	return args, nil
}

// Test implements BitSet.
func (r *RedisBitSet) Test(ctx context.Context, offsets []uint) (bool, error) {
	args, err := r.args(offsets)
	if err != nil {
		return false, err
	}
	resp, err := r.store.ScriptRun(ctx, getScript, []string{r.key}, args...)
	if errors.Is(err, redis.Nil) {
		// Lua false is returned as a nil reply.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	set, _ := resp.(int64)
	return set == 1, nil
}

// Set implements BitSet.
func (r *RedisBitSet) Set(ctx context.Context, offsets []uint) error {
	args, err := r.args(offsets)
	if err != nil {
		return err
	}
	_, err = r.store.ScriptRun(ctx, setScript, []string{r.key}, args...)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
