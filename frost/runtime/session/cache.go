// frost/runtime/session/cache.go
// KeyStore 读缓存：只缓存已进入终态（DKG 完成）的记录

package session

import (
	"context"
	"fmt"

	"frostsign/frost/runtime/types"

	lru "github.com/hashicorp/golang-lru"
)

// CachedKeyStore 在任意 KeyStore 前加一层 LRU。
// 缓存的是编码后的字节，每次命中都解码出新对象，调用方修改不会污染缓存
type CachedKeyStore[S any] struct {
	inner   KeyStore[S]
	codec   Codec[S]
	isFinal func(*S) bool
	cache   *lru.Cache
}

// NewCachedKeyStore isFinal 判断状态是否不再变化，只有终态会被缓存
func NewCachedKeyStore[S any](inner KeyStore[S], codec Codec[S], size int, isFinal func(*S) bool) (*CachedKeyStore[S], error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create key cache: %w", err)
	}
	return &CachedKeyStore[S]{inner: inner, codec: codec, isFinal: isFinal, cache: cache}, nil
}

func (c *CachedKeyStore[S]) GetKeyInfo(ctx context.Context, id types.MusigID) (*S, error) {
	k := id.Key()
	if v, ok := c.cache.Get(k); ok {
		return c.codec.Unmarshal(v.([]byte))
	}
	state, err := c.inner.GetKeyInfo(ctx, id)
	if err != nil || state == nil {
		return state, err
	}
	c.remember(k, state)
	return state, nil
}

func (c *CachedKeyStore[S]) SetKeyInfo(ctx context.Context, id types.MusigID, state *S) error {
	c.cache.Remove(id.Key())
	return c.inner.SetKeyInfo(ctx, id, state)
}

func (c *CachedKeyStore[S]) UpdateKeyInfo(ctx context.Context, id types.MusigID, fn func(cur *S) (*S, error)) error {
	c.cache.Remove(id.Key())
	return c.inner.UpdateKeyInfo(ctx, id, fn)
}

// Len 缓存条目数
func (c *CachedKeyStore[S]) Len() int {
	return c.cache.Len()
}

func (c *CachedKeyStore[S]) remember(k string, state *S) {
	if !c.isFinal(state) {
		return
	}
	raw, err := c.codec.Marshal(state)
	if err != nil {
		return
	}
	c.cache.Add(k, raw)
}
