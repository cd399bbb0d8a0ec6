// frost/runtime/session/badger.go
// BadgerDB 持久化 Backend

package session

import (
	"context"
	"errors"
	"fmt"

	"frostsign/logs"

	"github.com/dgraph-io/badger/v2"
)

// 乐观事务冲突时的最大重试次数
const maxConflictRetries = 16

// BadgerBackend 每次 Update 是一个 badger 读写事务，冲突时整体重放 fn
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger 打开（或创建）path 下的数据库
func OpenBadger(path string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	logs.Debug("[session] badger opened at %s", path)
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy([]byte{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BadgerBackend) Update(ctx context.Context, key []byte, fn func(old []byte) ([]byte, error)) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.db.Update(func(txn *badger.Txn) error {
			var old []byte
			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				if old, err = item.ValueCopy([]byte{}); err != nil {
					return err
				}
			}
			next, err := fn(old)
			if err != nil || next == nil {
				return err
			}
			return txn.Set(key, next)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			logs.Trace("[session] badger conflict on %s, retry %d", key, attempt+1)
			continue
		}
		return err
	}
}

func (b *BadgerBackend) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Scan 在只读事务中收集结果，事务结束后再回调
func (b *BadgerBackend) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	type kv struct{ k, v []byte }
	var items []kv
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			items = append(items, kv{k: item.KeyCopy(nil), v: v})
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.k, it.v); err != nil {
			return err
		}
	}
	return nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
