// frost/runtime/session/store.go
// Key/Session 存储契约：每次状态迁移都是一次原子的读-改-写

package session

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"strings"
	"time"

	"frostsign/frost/core/wire"
	"frostsign/frost/runtime/types"
)

// ========== 错误定义 ==========

var (
	// ErrMalformedKey 存储中出现无法解析的键
	ErrMalformedKey = errors.New("malformed storage key")
	// ErrMalformedEnvelope 会话封装损坏
	ErrMalformedEnvelope = errors.New("malformed session envelope")
)

// ========== 底层 KV ==========

// Backend 字节级 KV 存储，Update 必须对同一个键原子
type Backend interface {
	// Get 不存在时返回 (nil, nil)
	Get(ctx context.Context, key []byte) ([]byte, error)
	// Update 在同一事务/锁内读取旧值并写入 fn 的结果；
	// fn 返回 error 时不写入，返回 nil 值时保持原值不变
	Update(ctx context.Context, key []byte, fn func(old []byte) ([]byte, error)) error
	Delete(ctx context.Context, key []byte) error
	// Scan 按前缀遍历，value 为副本
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// ========== 编解码 ==========

// Codec 状态对象与字节之间的转换
type Codec[S any] struct {
	Marshal   func(*S) ([]byte, error)
	Unmarshal func([]byte) (*S, error)
}

// BinaryCodec 基于 encoding.BinaryMarshaler 的编解码
func BinaryCodec[S any, P interface {
	*S
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}]() Codec[S] {
	return Codec[S]{
		Marshal: func(s *S) ([]byte, error) { return P(s).MarshalBinary() },
		Unmarshal: func(b []byte) (*S, error) {
			s := new(S)
			if err := P(s).UnmarshalBinary(b); err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

// ========== 契约 ==========

// KeyStore 按 MusigID 保存 DKG 状态
type KeyStore[S any] interface {
	// GetKeyInfo 不存在时返回 (nil, nil)
	GetKeyInfo(ctx context.Context, id types.MusigID) (*S, error)
	SetKeyInfo(ctx context.Context, id types.MusigID, state *S) error
	// UpdateKeyInfo 原子读-改-写；cur 为 nil 表示不存在。
	// fn 返回 error 时不写入；返回 nil 状态时不写入
	UpdateKeyInfo(ctx context.Context, id types.MusigID, fn func(cur *S) (*S, error)) error
}

// SessionStore 按 (MusigID, sessionID) 保存签名会话
type SessionStore[S any] interface {
	GetSessionInfo(ctx context.Context, id types.MusigID, sessionID string) (*S, error)
	SetSessionInfo(ctx context.Context, id types.MusigID, sessionID string, state *S) error
	UpdateSessionInfo(ctx context.Context, id types.MusigID, sessionID string, fn func(cur *S) (*S, error)) error
	DeleteSessionInfo(ctx context.Context, id types.MusigID, sessionID string) error
	ListSessions(ctx context.Context, fn func(SessionInfo) error) error
	// DeleteSessionsBefore 删除 createdAt 早于 cutoff 的会话，返回删除数量
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionInfo 会话索引信息（不含状态本身）
type SessionInfo struct {
	MusigKey  string
	SessionID string
	CreatedAt time.Time
}

// ========== KeyStore 实现 ==========

type kvKeyStore[S any] struct {
	backend Backend
	prefix  string
	codec   Codec[S]
}

// NewKeyStore 在 backend 上构造 KeyStore；namespace 隔离签名者与聚合者
func NewKeyStore[S any](backend Backend, namespace string, codec Codec[S]) KeyStore[S] {
	return &kvKeyStore[S]{backend: backend, prefix: namespace + "/key/", codec: codec}
}

func (s *kvKeyStore[S]) key(id types.MusigID) []byte {
	return []byte(s.prefix + id.Key())
}

func (s *kvKeyStore[S]) GetKeyInfo(ctx context.Context, id types.MusigID) (*S, error) {
	raw, err := s.backend.Get(ctx, s.key(id))
	if err != nil || raw == nil {
		return nil, err
	}
	return s.codec.Unmarshal(raw)
}

func (s *kvKeyStore[S]) SetKeyInfo(ctx context.Context, id types.MusigID, state *S) error {
	raw, err := s.marshal(state)
	if err != nil {
		return err
	}
	return s.backend.Update(ctx, s.key(id), func([]byte) ([]byte, error) { return raw, nil })
}

func (s *kvKeyStore[S]) UpdateKeyInfo(ctx context.Context, id types.MusigID, fn func(cur *S) (*S, error)) error {
	return s.backend.Update(ctx, s.key(id), func(old []byte) ([]byte, error) {
		var cur *S
		if old != nil {
			var err error
			if cur, err = s.codec.Unmarshal(old); err != nil {
				return nil, err
			}
		}
		next, err := fn(cur)
		if err != nil || next == nil {
			return nil, err
		}
		return s.marshal(next)
	})
}

// marshal 空编码也要写入，nil 在 Backend.Update 中表示不写
func (s *kvKeyStore[S]) marshal(state *S) ([]byte, error) {
	raw, err := s.codec.Marshal(state)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = []byte{}
	}
	return raw, nil
}

// ========== SessionStore 实现 ==========

// 会话封装：1: created_at(unix nano) 2: payload，清理时无需解码状态
func encodeEnvelope(createdAt time.Time, payload []byte) []byte {
	b := wire.AppendInt(nil, 1, createdAt.UnixNano())
	return wire.AppendBytes(b, 2, payload)
}

func decodeEnvelope(raw []byte) (time.Time, []byte, error) {
	var (
		created int64
		payload []byte
		seen    bool
	)
	err := wire.Walk(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			v, err := f.ExpectVarint()
			created = int64(v)
			return err
		case 2:
			v, err := f.ExpectBytes()
			payload, seen = v, true
			return err
		}
		return nil
	})
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if !seen {
		return time.Time{}, nil, ErrMalformedEnvelope
	}
	return time.Unix(0, created), payload, nil
}

type kvSessionStore[S any] struct {
	backend Backend
	prefix  string
	codec   Codec[S]
	now     func() time.Time
}

// NewSessionStore 在 backend 上构造 SessionStore
func NewSessionStore[S any](backend Backend, namespace string, codec Codec[S]) SessionStore[S] {
	return &kvSessionStore[S]{backend: backend, prefix: namespace + "/sess/", codec: codec, now: time.Now}
}

func (s *kvSessionStore[S]) key(id types.MusigID, sessionID string) []byte {
	return []byte(s.prefix + id.Key() + "/" + sessionID)
}

func (s *kvSessionStore[S]) GetSessionInfo(ctx context.Context, id types.MusigID, sessionID string) (*S, error) {
	raw, err := s.backend.Get(ctx, s.key(id, sessionID))
	if err != nil || raw == nil {
		return nil, err
	}
	_, payload, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	return s.codec.Unmarshal(payload)
}

func (s *kvSessionStore[S]) SetSessionInfo(ctx context.Context, id types.MusigID, sessionID string, state *S) error {
	return s.UpdateSessionInfo(ctx, id, sessionID, func(*S) (*S, error) { return state, nil })
}

func (s *kvSessionStore[S]) UpdateSessionInfo(ctx context.Context, id types.MusigID, sessionID string, fn func(cur *S) (*S, error)) error {
	return s.backend.Update(ctx, s.key(id, sessionID), func(old []byte) ([]byte, error) {
		var (
			cur     *S
			created = s.now()
		)
		if old != nil {
			ts, payload, err := decodeEnvelope(old)
			if err != nil {
				return nil, err
			}
			if cur, err = s.codec.Unmarshal(payload); err != nil {
				return nil, err
			}
			created = ts
		}
		next, err := fn(cur)
		if err != nil || next == nil {
			return nil, err
		}
		raw, err := s.codec.Marshal(next)
		if err != nil {
			return nil, err
		}
		return encodeEnvelope(created, raw), nil
	})
}

func (s *kvSessionStore[S]) DeleteSessionInfo(ctx context.Context, id types.MusigID, sessionID string) error {
	return s.backend.Delete(ctx, s.key(id, sessionID))
}

func (s *kvSessionStore[S]) ListSessions(ctx context.Context, fn func(SessionInfo) error) error {
	return s.backend.Scan(ctx, []byte(s.prefix), func(key, value []byte) error {
		info, err := s.parseKey(key)
		if err != nil {
			return err
		}
		if info.CreatedAt, _, err = decodeEnvelope(value); err != nil {
			return err
		}
		return fn(info)
	})
}

func (s *kvSessionStore[S]) parseKey(key []byte) (SessionInfo, error) {
	rest := strings.TrimPrefix(string(key), s.prefix)
	musigKey, sessionID, ok := strings.Cut(rest, "/")
	if !ok || musigKey == "" || sessionID == "" {
		return SessionInfo{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return SessionInfo{MusigKey: musigKey, SessionID: sessionID}, nil
}

func (s *kvSessionStore[S]) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var expired [][]byte
	err := s.backend.Scan(ctx, []byte(s.prefix), func(key, value []byte) error {
		created, _, err := decodeEnvelope(value)
		if err != nil {
			// 损坏的记录同样清理
			expired = append(expired, key)
			return nil
		}
		if created.Before(cutoff) {
			expired = append(expired, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i, key := range expired {
		if err := s.backend.Delete(ctx, key); err != nil {
			return i, err
		}
	}
	return len(expired), nil
}
