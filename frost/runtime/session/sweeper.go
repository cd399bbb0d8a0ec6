// frost/runtime/session/sweeper.go
// 过期会话清理

package session

import (
	"context"
	"time"

	"frostsign/logs"
)

// Sweepable 支持按创建时间批量删除的存储
type Sweepable interface {
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SweepableFunc 把普通函数适配为 Sweepable
type SweepableFunc func(ctx context.Context, cutoff time.Time) (int, error)

func (f SweepableFunc) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return f(ctx, cutoff)
}

// Sweeper 周期性删除创建时间早于 now-ttl 的会话
type Sweeper struct {
	ttl      time.Duration
	interval time.Duration
	targets  []Sweepable
	now      func() time.Time

	// OnEvicted 每轮清理后回调（数量 > 0 时）
	OnEvicted func(n int)
}

// NewSweeper interval <= 0 时取 ttl/2
func NewSweeper(ttl, interval time.Duration, targets ...Sweepable) *Sweeper {
	if interval <= 0 {
		interval = ttl / 2
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{ttl: ttl, interval: interval, targets: targets, now: time.Now}
}

// SweepOnce 执行一轮清理，返回删除总数
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)
	total := 0
	for _, t := range s.targets {
		n, err := t.DeleteSessionsBefore(ctx, cutoff)
		total += n
		if err != nil {
			return total, err
		}
	}
	if total > 0 {
		logs.Debug("[session] swept %d expired sessions", total)
		if s.OnEvicted != nil {
			s.OnEvicted(total)
		}
	}
	return total, nil
}

// Run 阻塞直到 ctx 取消
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				logs.Warn("[session] sweep failed: %v", err)
			}
		}
	}
}
