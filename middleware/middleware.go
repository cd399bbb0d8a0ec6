package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"frostsign/logs"
)

// RateLimiter 每个客户端 IP 在一个时间窗口内的请求上限；limit <= 0 表示不限制
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	count     map[string]int
	lastReset map[string]time.Time
}

// NewRateLimiter window <= 0 时为 1s
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		limit:     limit,
		window:    window,
		now:       time.Now,
		count:     make(map[string]int),
		lastReset: make(map[string]time.Time),
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Allow 记录一次请求并返回是否放行
func (l *RateLimiter) Allow(ip string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if last, ok := l.lastReset[ip]; !ok || now.Sub(last) > l.window {
		l.count[ip] = 0
		l.lastReset[ip] = now
	}
	l.count[ip]++
	return l.count[ip] <= l.limit
}

// Wrap 超过上限返回 429
func (l *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup 删除两个窗口内没有请求的 IP，返回删除数量
func (l *RateLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for ip, last := range l.lastReset {
		if now.Sub(last) > 2*l.window {
			delete(l.lastReset, ip)
			delete(l.count, ip)
			n++
		}
	}
	return n
}

// Run 定时 Cleanup，ctx 取消后返回
func (l *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// AccessLog 每个请求一行 debug 日志
func AccessLog(next http.Handler) http.Handler {
	log := logs.NewSubsystem(logs.SubsystemNetwork)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debugf("%s %s %s %d %s", clientIP(r), r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
