// frost/runtime/net/router.go
// 按 URL 路径分发请求

package net

import (
	"errors"
	"net/http"
	"sort"
	"sync"
)

// ErrNoHandlerRegistered 路径未注册
var ErrNoHandlerRegistered = errors.New("no handler registered for this path")

// 签名者对外暴露的五个端点
const (
	PathDkgRound1   = "/frost/v1/dkg_round1"
	PathDkgRound2   = "/frost/v1/dkg_round2"
	PathDkgFinalize = "/frost/v1/dkg_finalize"
	PathSignRound1  = "/frost/v1/sign_round1"
	PathSignRound2  = "/frost/v1/sign_round2"
)

// Router 路径 -> 处理器，只接受 POST
type Router struct {
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
}

// NewRouter 创建空路由器
func NewRouter() *Router {
	return &Router{handlers: make(map[string]http.HandlerFunc)}
}

// Register 注册处理器，已存在时覆盖
func (r *Router) Register(path string, h http.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[path] = h
}

// Unregister 注销处理器
func (r *Router) Unregister(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, path)
}

// HasHandler 是否注册了 path
func (r *Router) HasHandler(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[path]
	return ok
}

// Paths 已注册路径（排序）
func (r *Router) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for p := range r.handlers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	h, ok := r.handlers[req.URL.Path]
	r.mu.RUnlock()
	if !ok {
		http.Error(w, ErrNoHandlerRegistered.Error(), http.StatusNotFound)
		return
	}
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h(w, req)
}
