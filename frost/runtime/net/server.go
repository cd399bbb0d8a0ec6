// frost/runtime/net/server.go
// HTTP/3 服务端

package net

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"

	"frostsign/config"
	"frostsign/logs"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// ServerTLSConfig QUIC 要求 TLS 1.3
func ServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{http3.NextProtoH3},
	}
}

// Server 包装 http3.Server，随 ctx 关闭
type Server struct {
	srv *http3.Server
}

// NewServer handler 通常来自 NewHandler
func NewServer(cfg config.NetworkConfig, tlsCfg *tls.Config, handler http.Handler) *Server {
	return &Server{srv: &http3.Server{
		Addr:      cfg.ListenAddr,
		Handler:   handler,
		TLSConfig: tlsCfg,
		QUICConfig: &quic.Config{
			KeepAlivePeriod: cfg.KeepAlivePeriod.Std(),
			MaxIdleTimeout:  cfg.MaxIdleTimeout.Std(),
		},
	}}
}

// ListenAndServe 阻塞直到 ctx 取消或监听失败；ctx 取消时返回 nil
func (s *Server) ListenAndServe(ctx context.Context) error {
	log := logs.NewSubsystem(logs.SubsystemNetwork)
	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP/3 server listening on %s", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		if err := s.srv.Close(); err != nil {
			log.Warnf("close server: %v", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ListenAndServe 使用默认 QUIC 参数在 addr 上提供 handler
func ListenAndServe(ctx context.Context, addr string, tlsCfg *tls.Config, handler http.Handler) error {
	cfg := config.DefaultConfig().Network
	cfg.ListenAddr = addr
	return NewServer(cfg, tlsCfg, handler).ListenAndServe(ctx)
}
