// frost/runtime/net/handler.go
// 签名者 HTTP 入口：请求体为 protowire 编码的 XxxRequest

package net

import (
	"context"
	"encoding"
	"errors"
	"io"
	"net/http"

	"frostsign/frost/runtime"
	"frostsign/logs"

	"github.com/btcsuite/btclog"
)

const contentType = "application/x-protobuf"

// NewHandler 把 signer 的五个操作挂到 Router 上；maxBody<=0 表示不限制
func NewHandler(signer runtime.SignerClient, maxBody int64) *Router {
	log := logs.NewSubsystem(logs.SubsystemNetwork)
	r := NewRouter()
	r.Register(PathDkgRound1, serve(log, maxBody, signer.DkgRound1))
	r.Register(PathDkgRound2, serve(log, maxBody, signer.DkgRound2))
	r.Register(PathDkgFinalize, serve(log, maxBody, signer.DkgFinalize))
	r.Register(PathSignRound1, serve(log, maxBody, signer.SignRound1))
	r.Register(PathSignRound2, serve(log, maxBody, signer.SignRound2))
	return r
}

func serve[Req any, P interface {
	*Req
	encoding.BinaryUnmarshaler
}, Resp encoding.BinaryMarshaler](log btclog.Logger, maxBody int64, call func(context.Context, P) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := r.Body
		if maxBody > 0 {
			body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, log, r.URL.Path, http.StatusRequestEntityTooLarge, &runtime.Error{Kind: runtime.ErrInvalidRequest, Op: "read_body", Err: err})
				return
			}
			writeError(w, log, r.URL.Path, http.StatusBadRequest, &runtime.Error{Kind: runtime.ErrInvalidRequest, Op: "read_body", Err: err})
			return
		}

		req := P(new(Req))
		if err := req.UnmarshalBinary(data); err != nil {
			writeError(w, log, r.URL.Path, http.StatusBadRequest, &runtime.Error{Kind: runtime.ErrInvalidRequest, Op: "decode", Err: err})
			return
		}

		resp, err := call(r.Context(), req)
		if err != nil {
			writeError(w, log, r.URL.Path, StatusCode(err), err)
			return
		}
		out, err := resp.MarshalBinary()
		if err != nil {
			writeError(w, log, r.URL.Path, http.StatusInternalServerError, &runtime.Error{Kind: runtime.ErrInternal, Op: "encode", Err: err})
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

func writeError(w http.ResponseWriter, log btclog.Logger, path string, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Warnf("%s: %v", path, err)
	} else {
		log.Debugf("%s: %v", path, err)
	}
	w.Header().Set(HeaderError, KindName(err))
	http.Error(w, err.Error(), status)
}
