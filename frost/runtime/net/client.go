// frost/runtime/net/client.go
// 远程签名者：通过 HTTP(/3) 实现 runtime.SignerClient

package net

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding"
	"io"
	"net/http"
	"strings"

	"frostsign/config"
	"frostsign/frost/runtime"
	"frostsign/frost/runtime/types"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// maxResponseSize 响应体上限
const maxResponseSize = 16 << 20

// Client 一个远程签名者
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ runtime.SignerClient = (*Client)(nil)

// NewClient baseURL 形如 https://host:7443；httpClient 为 nil 时使用 http.DefaultClient
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// BaseURL 远端地址
func (c *Client) BaseURL() string { return c.baseURL }

// NewHTTP3Client 创建 HTTP/3 客户端；roots 为 nil 时使用系统根证书
func NewHTTP3Client(cfg config.NetworkConfig, roots *x509.CertPool) *http.Client {
	tlsCfg := &tls.Config{
		RootCAs:            roots,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS13,
		MaxVersion:         tls.VersionTLS13,
		ClientSessionCache: tls.NewLRUClientSessionCache(128),
		NextProtos:         []string{http3.NextProtoH3},
	}
	tr := &http3.Transport{
		TLSClientConfig: tlsCfg,
		QUICConfig: &quic.Config{
			KeepAlivePeriod: cfg.KeepAlivePeriod.Std(),
			MaxIdleTimeout:  cfg.MaxIdleTimeout.Std(),
		},
	}
	return &http.Client{Transport: tr}
}

func (c *Client) DkgRound1(ctx context.Context, req *types.DkgRound1Request) (*types.DkgRound1Response, error) {
	resp := new(types.DkgRound1Response)
	if err := c.call(ctx, PathDkgRound1, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) DkgRound2(ctx context.Context, req *types.DkgRound2Request) (*types.DkgRound2Response, error) {
	resp := new(types.DkgRound2Response)
	if err := c.call(ctx, PathDkgRound2, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) DkgFinalize(ctx context.Context, req *types.DkgFinalizeRequest) (*types.DkgFinalizeResponse, error) {
	resp := new(types.DkgFinalizeResponse)
	if err := c.call(ctx, PathDkgFinalize, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SignRound1(ctx context.Context, req *types.SignRound1Request) (*types.SignRound1Response, error) {
	resp := new(types.SignRound1Response)
	if err := c.call(ctx, PathSignRound1, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SignRound2(ctx context.Context, req *types.SignRound2Request) (*types.SignRound2Response, error) {
	resp := new(types.SignRound2Response)
	if err := c.call(ctx, PathSignRound2, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// call 远端已归类的错误按 X-Frost-Error 还原类别，其余一律为 ErrTransport
func (c *Client) call(ctx context.Context, path string, in encoding.BinaryMarshaler, out encoding.BinaryUnmarshaler) error {
	op := strings.TrimPrefix(path, "/frost/v1/")
	body, err := in.MarshalBinary()
	if err != nil {
		return &runtime.Error{Kind: runtime.ErrInvalidRequest, Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &runtime.Error{Kind: runtime.ErrTransport, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &runtime.Error{Kind: runtime.ErrTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &runtime.Error{Kind: runtime.ErrTransport, Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := &httpStatusError{op: op, statusCode: resp.StatusCode, body: strings.TrimSpace(string(data))}
		kind := KindByName(resp.Header.Get(HeaderError))
		if kind == nil {
			kind = runtime.ErrTransport
		}
		return &runtime.Error{Kind: kind, Op: op, Err: statusErr}
	}
	if err := out.UnmarshalBinary(data); err != nil {
		return &runtime.Error{Kind: runtime.ErrTransport, Op: op, Err: err}
	}
	return nil
}
