package net

import (
	"bytes"
	"context"
	"crypto/sha256"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"frostsign/frost/core/frost"
	"frostsign/frost/runtime"
	"frostsign/frost/runtime/session"
	"frostsign/frost/runtime/types"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cluster struct {
	signers map[frost.Identifier]*runtime.FrostSigner
	clients map[frost.Identifier]runtime.SignerClient
	servers []*httptest.Server
}

func newCluster(t *testing.T, total, threshold uint16) *cluster {
	t.Helper()
	privs := make(map[frost.Identifier]*btcec.PrivateKey, total)
	pubs := make(map[frost.Identifier]*btcec.PublicKey, total)
	for i := uint16(1); i <= total; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		privs[frost.Identifier(i)] = priv
		pubs[frost.Identifier(i)] = priv.PubKey()
	}

	c := &cluster{
		signers: make(map[frost.Identifier]*runtime.FrostSigner, total),
		clients: make(map[frost.Identifier]runtime.SignerClient, total),
	}
	for id, priv := range privs {
		s, err := runtime.NewFrostSignerWithBackend(runtime.SignerConfig{
			Identifier:     id,
			Threshold:      threshold,
			Total:          total,
			IdentityKey:    priv,
			PeerIdentities: pubs,
		}, session.NewMemoryBackend())
		require.NoError(t, err)

		srv := httptest.NewServer(NewHandler(s, 1<<20))
		t.Cleanup(srv.Close)
		c.signers[id] = s
		c.clients[id] = NewClient(srv.URL, srv.Client())
		c.servers = append(c.servers, srv)
	}
	return c
}

func musigID(t *testing.T) types.MusigID {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	id, err := types.NewIssuerID(priv.PubKey().SerializeCompressed(), "")
	require.NoError(t, err)
	return id
}

func TestRouter(t *testing.T) {
	r := NewRouter()
	r.Register(PathSignRound1, func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Register(PathDkgRound1, func(w http.ResponseWriter, _ *http.Request) {})
	assert.True(t, r.HasHandler(PathSignRound1))
	assert.Equal(t, []string{PathDkgRound1, PathSignRound1}, r.Paths())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, PathSignRound1, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathSignRound1, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	r.Unregister(PathSignRound1)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, PathSignRound1, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDkgAndSignOverHTTP(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, 3, 2)
	cfg := runtime.DefaultAggregatorConfig()
	cfg.Threshold = 2
	cfg.RPCTimeout = 5 * time.Second
	agg, err := runtime.NewFrostAggregatorWithBackend(cfg, c.clients, session.NewMemoryBackend(), 8)
	require.NoError(t, err)

	id := musigID(t)
	pub, err := agg.RunDkgFlow(ctx, id)
	require.NoError(t, err)

	msg := sha256.Sum256([]byte("test"))
	meta := types.SigningMetadata{Purpose: types.PurposeAuthorization}
	sig, err := agg.RunSigningFlow(ctx, id, msg[:], meta, nil)
	require.NoError(t, err)
	assert.NoError(t, frost.VerifySignature(sig, msg[:], pub.VerifyingKey))

	// 远端错误类别在客户端还原
	_, err = agg.RunDkgFlow(ctx, id)
	assert.ErrorIs(t, err, runtime.ErrInvalidUserState)
}

func TestClientRestoresErrorKind(t *testing.T) {
	ctx := context.Background()
	c := newCluster(t, 3, 2)
	id := musigID(t)

	_, err := c.clients[1].SignRound2(ctx, &types.SignRound2Request{
		MusigID:        id,
		SessionID:      "missing",
		SigningPackage: &frost.SigningPackage{Message: []byte{1}},
	})
	assert.ErrorIs(t, err, runtime.ErrInvalidUserState, "no key yet")
	assert.Equal(t, http.StatusConflict, StatusOf(err))

	_, err = c.clients[1].SignRound1(ctx, &types.SignRound1Request{MusigID: id, SessionID: "s"})
	assert.ErrorIs(t, err, runtime.ErrInvalidRequest)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	c := newCluster(t, 3, 2)
	srv := c.servers[0]

	resp, err := http.Post(srv.URL+PathDkgRound1, contentType, bytes.NewReader([]byte{0xff, 0xff}))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", resp.Header.Get(HeaderError))

	resp, err = http.Post(srv.URL+PathDkgRound1, contentType, bytes.NewReader(make([]byte, (1<<20)+16)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, err = http.Get(srv.URL + PathDkgRound1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/frost/v1/unknown", contentType, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(HeaderError))
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, nil)
	_, err := client.DkgRound1(context.Background(), &types.DkgRound1Request{MusigID: musigID(t)})
	assert.ErrorIs(t, err, runtime.ErrTransport)
	assert.Zero(t, StatusOf(err))

	// 没有 X-Frost-Error 头的非 200 响应也归为传输错误
	plain := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(plain.Close)
	_, err = NewClient(plain.URL, plain.Client()).DkgRound1(context.Background(), &types.DkgRound1Request{MusigID: musigID(t)})
	assert.ErrorIs(t, err, runtime.ErrTransport)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		runtime.ErrInvalidUserState:         http.StatusConflict,
		runtime.ErrParticipantExists:        http.StatusConflict,
		runtime.ErrSessionNotFound:          http.StatusNotFound,
		runtime.ErrParticipantNotFound:      http.StatusNotFound,
		runtime.ErrInvalidRequest:           http.StatusBadRequest,
		runtime.ErrInsufficientParticipants: http.StatusBadRequest,
		runtime.ErrInternal:                 http.StatusInternalServerError,
		runtime.ErrTransport:                http.StatusInternalServerError,
	}
	for kind, status := range cases {
		err := &runtime.Error{Kind: kind, Op: "op"}
		assert.Equal(t, status, StatusCode(err), kind.Error())
		assert.Equal(t, kind, KindByName(KindName(err)))
	}
	assert.Nil(t, KindByName("nope"))
}
