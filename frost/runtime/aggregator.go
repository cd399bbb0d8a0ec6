// frost/runtime/aggregator.go
// FrostAggregator：把一次逻辑操作扇出到全部签名者，合并结果并驱动状态机

package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"frostsign/frost/core/frost"
	"frostsign/frost/runtime/session"
	"frostsign/frost/runtime/types"
	"frostsign/logs"
	"frostsign/metrics"

	"github.com/btcsuite/btclog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// AggregatorNamespace 聚合者状态在 backend 中的命名空间
const AggregatorNamespace = "aggregator"

// ========== 配置 ==========

// AggregatorConfig 聚合者配置
type AggregatorConfig struct {
	Threshold       uint16
	SessionTimeout  time.Duration // 会话 TTL，清理时使用
	CleanupInterval time.Duration // <= 0 时取 SessionTimeout/2
	RPCTimeout      time.Duration // 单次签名者调用超时，<= 0 不限制

	Metrics *metrics.Collector
}

// DefaultAggregatorConfig 默认配置
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Threshold:       2,
		SessionTimeout:  10 * time.Minute,
		CleanupInterval: time.Minute,
		RPCTimeout:      30 * time.Second,
	}
}

// ========== FrostAggregator ==========

// FrostAggregator 签名者集合在构造时固定
type FrostAggregator struct {
	cfg      AggregatorConfig
	signers  map[frost.Identifier]SignerClient
	ids      []frost.Identifier
	keys     session.KeyStore[types.AggregatorKeyState]
	sessions session.SessionStore[types.AggregatorSessionState]
	sweeper  *session.Sweeper
	metrics  *metrics.Collector
	log      btclog.Logger
	now      func() time.Time

	busy *inflight
}

// NewFrostAggregator 使用调用方提供的存储
func NewFrostAggregator(
	cfg AggregatorConfig,
	signers map[frost.Identifier]SignerClient,
	keys session.KeyStore[types.AggregatorKeyState],
	sessions session.SessionStore[types.AggregatorSessionState],
) *FrostAggregator {
	a := &FrostAggregator{
		cfg:      cfg,
		signers:  signers,
		ids:      frost.SortedIdentifiers(signers),
		keys:     keys,
		sessions: sessions,
		metrics:  cfg.Metrics,
		log:      logs.NewSubsystem(logs.SubsystemAggregator),
		now:      time.Now,
		busy:     newInflight(),
	}
	a.sweeper = session.NewSweeper(cfg.SessionTimeout, cfg.CleanupInterval, sessions)
	a.sweeper.OnEvicted = a.metrics.AddEvicted
	return a
}

// NewFrostAggregatorWithBackend cacheSize > 0 时在 key 存储前加 LRU
func NewFrostAggregatorWithBackend(cfg AggregatorConfig, signers map[frost.Identifier]SignerClient, backend session.Backend, cacheSize int) (*FrostAggregator, error) {
	keyCodec := session.BinaryCodec[types.AggregatorKeyState]()
	var keys session.KeyStore[types.AggregatorKeyState] = session.NewKeyStore(backend, AggregatorNamespace, keyCodec)
	if cacheSize > 0 {
		cached, err := session.NewCachedKeyStore(keys, keyCodec, cacheSize, func(s *types.AggregatorKeyState) bool {
			return s.Phase == types.KeyPhaseDkgFinalized
		})
		if err != nil {
			return nil, err
		}
		keys = cached
	}
	sessions := session.NewSessionStore(backend, AggregatorNamespace, session.BinaryCodec[types.AggregatorSessionState]())
	return NewFrostAggregator(cfg, signers, keys, sessions), nil
}

// Signers 已配置的签名者编号（升序）
func (a *FrostAggregator) Signers() []frost.Identifier {
	return append([]frost.Identifier(nil), a.ids...)
}

// checkQuorum 在任何网络调用之前检查
func (a *FrostAggregator) checkQuorum() error {
	if len(a.signers) < int(a.cfg.Threshold) {
		return &InsufficientParticipantsError{Got: len(a.signers), Need: int(a.cfg.Threshold)}
	}
	return nil
}

// inflight 正在扇出的 key / session，防止两个流程同时通过同一个状态检查
type inflight struct {
	mu    sync.Mutex
	slots map[string]string // slot -> op
}

func newInflight() *inflight {
	return &inflight{slots: make(map[string]string)}
}

// reserve 占用 key（sessionID 非空时为 session）直到 release；已被占用返回 InvalidUserState
func (b *inflight) reserve(op string, id types.MusigID, sessionID string) (release func(), err error) {
	slot := id.Key()
	if sessionID != "" {
		slot += "/" + sessionID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if busy, ok := b.slots[slot]; ok {
		return nil, newSessionError(ErrInvalidUserState, op, id, sessionID, fmt.Errorf("%s already in flight", busy))
	}
	b.slots[slot] = op
	return func() {
		b.mu.Lock()
		delete(b.slots, slot)
		b.mu.Unlock()
	}, nil
}

// ========== Fan-out ==========

// fanOut 每个签名者一个 goroutine，全部返回后才结束；任一失败取消其余调用并返回该错误
func fanOut[R any](
	ctx context.Context,
	a *FrostAggregator,
	step string,
	id types.MusigID,
	call func(ctx context.Context, signer frost.Identifier, client SignerClient) (R, error),
) (map[frost.Identifier]R, error) {
	start := time.Now()
	defer func() { a.metrics.ObserveFanOut(step, time.Since(start)) }()

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	out := make(map[frost.Identifier]R, len(a.ids))

	for _, signer := range a.ids {
		signer := signer
		client := a.signers[signer]
		g.Go(func() error {
			cctx, cancel := gctx, context.CancelFunc(func() {})
			if a.cfg.RPCTimeout > 0 {
				cctx, cancel = context.WithTimeout(gctx, a.cfg.RPCTimeout)
			}
			defer cancel()

			resp, err := call(cctx, signer, client)
			if err != nil {
				return signerError(step, id, signer, err)
			}
			if err := checkResponse(resp); err != nil {
				return signerError(step, id, signer, err)
			}
			mu.Lock()
			out[signer] = resp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.log.Warnf("%s %s aborted: %v", step, id, err)
		return nil, err
	}
	return out, nil
}

// checkResponse 签名者返回 nil 响应或缺少必填字段
func checkResponse(resp any) error {
	switch r := resp.(type) {
	case *types.DkgRound1Response:
		if r != nil && r.Round1Package != nil {
			return nil
		}
	case *types.DkgRound2Response:
		if r != nil {
			return nil
		}
	case *types.DkgFinalizeResponse:
		if r != nil && r.PublicKeyPackage != nil {
			return nil
		}
	case *types.SignRound1Response:
		if r != nil && r.Commitments != nil {
			return nil
		}
	case *types.SignRound2Response:
		if r != nil && r.SignatureShare != nil {
			return nil
		}
	default:
		return nil
	}
	return fmt.Errorf("empty %T response", resp)
}

// signerError 保留签名者返回的错误类别，传输层错误统一归为 ErrTransport
func signerError(step string, id types.MusigID, signer frost.Identifier, err error) error {
	wrapped := fmt.Errorf("signer %d: %w", signer, err)
	if KindOf(err) != nil {
		return wrapped
	}
	return newError(ErrTransport, step, id, wrapped)
}

func excludeOwn(m map[frost.Identifier]*frost.Round1Package, own frost.Identifier) map[frost.Identifier]*frost.Round1Package {
	out := make(map[frost.Identifier]*frost.Round1Package, len(m))
	for id, p := range m {
		if id != own {
			out[id] = p
		}
	}
	return out
}

func (a *FrostAggregator) keyState(ctx context.Context, op string, id types.MusigID, want types.KeyPhase) (*types.AggregatorKeyState, error) {
	state, err := a.keys.GetKeyInfo(ctx, id)
	if err != nil {
		return nil, newError(ErrInternal, op, id, err)
	}
	if got := aggPhase(state); got != want {
		return nil, invalidState(op, id, "expected %s, got %s", want, got)
	}
	return state, nil
}

func aggPhase(s *types.AggregatorKeyState) types.KeyPhase {
	if s == nil {
		return types.KeyPhaseNone
	}
	return s.Phase
}

// advanceKey 在存储中把状态从 from 推进到 next，期间状态被别人改动则 InvalidUserState
func (a *FrostAggregator) advanceKey(ctx context.Context, op string, id types.MusigID, from types.KeyPhase, next *types.AggregatorKeyState) error {
	err := a.keys.UpdateKeyInfo(ctx, id, func(cur *types.AggregatorKeyState) (*types.AggregatorKeyState, error) {
		if got := aggPhase(cur); got != from {
			return nil, invalidState(op, id, "expected %s, got %s", from, got)
		}
		return next, nil
	})
	return ensureKind(ErrInternal, op, id, err)
}

// ========== DKG ==========

// RunDkgFlow round1 → round2 → finalize，DKG 要求全部签名者参与
func (a *FrostAggregator) RunDkgFlow(ctx context.Context, id types.MusigID) (pub *frost.PublicKeyPackage, err error) {
	defer func() { a.metrics.ObserveFlow("dkg", err) }()

	if err := a.checkQuorum(); err != nil {
		return nil, err
	}
	if _, err := a.DkgRound1(ctx, id); err != nil {
		return nil, err
	}
	if _, err := a.DkgRound2(ctx, id); err != nil {
		return nil, err
	}
	return a.DkgFinalize(ctx, id)
}

// DkgRound1 要求该 MusigID 尚无 key 状态
func (a *FrostAggregator) DkgRound1(ctx context.Context, id types.MusigID) (map[frost.Identifier]*frost.Round1Package, error) {
	const op = "dkg_round_1"
	if err := a.checkQuorum(); err != nil {
		return nil, err
	}
	if err := id.Validate(); err != nil {
		return nil, newError(ErrInvalidRequest, op, id, err)
	}
	release, err := a.busy.reserve(op, id, "")
	if err != nil {
		return nil, err
	}
	defer release()
	if _, err := a.keyState(ctx, op, id, types.KeyPhaseNone); err != nil {
		return nil, err
	}

	resps, err := fanOut(ctx, a, op, id, func(ctx context.Context, _ frost.Identifier, c SignerClient) (*types.DkgRound1Response, error) {
		return c.DkgRound1(ctx, &types.DkgRound1Request{MusigID: id})
	})
	if err != nil {
		return nil, err
	}

	round1 := make(map[frost.Identifier]*frost.Round1Package, len(resps))
	for signer, r := range resps {
		round1[signer] = r.Round1Package
	}
	next := &types.AggregatorKeyState{Phase: types.KeyPhaseDkgRound1, Round1Packages: round1}
	if err := a.advanceKey(ctx, op, id, types.KeyPhaseNone, next); err != nil {
		return nil, err
	}
	a.log.Infof("%s %s: collected %d round1 packages", op, id, len(round1))
	return round1, nil
}

// DkgRound2 每个签名者收到除自己以外的 round-1 包，结果按 接收方→发送方 合并
func (a *FrostAggregator) DkgRound2(ctx context.Context, id types.MusigID) (map[frost.Identifier]map[frost.Identifier]*types.Round2Package, error) {
	const op = "dkg_round_2"
	if err := a.checkQuorum(); err != nil {
		return nil, err
	}
	release, err := a.busy.reserve(op, id, "")
	if err != nil {
		return nil, err
	}
	defer release()
	state, err := a.keyState(ctx, op, id, types.KeyPhaseDkgRound1)
	if err != nil {
		return nil, err
	}

	resps, err := fanOut(ctx, a, op, id, func(ctx context.Context, signer frost.Identifier, c SignerClient) (*types.DkgRound2Response, error) {
		return c.DkgRound2(ctx, &types.DkgRound2Request{
			MusigID:        id,
			Round1Packages: excludeOwn(state.Round1Packages, signer),
		})
	})
	if err != nil {
		return nil, err
	}

	merged := make(map[frost.Identifier]map[frost.Identifier]*types.Round2Package, len(a.ids))
	for _, recipient := range a.ids {
		merged[recipient] = make(map[frost.Identifier]*types.Round2Package, len(a.ids)-1)
	}
	for _, sender := range frost.SortedIdentifiers(resps) {
		for recipient, pkg := range resps[sender].Round2Packages {
			inbox, ok := merged[recipient]
			if !ok || recipient == sender {
				return nil, newError(ErrInternal, op, id, fmt.Errorf("signer %d produced a package for %d", sender, recipient))
			}
			inbox[sender] = pkg
		}
	}

	next := &types.AggregatorKeyState{
		Phase:          types.KeyPhaseDkgRound2,
		Round1Packages: state.Round1Packages,
		Round2Packages: merged,
	}
	if err := a.advanceKey(ctx, op, id, types.KeyPhaseDkgRound1, next); err != nil {
		return nil, err
	}
	a.log.Infof("%s %s: relayed round2 packages", op, id)
	return merged, nil
}

// DkgFinalize 所有签名者返回的 PublicKeyPackage 必须完全一致
func (a *FrostAggregator) DkgFinalize(ctx context.Context, id types.MusigID) (*frost.PublicKeyPackage, error) {
	const op = "dkg_finalize"
	if err := a.checkQuorum(); err != nil {
		return nil, err
	}
	release, err := a.busy.reserve(op, id, "")
	if err != nil {
		return nil, err
	}
	defer release()
	state, err := a.keyState(ctx, op, id, types.KeyPhaseDkgRound2)
	if err != nil {
		return nil, err
	}

	resps, err := fanOut(ctx, a, op, id, func(ctx context.Context, signer frost.Identifier, c SignerClient) (*types.DkgFinalizeResponse, error) {
		return c.DkgFinalize(ctx, &types.DkgFinalizeRequest{
			MusigID:        id,
			Round1Packages: excludeOwn(state.Round1Packages, signer),
			Round2Packages: state.Round2Packages[signer],
		})
	})
	if err != nil {
		return nil, err
	}

	var agreed *frost.PublicKeyPackage
	for _, signer := range frost.SortedIdentifiers(resps) {
		pkg := resps[signer].PublicKeyPackage
		if agreed == nil {
			agreed = pkg
			continue
		}
		if !agreed.Equal(pkg) {
			return nil, newError(ErrInternal, op, id, fmt.Errorf("public key package from signer %d diverges", signer))
		}
	}
	if agreed == nil {
		return nil, newError(ErrInternal, op, id, errors.New("no public key package returned"))
	}

	next := &types.AggregatorKeyState{Phase: types.KeyPhaseDkgFinalized, PublicKeyPackage: agreed}
	if err := a.advanceKey(ctx, op, id, types.KeyPhaseDkgRound2, next); err != nil {
		return nil, err
	}
	a.log.Infof("%s %s: group key %s", op, id, agreed.VerifyingKey)
	return agreed, nil
}

// PublicKeyPackage 已完成 DKG 的公钥包；tweak 非 nil 时返回 tweak 之后的
func (a *FrostAggregator) PublicKeyPackage(ctx context.Context, id types.MusigID, tweak *types.TweakBytes) (*frost.PublicKeyPackage, error) {
	const op = "public_key_package"
	state, err := a.keyState(ctx, op, id, types.KeyPhaseDkgFinalized)
	if err != nil {
		return nil, err
	}
	if tweak == nil {
		return state.PublicKeyPackage, nil
	}
	pub, err := state.PublicKeyPackage.Tweak(tweak.Bytes())
	if err != nil {
		return nil, newError(ErrInternal, op, id, err)
	}
	return pub, nil
}

// ========== 签名 ==========

// RunSigningFlow 新建会话并完成两轮签名，返回已验证的签名
func (a *FrostAggregator) RunSigningFlow(ctx context.Context, id types.MusigID, messageHash []byte, metadata types.SigningMetadata, tweak *types.TweakBytes) (sig *frost.Signature, err error) {
	defer func() { a.metrics.ObserveFlow("sign", err) }()

	if err := a.checkQuorum(); err != nil {
		return nil, err
	}
	sessionID := uuid.NewString()
	if _, err := a.SignRound1(ctx, id, sessionID, messageHash, metadata, tweak); err != nil {
		return nil, err
	}
	return a.SignRound2(ctx, id, sessionID)
}

// SignRound1 收集全部承诺，组成按 Identifier 排序的 SigningPackage
func (a *FrostAggregator) SignRound1(ctx context.Context, id types.MusigID, sessionID string, messageHash []byte, metadata types.SigningMetadata, tweak *types.TweakBytes) (*frost.SigningPackage, error) {
	const op = "sign_round_1"
	if err := a.checkQuorum(); err != nil {
		return nil, err
	}
	if err := metadata.Validate(); err != nil {
		return nil, newSessionError(ErrInvalidRequest, op, id, sessionID, err)
	}
	if sessionID == "" || len(messageHash) == 0 {
		return nil, newSessionError(ErrInvalidRequest, op, id, sessionID, errors.New("session id and message hash required"))
	}
	release, err := a.busy.reserve(op, id, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()
	if _, err := a.keyState(ctx, op, id, types.KeyPhaseDkgFinalized); err != nil {
		return nil, err
	}
	existing, err := a.sessions.GetSessionInfo(ctx, id, sessionID)
	if err != nil {
		return nil, newSessionError(ErrInternal, op, id, sessionID, err)
	}
	if existing != nil {
		return nil, newSessionError(ErrInvalidUserState, op, id, sessionID, fmt.Errorf("session already in %s", existing.Phase))
	}

	resps, err := fanOut(ctx, a, op, id, func(ctx context.Context, _ frost.Identifier, c SignerClient) (*types.SignRound1Response, error) {
		return c.SignRound1(ctx, &types.SignRound1Request{
			MusigID:     id,
			SessionID:   sessionID,
			MessageHash: messageHash,
			Metadata:    metadata,
			Tweak:       tweak,
		})
	})
	if err != nil {
		return nil, err
	}

	pkg := &frost.SigningPackage{
		Commitments: make(map[frost.Identifier]*frost.SigningCommitments, len(resps)),
		Message:     messageHash,
	}
	for signer, r := range resps {
		pkg.Commitments[signer] = r.Commitments
	}

	err = a.sessions.UpdateSessionInfo(ctx, id, sessionID, func(cur *types.AggregatorSessionState) (*types.AggregatorSessionState, error) {
		if cur != nil {
			return nil, newSessionError(ErrInvalidUserState, op, id, sessionID, fmt.Errorf("session already in %s", cur.Phase))
		}
		return &types.AggregatorSessionState{
			Phase:          types.SessionPhaseSigningRound1,
			SigningPackage: pkg,
			Tweak:          tweak,
			MessageHash:    messageHash,
			Metadata:       metadata,
			CreatedAt:      a.now(),
		}, nil
	})
	if err != nil {
		return nil, ensureKind(ErrInternal, op, id, err)
	}
	a.log.Debugf("%s %s session=%s: %d commitments", op, id, sessionID, len(pkg.Commitments))
	return pkg, nil
}

// SignRound2 收集份额、聚合，并在持久化前用（tweak 后的）群公钥验签
func (a *FrostAggregator) SignRound2(ctx context.Context, id types.MusigID, sessionID string) (*frost.Signature, error) {
	const op = "sign_round_2"
	if err := a.checkQuorum(); err != nil {
		return nil, err
	}
	release, err := a.busy.reserve(op, id, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()
	sess, err := a.sessions.GetSessionInfo(ctx, id, sessionID)
	if err != nil {
		return nil, newSessionError(ErrInternal, op, id, sessionID, err)
	}
	if sess == nil {
		return nil, newSessionError(ErrSessionNotFound, op, id, sessionID, nil)
	}
	if sess.Phase != types.SessionPhaseSigningRound1 {
		return nil, newSessionError(ErrInvalidUserState, op, id, sessionID,
			fmt.Errorf("expected %s, got %s", types.SessionPhaseSigningRound1, sess.Phase))
	}
	pub, err := a.PublicKeyPackage(ctx, id, sess.Tweak)
	if err != nil {
		return nil, err
	}

	resps, err := fanOut(ctx, a, op, id, func(ctx context.Context, _ frost.Identifier, c SignerClient) (*types.SignRound2Response, error) {
		return c.SignRound2(ctx, &types.SignRound2Request{
			MusigID:        id,
			SessionID:      sessionID,
			SigningPackage: sess.SigningPackage,
		})
	})
	if err != nil {
		return nil, err
	}

	shares := make(map[frost.Identifier]*frost.SignatureShare, len(resps))
	for signer, r := range resps {
		shares[signer] = r.SignatureShare
	}
	sig, err := frost.Aggregate(sess.SigningPackage, shares, pub)
	if err != nil {
		return nil, newSessionError(ErrInternal, op, id, sessionID, err)
	}
	if err := frost.VerifySignature(sig, sess.MessageHash, pub.VerifyingKey); err != nil {
		return nil, newSessionError(ErrInternal, op, id, sessionID, err)
	}

	err = a.sessions.UpdateSessionInfo(ctx, id, sessionID, func(cur *types.AggregatorSessionState) (*types.AggregatorSessionState, error) {
		if cur == nil {
			return nil, newSessionError(ErrSessionNotFound, op, id, sessionID, nil)
		}
		if cur.Phase != types.SessionPhaseSigningRound1 {
			return nil, newSessionError(ErrInvalidUserState, op, id, sessionID,
				fmt.Errorf("expected %s, got %s", types.SessionPhaseSigningRound1, cur.Phase))
		}
		cur.Phase = types.SessionPhaseSigningRound2
		cur.Signature = sig
		return cur, nil
	})
	if err != nil {
		return nil, ensureKind(ErrInternal, op, id, err)
	}
	a.log.Infof("%s %s session=%s: signature verified", op, id, sessionID)
	return sig, nil
}

// GetSession 不存在或已被清理时返回 ErrSessionNotFound
func (a *FrostAggregator) GetSession(ctx context.Context, id types.MusigID, sessionID string) (*types.AggregatorSessionState, error) {
	const op = "get_session"
	sess, err := a.sessions.GetSessionInfo(ctx, id, sessionID)
	if err != nil {
		return nil, newSessionError(ErrInternal, op, id, sessionID, err)
	}
	if sess == nil {
		return nil, newSessionError(ErrSessionNotFound, op, id, sessionID, nil)
	}
	return sess, nil
}

// ========== 清理 ==========

// CleanupExpiredSessions 删除超过 SessionTimeout 的会话
func (a *FrostAggregator) CleanupExpiredSessions(ctx context.Context) (int, error) {
	return a.sweeper.SweepOnce(ctx)
}

// StartCleanup 后台周期清理，ctx 取消后退出
func (a *FrostAggregator) StartCleanup(ctx context.Context) {
	go a.sweeper.Run(ctx)
}
