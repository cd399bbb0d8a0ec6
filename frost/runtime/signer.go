// frost/runtime/signer.go
// FrostSigner：单个参与者的 DKG 与两轮签名，每次迁移是一次原子读-改-写

package runtime

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"frostsign/frost/core/curve"
	"frostsign/frost/core/frost"
	"frostsign/frost/runtime/session"
	"frostsign/frost/runtime/types"
	"frostsign/frost/security"
	"frostsign/logs"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btclog"
)

// ========== 配置 ==========

// SignerConfig 签名者的固定身份与群参数
type SignerConfig struct {
	Identifier frost.Identifier
	Threshold  uint16
	Total      uint16

	// IdentityKey 用于解封别人发来的 round-2 份额
	IdentityKey *btcec.PrivateKey
	// PeerIdentities 所有参与者（含自己）的身份公钥，用于封装 round-2 份额
	PeerIdentities map[frost.Identifier]*btcec.PublicKey

	// Rand 为 nil 时使用 crypto/rand
	Rand io.Reader
}

// Validate 检查群参数与身份表
func (c *SignerConfig) Validate() error {
	if c.Threshold < 2 || c.Threshold > c.Total {
		return fmt.Errorf("invalid threshold %d of %d", c.Threshold, c.Total)
	}
	if err := c.Identifier.Validate(c.Total); err != nil {
		return err
	}
	if c.IdentityKey == nil {
		return errors.New("identity key required")
	}
	for i := uint16(1); i <= c.Total; i++ {
		if c.PeerIdentities[frost.Identifier(i)] == nil {
			return fmt.Errorf("missing identity public key for participant %d", i)
		}
	}
	return nil
}

// SignerNamespace 签名者在共享 backend 中的命名空间
func SignerNamespace(id frost.Identifier) string {
	return fmt.Sprintf("signer/%d", id)
}

// ========== FrostSigner ==========

// FrostSigner 不感知网络，只处理请求并维护自己的存储
type FrostSigner struct {
	cfg      SignerConfig
	rand     io.Reader
	keys     session.KeyStore[types.SignerKeyState]
	sessions session.SessionStore[types.SignerSessionState]
	log      btclog.Logger
	now      func() time.Time
}

// NewFrostSigner 使用调用方提供的存储
func NewFrostSigner(cfg SignerConfig, keys session.KeyStore[types.SignerKeyState], sessions session.SessionStore[types.SignerSessionState]) (*FrostSigner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("signer config: %w", err)
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.Reader
	}
	return &FrostSigner{
		cfg:      cfg,
		rand:     rng,
		keys:     keys,
		sessions: sessions,
		log:      logs.NewSubsystem(logs.SubsystemSigner),
		now:      time.Now,
	}, nil
}

// NewFrostSignerWithBackend 在 backend 上按 SignerNamespace 建立存储
func NewFrostSignerWithBackend(cfg SignerConfig, backend session.Backend) (*FrostSigner, error) {
	ns := SignerNamespace(cfg.Identifier)
	return NewFrostSigner(cfg,
		session.NewKeyStore(backend, ns, session.BinaryCodec[types.SignerKeyState]()),
		session.NewSessionStore(backend, ns, session.BinaryCodec[types.SignerSessionState]()),
	)
}

// Identifier 本签名者的编号
func (s *FrostSigner) Identifier() frost.Identifier {
	return s.cfg.Identifier
}

// shareAAD 绑定份额的上下文，防止密文被挪用到其他 MusigID 或参与者
func shareAAD(id types.MusigID, sender, recipient frost.Identifier) []byte {
	aad := []byte(id.Key())
	aad = append(aad, sender.Bytes()...)
	return append(aad, recipient.Bytes()...)
}

// ========== DKG ==========

// DkgRound1 要求该 MusigID 尚无任何 key 状态
func (s *FrostSigner) DkgRound1(ctx context.Context, req *types.DkgRound1Request) (*types.DkgRound1Response, error) {
	const op = "dkg_round_1"
	id := req.MusigID
	if err := id.Validate(); err != nil {
		return nil, newError(ErrInvalidRequest, op, id, err)
	}

	var pkg *frost.Round1Package
	err := s.keys.UpdateKeyInfo(ctx, id, func(cur *types.SignerKeyState) (*types.SignerKeyState, error) {
		if cur != nil {
			return nil, invalidState(op, id, "key state is %s", cur.Phase)
		}
		secret, p, err := frost.DkgPart1(s.cfg.Identifier, s.cfg.Total, s.cfg.Threshold, s.rand)
		if err != nil {
			return nil, newError(ErrInternal, op, id, err)
		}
		pkg = p
		return &types.SignerKeyState{Phase: types.KeyPhaseDkgRound1, Round1Secret: secret}, nil
	})
	if err != nil {
		return nil, ensureKind(ErrInternal, op, id, err)
	}
	s.log.Debugf("%s %s: round1 package generated", op, id)
	return &types.DkgRound1Response{Round1Package: pkg}, nil
}

// DkgRound2 输入为其他参与者的 round-1 包，输出按接收方加密的份额
func (s *FrostSigner) DkgRound2(ctx context.Context, req *types.DkgRound2Request) (*types.DkgRound2Response, error) {
	const op = "dkg_round_2"
	id := req.MusigID
	if _, ok := req.Round1Packages[s.cfg.Identifier]; ok {
		return nil, newError(ErrInvalidRequest, op, id, errors.New("own round1 package must be excluded"))
	}

	var sealed map[frost.Identifier]*types.Round2Package
	err := s.keys.UpdateKeyInfo(ctx, id, func(cur *types.SignerKeyState) (*types.SignerKeyState, error) {
		if cur == nil || cur.Phase != types.KeyPhaseDkgRound1 {
			return nil, invalidState(op, id, "expected %s, got %s", types.KeyPhaseDkgRound1, phaseOf(cur))
		}
		secret2, shares, err := frost.DkgPart2(cur.Round1Secret, req.Round1Packages)
		if err != nil {
			return nil, newError(ErrInternal, op, id, err)
		}
		defer func() {
			for _, sh := range shares {
				sh.Zeroize()
			}
		}()

		out := make(map[frost.Identifier]*types.Round2Package, len(shares))
		for _, recipient := range frost.SortedIdentifiers(shares) {
			ct, err := s.seal(id, recipient, shares[recipient])
			if err != nil {
				secret2.Zeroize()
				return nil, newError(ErrInternal, op, id, err)
			}
			out[recipient] = &types.Round2Package{Ciphertext: ct}
		}
		sealed = out

		cur.Round1Secret.Zeroize()
		return &types.SignerKeyState{
			Phase:          types.KeyPhaseDkgRound2,
			Round2Secret:   secret2,
			Round1Packages: req.Round1Packages,
		}, nil
	})
	if err != nil {
		return nil, ensureKind(ErrInternal, op, id, err)
	}
	s.log.Debugf("%s %s: sealed %d shares", op, id, len(sealed))
	return &types.DkgRound2Response{Round2Packages: sealed}, nil
}

func (s *FrostSigner) seal(id types.MusigID, recipient frost.Identifier, share *frost.Round2Package) ([]byte, error) {
	pub := s.cfg.PeerIdentities[recipient]
	if pub == nil {
		return nil, fmt.Errorf("%w: no identity key for %d", frost.ErrUnknownParticipant, recipient)
	}
	raw, err := share.MarshalBinary()
	if err != nil {
		return nil, err
	}
	defer curve.Zeroize(raw)
	return security.SealShare(pub, raw, shareAAD(id, s.cfg.Identifier, recipient), s.rand)
}

func (s *FrostSigner) open(id types.MusigID, sender frost.Identifier, pkg *types.Round2Package) (*frost.Round2Package, error) {
	if pkg == nil {
		return nil, fmt.Errorf("missing round2 package from %d", sender)
	}
	raw, err := security.ECIESDecrypt(s.cfg.IdentityKey, pkg.Ciphertext, shareAAD(id, sender, s.cfg.Identifier))
	if err != nil {
		return nil, fmt.Errorf("open share from %d: %w", sender, err)
	}
	defer curve.Zeroize(raw)
	share := new(frost.Round2Package)
	if err := share.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode share from %d: %w", sender, err)
	}
	return share, nil
}

// DkgFinalize 解封收到的份额，得到本地 KeyPackage 与公共 PublicKeyPackage
func (s *FrostSigner) DkgFinalize(ctx context.Context, req *types.DkgFinalizeRequest) (*types.DkgFinalizeResponse, error) {
	const op = "dkg_finalize"
	id := req.MusigID

	var pub *frost.PublicKeyPackage
	err := s.keys.UpdateKeyInfo(ctx, id, func(cur *types.SignerKeyState) (*types.SignerKeyState, error) {
		if cur == nil || cur.Phase != types.KeyPhaseDkgRound2 {
			return nil, invalidState(op, id, "expected %s, got %s", types.KeyPhaseDkgRound2, phaseOf(cur))
		}
		if !round1Equal(cur.Round1Packages, req.Round1Packages) {
			return nil, newError(ErrInvalidRequest, op, id, errors.New("round1 packages differ from round 2"))
		}

		opened := make(map[frost.Identifier]*frost.Round2Package, len(req.Round2Packages))
		defer func() {
			for _, sh := range opened {
				sh.Zeroize()
			}
		}()
		for _, sender := range frost.SortedIdentifiers(req.Round2Packages) {
			share, err := s.open(id, sender, req.Round2Packages[sender])
			if err != nil {
				return nil, newError(ErrInternal, op, id, err)
			}
			opened[sender] = share
		}

		key, pkg, err := frost.DkgPart3(cur.Round2Secret, cur.Round1Packages, opened)
		if err != nil {
			return nil, newError(ErrInternal, op, id, err)
		}
		pub = pkg
		cur.Round2Secret.Zeroize()
		return &types.SignerKeyState{Phase: types.KeyPhaseDkgFinalized, KeyPackage: key}, nil
	})
	if err != nil {
		return nil, ensureKind(ErrInternal, op, id, err)
	}
	s.log.Infof("%s %s: key finalized, group key %s", op, id, pub.VerifyingKey)
	return &types.DkgFinalizeResponse{PublicKeyPackage: pub}, nil
}

func round1Equal(a, b map[frost.Identifier]*frost.Round1Package) bool {
	if len(a) != len(b) {
		return false
	}
	for id, pa := range a {
		pb, ok := b[id]
		if !ok || pa == nil || pb == nil {
			return false
		}
		ea, err := pa.MarshalBinary()
		if err != nil {
			return false
		}
		eb, err := pb.MarshalBinary()
		if err != nil || !bytes.Equal(ea, eb) {
			return false
		}
	}
	return true
}

func phaseOf(s *types.SignerKeyState) types.KeyPhase {
	if s == nil {
		return types.KeyPhaseNone
	}
	return s.Phase
}

// ========== 签名 ==========

// finalizedKey 读取已完成 DKG 的 KeyPackage，并按需施加 tweak
func (s *FrostSigner) finalizedKey(ctx context.Context, op string, id types.MusigID, tweak *types.TweakBytes) (*frost.KeyPackage, error) {
	state, err := s.keys.GetKeyInfo(ctx, id)
	if err != nil {
		return nil, newError(ErrInternal, op, id, err)
	}
	if state == nil || state.Phase != types.KeyPhaseDkgFinalized || state.KeyPackage == nil {
		return nil, invalidState(op, id, "expected %s, got %s", types.KeyPhaseDkgFinalized, phaseOf(state))
	}
	if tweak == nil {
		return state.KeyPackage, nil
	}
	tweaked, err := state.KeyPackage.Tweak(tweak.Bytes())
	state.KeyPackage.Zeroize()
	if err != nil {
		return nil, newError(ErrInternal, op, id, err)
	}
	return tweaked, nil
}

// SignRound1 生成一次性 nonce，会话 ID 不允许重复
func (s *FrostSigner) SignRound1(ctx context.Context, req *types.SignRound1Request) (*types.SignRound1Response, error) {
	const op = "sign_round_1"
	id := req.MusigID
	if err := req.Metadata.Validate(); err != nil {
		return nil, newSessionError(ErrInvalidRequest, op, id, req.SessionID, err)
	}
	if req.SessionID == "" || len(req.MessageHash) == 0 {
		return nil, newSessionError(ErrInvalidRequest, op, id, req.SessionID, errors.New("session id and message hash required"))
	}

	key, err := s.finalizedKey(ctx, op, id, req.Tweak)
	if err != nil {
		return nil, err
	}
	defer key.Zeroize()

	var commitments *frost.SigningCommitments
	err = s.sessions.UpdateSessionInfo(ctx, id, req.SessionID, func(cur *types.SignerSessionState) (*types.SignerSessionState, error) {
		if cur != nil {
			return nil, newSessionError(ErrInvalidUserState, op, id, req.SessionID,
				fmt.Errorf("session already in %s", cur.Phase))
		}
		nonces, c, err := frost.Commit(key, s.rand)
		if err != nil {
			return nil, newSessionError(ErrInternal, op, id, req.SessionID, err)
		}
		commitments = c
		return &types.SignerSessionState{
			Phase:       types.SessionPhaseSigningRound1,
			Nonces:      nonces,
			Tweak:       req.Tweak,
			MessageHash: req.MessageHash,
			Metadata:    req.Metadata,
			CreatedAt:   s.now(),
		}, nil
	})
	if err != nil {
		return nil, ensureKind(ErrInternal, op, id, err)
	}
	s.log.Debugf("%s %s session=%s purpose=%s", op, id, req.SessionID, req.Metadata.Purpose)
	return &types.SignRound1Response{Commitments: commitments}, nil
}

// SignRound2 校验消息与自身承诺后计算份额，nonce 与份额在同一次写入中替换
func (s *FrostSigner) SignRound2(ctx context.Context, req *types.SignRound2Request) (*types.SignRound2Response, error) {
	const op = "sign_round_2"
	id := req.MusigID
	if req.SigningPackage == nil {
		return nil, newSessionError(ErrInvalidRequest, op, id, req.SessionID, errors.New("missing signing package"))
	}

	base, err := s.finalizedKey(ctx, op, id, nil)
	if err != nil {
		return nil, err
	}
	defer base.Zeroize()

	var share *frost.SignatureShare
	err = s.sessions.UpdateSessionInfo(ctx, id, req.SessionID, func(cur *types.SignerSessionState) (*types.SignerSessionState, error) {
		if cur == nil {
			return nil, newSessionError(ErrSessionNotFound, op, id, req.SessionID, nil)
		}
		if cur.Phase != types.SessionPhaseSigningRound1 || cur.Nonces == nil {
			return nil, newSessionError(ErrInvalidUserState, op, id, req.SessionID,
				fmt.Errorf("expected %s, got %s", types.SessionPhaseSigningRound1, cur.Phase))
		}
		if !bytes.Equal(req.SigningPackage.Message, cur.MessageHash) {
			return nil, newSessionError(ErrInvalidRequest, op, id, req.SessionID, errors.New("message differs from round 1"))
		}
		if !req.SigningPackage.Commitments[s.cfg.Identifier].Equal(cur.Nonces.Commitments) {
			return nil, newSessionError(ErrInvalidRequest, op, id, req.SessionID, frost.ErrIncorrectCommitment)
		}

		key := base
		if cur.Tweak != nil {
			tweaked, err := base.Tweak(cur.Tweak.Bytes())
			if err != nil {
				return nil, newSessionError(ErrInternal, op, id, req.SessionID, err)
			}
			defer tweaked.Zeroize()
			key = tweaked
		}

		sh, err := frost.Sign(req.SigningPackage, cur.Nonces, key)
		if err != nil {
			return nil, newSessionError(ErrInternal, op, id, req.SessionID, err)
		}
		share = sh

		cur.Zeroize()
		cur.Nonces = nil
		cur.Phase = types.SessionPhaseSigningRound2
		cur.SignatureShare = sh
		return cur, nil
	})
	if err != nil {
		return nil, ensureKind(ErrInternal, op, id, err)
	}
	s.log.Debugf("%s %s session=%s: share produced", op, id, req.SessionID)
	return &types.SignRound2Response{SignatureShare: share}, nil
}

// GetKeyState 供运维查询：只返回阶段与群公钥，不暴露秘密
func (s *FrostSigner) GetKeyState(ctx context.Context, id types.MusigID) (types.KeyPhase, *curve.Point, error) {
	state, err := s.keys.GetKeyInfo(ctx, id)
	if err != nil {
		return types.KeyPhaseNone, nil, newError(ErrInternal, "get_key_state", id, err)
	}
	if state == nil {
		return types.KeyPhaseNone, nil, nil
	}
	defer state.Zeroize()
	if state.KeyPackage == nil {
		return state.Phase, nil, nil
	}
	return state.Phase, state.KeyPackage.VerifyingKey, nil
}

// CleanupSessions 删除早于 cutoff 的会话（含未使用的 nonce）
func (s *FrostSigner) CleanupSessions(ctx context.Context, cutoff time.Time) (int, error) {
	return s.sessions.DeleteSessionsBefore(ctx, cutoff)
}
