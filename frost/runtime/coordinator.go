// frost/runtime/coordinator.go
// Coordinator：参与者注册表 + DKG 会话表，按需为选中的参与者构造 FrostAggregator

package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"frostsign/frost/core/frost"
	"frostsign/frost/runtime/session"
	"frostsign/frost/runtime/types"
	"frostsign/logs"
	"frostsign/metrics"

	"github.com/btcsuite/btclog"
	"github.com/google/uuid"
)

// ========== 配置 ==========

// CoordinatorConfig 协调者配置
type CoordinatorConfig struct {
	Threshold      uint16
	SessionTimeout time.Duration
	RPCTimeout     time.Duration

	Metrics *metrics.Collector
}

// DefaultCoordinatorConfig 默认配置
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Threshold:      2,
		SessionTimeout: 10 * time.Minute,
		RPCTimeout:     30 * time.Second,
	}
}

// ========== 会话 ==========

// DkgSessionStatus DKG 会话状态
type DkgSessionStatus int

const (
	DkgSessionPending DkgSessionStatus = iota
	DkgSessionCompleted
	DkgSessionFailed
)

func (s DkgSessionStatus) String() string {
	switch s {
	case DkgSessionPending:
		return "pending"
	case DkgSessionCompleted:
		return "completed"
	case DkgSessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DkgSession 一次 DKG 的参与者快照与结果
type DkgSession struct {
	ID               string
	Participants     []frost.Identifier
	Status           DkgSessionStatus
	CreatedAt        time.Time
	CompletedAt      time.Time
	PublicKeyPackage *frost.PublicKeyPackage
	Err              error
}

func (s *DkgSession) clone() *DkgSession {
	c := *s
	c.Participants = append([]frost.Identifier(nil), s.Participants...)
	return &c
}

// ========== Coordinator ==========

// Coordinator 注册表与会话表各用一把读写锁
type Coordinator struct {
	cfg     CoordinatorConfig
	backend session.Backend
	log     btclog.Logger
	now     func() time.Time

	pmu          sync.RWMutex
	participants map[frost.Identifier]SignerClient

	smu      sync.RWMutex
	sessions map[string]*DkgSession // sessionID -> session

	busy *inflight // 所有会话的聚合者共用
}

// NewCoordinator backend 为 nil 时使用内存存储
func NewCoordinator(cfg CoordinatorConfig, backend session.Backend) *Coordinator {
	if backend == nil {
		backend = session.NewMemoryBackend()
	}
	return &Coordinator{
		cfg:          cfg,
		backend:      backend,
		log:          logs.NewSubsystem(logs.SubsystemAggregator),
		now:          time.Now,
		participants: make(map[frost.Identifier]SignerClient),
		sessions:     make(map[string]*DkgSession),
		busy:         newInflight(),
	}
}

func coordError(kind error, op, sessionID string, err error) *Error {
	return &Error{Kind: kind, Op: op, SessionID: sessionID, Err: err}
}

// AddParticipant 重复添加返回 ErrParticipantExists
func (c *Coordinator) AddParticipant(id frost.Identifier, client SignerClient) error {
	if id == 0 || client == nil {
		return coordError(ErrInvalidRequest, "add_participant", "", fmt.Errorf("participant %d", id))
	}
	c.pmu.Lock()
	defer c.pmu.Unlock()
	if _, ok := c.participants[id]; ok {
		return coordError(ErrParticipantExists, "add_participant", "", fmt.Errorf("participant %d", id))
	}
	c.participants[id] = client
	c.log.Infof("participant %d added", id)
	return nil
}

// RemoveParticipant 未知参与者返回 ErrParticipantNotFound
func (c *Coordinator) RemoveParticipant(id frost.Identifier) error {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	if _, ok := c.participants[id]; !ok {
		return coordError(ErrParticipantNotFound, "remove_participant", "", fmt.Errorf("participant %d", id))
	}
	delete(c.participants, id)
	c.log.Infof("participant %d removed", id)
	return nil
}

// Participants 已注册参与者（升序）
func (c *Coordinator) Participants() []frost.Identifier {
	c.pmu.RLock()
	defer c.pmu.RUnlock()
	return frost.SortedIdentifiers(c.participants)
}

// StartDkgSession 先检查门限再检查成员，成功后返回新会话 ID；不发起任何网络调用
func (c *Coordinator) StartDkgSession(participants []frost.Identifier) (string, error) {
	const op = "start_dkg_session"
	if len(participants) < int(c.cfg.Threshold) {
		return "", &InsufficientParticipantsError{Got: len(participants), Need: int(c.cfg.Threshold)}
	}

	ids := append([]frost.Identifier(nil), participants...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	c.pmu.RLock()
	for i, id := range ids {
		if _, ok := c.participants[id]; !ok {
			c.pmu.RUnlock()
			return "", coordError(ErrParticipantNotFound, op, "", fmt.Errorf("participant %d", id))
		}
		if i > 0 && ids[i-1] == id {
			c.pmu.RUnlock()
			return "", coordError(ErrParticipantExists, op, "", fmt.Errorf("participant %d listed twice", id))
		}
	}
	c.pmu.RUnlock()

	sess := &DkgSession{
		ID:           uuid.NewString(),
		Participants: ids,
		Status:       DkgSessionPending,
		CreatedAt:    c.now(),
	}
	c.smu.Lock()
	c.sessions[sess.ID] = sess
	c.smu.Unlock()

	c.log.Infof("%s: session=%s participants=%v", op, sess.ID, ids)
	return sess.ID, nil
}

// GetSession 返回副本；不存在或已过期返回 ErrSessionNotFound
func (c *Coordinator) GetSession(sessionID string) (*DkgSession, error) {
	c.smu.RLock()
	defer c.smu.RUnlock()
	sess, ok := c.sessions[sessionID]
	if !ok {
		return nil, coordError(ErrSessionNotFound, "get_session", sessionID, nil)
	}
	return sess.clone(), nil
}

// CompleteSession 记录结果；只有 pending 会话可以完成
func (c *Coordinator) CompleteSession(sessionID string, pub *frost.PublicKeyPackage, runErr error) error {
	const op = "complete_session"
	c.smu.Lock()
	defer c.smu.Unlock()
	sess, ok := c.sessions[sessionID]
	if !ok {
		return coordError(ErrSessionNotFound, op, sessionID, nil)
	}
	if sess.Status != DkgSessionPending {
		return coordError(ErrInvalidUserState, op, sessionID, fmt.Errorf("session is %s", sess.Status))
	}
	sess.CompletedAt = c.now()
	if runErr != nil {
		sess.Status = DkgSessionFailed
		sess.Err = runErr
		return nil
	}
	sess.Status = DkgSessionCompleted
	sess.PublicKeyPackage = pub
	return nil
}

// RunDkgSession 用会话中的参与者构造 FrostAggregator 完成 DKG，并记录结果
func (c *Coordinator) RunDkgSession(ctx context.Context, sessionID string, id types.MusigID) (*frost.PublicKeyPackage, error) {
	sess, err := c.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != DkgSessionPending {
		return nil, coordError(ErrInvalidUserState, "run_dkg_session", sessionID, fmt.Errorf("session is %s", sess.Status))
	}

	signers := make(map[frost.Identifier]SignerClient, len(sess.Participants))
	c.pmu.RLock()
	for _, pid := range sess.Participants {
		client, ok := c.participants[pid]
		if !ok {
			c.pmu.RUnlock()
			return nil, coordError(ErrParticipantNotFound, "run_dkg_session", sessionID, fmt.Errorf("participant %d", pid))
		}
		signers[pid] = client
	}
	c.pmu.RUnlock()

	agg, err := NewFrostAggregatorWithBackend(AggregatorConfig{
		Threshold:      c.cfg.Threshold,
		SessionTimeout: c.cfg.SessionTimeout,
		RPCTimeout:     c.cfg.RPCTimeout,
		Metrics:        c.cfg.Metrics,
	}, signers, c.backend, 0)
	if err != nil {
		return nil, err
	}
	agg.busy = c.busy
	pub, runErr := agg.RunDkgFlow(ctx, id)
	if err := c.CompleteSession(sessionID, pub, runErr); err != nil {
		return nil, err
	}
	return pub, runErr
}

// CleanupExpiredSessions 删除创建超过 SessionTimeout 的会话
func (c *Coordinator) CleanupExpiredSessions() int {
	cutoff := c.now().Add(-c.cfg.SessionTimeout)
	c.smu.Lock()
	defer c.smu.Unlock()
	n := 0
	for id, sess := range c.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(c.sessions, id)
			n++
		}
	}
	if n > 0 {
		c.log.Debugf("evicted %d expired dkg sessions", n)
		c.cfg.Metrics.AddEvicted(n)
	}
	return n
}

// Run 周期清理，ctx 取消后返回
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.cfg.SessionTimeout / 2
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanupExpiredSessions()
		}
	}
}
