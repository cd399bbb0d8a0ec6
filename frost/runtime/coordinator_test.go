package runtime

import (
	"context"
	"testing"
	"time"

	"frostsign/frost/core/frost"
	"frostsign/frost/runtime/types"
	"frostsign/hasher"

	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestCoordinator(t *testing.T, threshold uint16) (*Coordinator, map[frost.Identifier]*FrostSigner) {
	t.Helper()
	cfg := DefaultCoordinatorConfig()
	cfg.Threshold = threshold
	c := NewCoordinator(cfg, nil)
	signers := newTestSigners(t, 3, threshold)
	for id, s := range signers {
		require.NoError(t, c.AddParticipant(id, s))
	}
	return c, signers
}

func TestCoordinatorParticipants(t *testing.T) {
	c, signers := newTestCoordinator(t, 2)
	assert.Equal(t, []frost.Identifier{1, 2, 3}, c.Participants())

	assert.ErrorIs(t, c.AddParticipant(1, signers[1]), ErrParticipantExists)
	assert.ErrorIs(t, c.AddParticipant(0, signers[1]), ErrInvalidRequest)
	assert.ErrorIs(t, c.AddParticipant(4, nil), ErrInvalidRequest)

	require.NoError(t, c.RemoveParticipant(3))
	assert.ErrorIs(t, c.RemoveParticipant(3), ErrParticipantNotFound)
	assert.Equal(t, []frost.Identifier{1, 2}, c.Participants())
}

func TestCoordinatorStartDkgSessionChecks(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	cfg.Threshold = 3
	c := NewCoordinator(cfg, nil)
	a, b := &countingClient{}, &countingClient{}
	require.NoError(t, c.AddParticipant(1, a))
	require.NoError(t, c.AddParticipant(2, b))

	_, err := c.StartDkgSession([]frost.Identifier{1, 2})
	assert.ErrorIs(t, err, ErrInsufficientParticipants)
	assert.Zero(t, a.calls.Load())
	assert.Zero(t, b.calls.Load())

	_, err = c.StartDkgSession([]frost.Identifier{1, 2, 9})
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	_, err = c.StartDkgSession([]frost.Identifier{1, 2, 2})
	assert.ErrorIs(t, err, ErrParticipantExists)
}

func TestCoordinatorRunDkgSession(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, 2)

	sid, err := c.StartDkgSession([]frost.Identifier{3, 1, 2})
	require.NoError(t, err)
	sess, err := c.GetSession(sid)
	require.NoError(t, err)
	assert.Equal(t, DkgSessionPending, sess.Status)
	assert.Equal(t, []frost.Identifier{1, 2, 3}, sess.Participants)

	pub, err := c.RunDkgSession(ctx, sid, testMusigID(t))
	require.NoError(t, err)

	sess, err = c.GetSession(sid)
	require.NoError(t, err)
	assert.Equal(t, DkgSessionCompleted, sess.Status)
	assert.True(t, pub.Equal(sess.PublicKeyPackage))
	assert.False(t, sess.CompletedAt.IsZero())

	_, err = c.RunDkgSession(ctx, sid, testMusigID(t))
	assert.ErrorIs(t, err, ErrInvalidUserState)
	assert.ErrorIs(t, c.CompleteSession(sid, nil, nil), ErrInvalidUserState)
}

func TestCoordinatorFailedSession(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, 2)
	id := testMusigID(t)

	first, err := c.StartDkgSession([]frost.Identifier{1, 2, 3})
	require.NoError(t, err)
	_, err = c.RunDkgSession(ctx, first, id)
	require.NoError(t, err)

	// 同一 MusigID 不能重复 DKG
	second, err := c.StartDkgSession([]frost.Identifier{1, 2, 3})
	require.NoError(t, err)
	_, err = c.RunDkgSession(ctx, second, id)
	require.ErrorIs(t, err, ErrInvalidUserState)

	sess, err := c.GetSession(second)
	require.NoError(t, err)
	assert.Equal(t, DkgSessionFailed, sess.Status)
	assert.ErrorIs(t, sess.Err, ErrInvalidUserState)
}

func TestCoordinatorSessionExpiry(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	cfg.SessionTimeout = 100 * time.Millisecond
	c := NewCoordinator(cfg, nil)
	for id, s := range newTestSigners(t, 3, 2) {
		require.NoError(t, c.AddParticipant(id, s))
	}

	sid, err := c.StartDkgSession([]frost.Identifier{1, 2, 3})
	require.NoError(t, err)
	assert.Zero(t, c.CleanupExpiredSessions())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, c.CleanupExpiredSessions())
	_, err = c.GetSession(sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCoordinatorRunStopsOnCancel(t *testing.T) {
	c := NewCoordinator(DefaultCoordinatorConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// ========== 规范化哈希后签名 ==========

func TestSignMessage(t *testing.T) {
	ctx := context.Background()
	agg, _, id, pub := runDkg(t, 3, 2)

	msg, err := structpb.NewStruct(map[string]interface{}{"action": "withdraw", "amount": 42})
	require.NoError(t, err)
	sig, err := agg.SignMessage(ctx, id, msg, types.SigningMetadata{}, nil)
	require.NoError(t, err)

	h, err := hasher.HashMessage(msg)
	require.NoError(t, err)
	assert.NoError(t, frost.VerifySignature(sig, h, pub.VerifyingKey))

	_, err = agg.SignMessage(ctx, id, nil, types.SigningMetadata{}, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSignTokenTransaction(t *testing.T) {
	ctx := context.Background()
	agg, _, id, pub := runDkg(t, 3, 2)

	tx := &hasher.TokenTransaction{
		Version: 2,
		Mint:    &hasher.MintInput{IssuerPublicKey: id.PublicKey[:]},
		Outputs: []*hasher.TokenOutput{{
			OwnerPublicKey: id.PublicKey[:],
			TokenAmount:    decimal.NewFromInt(100),
		}},
		Network: wire.TestNet3,
	}
	sig, err := agg.SignTokenTransaction(ctx, id, tx, nil)
	require.NoError(t, err)

	h, err := hasher.HashTokenTransaction(tx, false)
	require.NoError(t, err)
	assert.NoError(t, frost.VerifySignature(sig, h, pub.VerifyingKey))

	_, err = agg.SignTokenTransaction(ctx, id, &hasher.TokenTransaction{}, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, "mint", tokenDetail(tx))
}
