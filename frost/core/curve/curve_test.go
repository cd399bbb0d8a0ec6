package curve

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointEncodingRoundTrip(t *testing.T) {
	k, err := RandomScalar(rand.Reader)
	require.NoError(t, err)

	p := BaseMult(k)
	enc := p.Bytes()
	require.Len(t, enc, PointSize)

	parsed, err := ParsePoint(enc)
	require.NoError(t, err)
	assert.True(t, p.Equal(parsed))
}

func TestParsePointRejectsIdentity(t *testing.T) {
	_, err := ParsePoint(NewIdentity().Bytes())
	assert.ErrorIs(t, err, ErrIdentityPoint)

	_, err = ParsePoint([]byte{0x02, 0x01})
	assert.ErrorIs(t, err, ErrInvalidPoint)
}

func TestPointArithmetic(t *testing.T) {
	a := NewScalar(7)
	b := NewScalar(11)
	sum := NewScalar(18)

	lhs := BaseMult(a).Add(BaseMult(b))
	assert.True(t, lhs.Equal(BaseMult(sum)))

	// P + (-P) = O
	p := BaseMult(a)
	assert.True(t, p.Add(p.Negate()).IsIdentity())
	assert.True(t, NewIdentity().Add(p).Equal(p))
	assert.NotEqual(t, p.HasEvenY(), p.Negate().HasEvenY())
}

func TestParseScalarOverflow(t *testing.T) {
	over := bytes.Repeat([]byte{0xff}, 32)
	_, err := ParseScalar(over)
	assert.ErrorIs(t, err, ErrScalarOverflow)

	_, err = ParseScalar([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidScalar)
}

func TestVerifyBIP340MatchesBtcec(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	msg := TaggedHash("test", []byte("hello"))
	sig, err := schnorr.Sign(priv, msg)
	require.NoError(t, err)

	pub := FromPublicKey(priv.PubKey())
	require.NoError(t, VerifyBIP340(pub, msg, sig.Serialize()))

	other := TaggedHash("test", []byte("other"))
	assert.ErrorIs(t, VerifyBIP340(pub, other, sig.Serialize()), ErrBIP340Verify)

	bad := sig.Serialize()
	bad[63] ^= 0x01
	assert.Error(t, VerifyBIP340(pub, msg, bad))
}

func TestTaprootOutputKeyMatchesManualTweak(t *testing.T) {
	k, err := RandomScalar(rand.Reader)
	require.NoError(t, err)
	P := BaseMult(k)
	root := bytes.Repeat([]byte{0x11}, 32)

	q, err := TaprootOutputKey(P, root)
	require.NoError(t, err)

	tw, err := TapTweakScalar(P, root)
	require.NoError(t, err)
	manual := P.EvenY().Add(BaseMult(tw))
	assert.True(t, q.Equal(manual))

	// 同一内部公钥的奇偶两种形式得到同一个输出公钥
	q2, err := TaprootOutputKey(P.Negate(), root)
	require.NoError(t, err)
	assert.True(t, q.Equal(q2))
}

func TestTaprootAddress(t *testing.T) {
	P := BaseMult(NewScalar(3))
	addr, err := TaprootAddress(P, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	assert.Contains(t, addr, "bcrt1p")
}
