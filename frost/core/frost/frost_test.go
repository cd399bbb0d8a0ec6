package frost

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"frostsign/frost/core/curve"
	"frostsign/frost/core/dkg"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runDKG 在内存中跑完整的三轮 DKG
func runDKG(t *testing.T, minSigners, maxSigners uint16) (map[Identifier]*KeyPackage, map[Identifier]*PublicKeyPackage) {
	t.Helper()

	secrets1 := make(map[Identifier]*Round1SecretPackage)
	round1 := make(map[Identifier]*Round1Package)
	for i := uint16(1); i <= maxSigners; i++ {
		id := Identifier(i)
		s, p, err := DkgPart1(id, maxSigners, minSigners, rand.Reader)
		require.NoError(t, err)
		secrets1[id] = s
		round1[id] = p
	}

	others := func(self Identifier) map[Identifier]*Round1Package {
		out := make(map[Identifier]*Round1Package)
		for id, p := range round1 {
			if id != self {
				out[id] = p
			}
		}
		return out
	}

	secrets2 := make(map[Identifier]*Round2SecretPackage)
	received := make(map[Identifier]map[Identifier]*Round2Package)
	for id, s := range secrets1 {
		s2, out, err := DkgPart2(s, others(id))
		require.NoError(t, err)
		secrets2[id] = s2
		for recipient, pkg := range out {
			if received[recipient] == nil {
				received[recipient] = make(map[Identifier]*Round2Package)
			}
			received[recipient][id] = pkg
		}
	}

	keys := make(map[Identifier]*KeyPackage)
	pubs := make(map[Identifier]*PublicKeyPackage)
	for id, s2 := range secrets2 {
		k, p, err := DkgPart3(s2, others(id), received[id])
		require.NoError(t, err)
		keys[id] = k
		pubs[id] = p
	}
	return keys, pubs
}

func signWith(t *testing.T, keys map[Identifier]*KeyPackage, signers []Identifier, msg []byte) (*SigningPackage, map[Identifier]*SignatureShare) {
	t.Helper()
	nonces := make(map[Identifier]*SigningNonces)
	pkg := &SigningPackage{Commitments: make(map[Identifier]*SigningCommitments), Message: msg}
	for _, id := range signers {
		n, c, err := Commit(keys[id], rand.Reader)
		require.NoError(t, err)
		nonces[id] = n
		pkg.Commitments[id] = c
	}
	shares := make(map[Identifier]*SignatureShare)
	for _, id := range signers {
		s, err := Sign(pkg, nonces[id], keys[id])
		require.NoError(t, err)
		shares[id] = s
	}
	return pkg, shares
}

func TestDKGPublicKeyPackagesIdentical(t *testing.T) {
	keys, pubs := runDKG(t, 2, 3)
	require.Len(t, pubs, 3)

	first, err := pubs[1].MarshalBinary()
	require.NoError(t, err)
	for _, id := range SortedIdentifiers(pubs) {
		enc, err := pubs[id].MarshalBinary()
		require.NoError(t, err)
		assert.Equal(t, first, enc, "participant %d", id)
		assert.True(t, keys[id].VerifyingKey.Equal(pubs[id].VerifyingKey))
	}

	// 任意两个份额插值出的秘密对应群公钥
	secret, err := dkg.Interpolate(
		[]*curve.Scalar{Identifier(1).Scalar(), Identifier(3).Scalar()},
		[]*curve.Scalar{&keys[1].SigningShare, &keys[3].SigningShare},
	)
	require.NoError(t, err)
	assert.True(t, curve.BaseMult(secret).Equal(pubs[1].VerifyingKey))
}

func TestDkgPart2RejectsOwnPackage(t *testing.T) {
	s1, p1, err := DkgPart1(1, 3, 2, rand.Reader)
	require.NoError(t, err)
	_, p2, err := DkgPart1(2, 3, 2, rand.Reader)
	require.NoError(t, err)

	_, _, err = DkgPart2(s1, map[Identifier]*Round1Package{1: p1, 2: p2})
	assert.ErrorIs(t, err, ErrIncorrectPackages)
}

func TestDkgPart2RejectsBadProof(t *testing.T) {
	s1, _, err := DkgPart1(1, 3, 2, rand.Reader)
	require.NoError(t, err)
	_, p2, err := DkgPart1(2, 3, 2, rand.Reader)
	require.NoError(t, err)
	_, p3, err := DkgPart1(3, 3, 2, rand.Reader)
	require.NoError(t, err)

	p3.ProofZ.Add(curve.NewScalar(1))
	_, _, err = DkgPart2(s1, map[Identifier]*Round1Package{2: p2, 3: p3})
	assert.ErrorIs(t, err, ErrInvalidProofOfKnow)
}

func TestDkgPart1InvalidParams(t *testing.T) {
	_, _, err := DkgPart1(1, 3, 1, rand.Reader)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, _, err = DkgPart1(4, 3, 2, rand.Reader)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestSignAndVerifyAllSigners(t *testing.T) {
	keys, pubs := runDKG(t, 2, 3)
	msg := []byte("test")

	pkg, shares := signWith(t, keys, []Identifier{1, 2, 3}, msg)
	sig, err := Aggregate(pkg, shares, pubs[1])
	require.NoError(t, err)

	require.NoError(t, VerifySignature(sig, msg, pubs[1].VerifyingKey))
	assert.ErrorIs(t, VerifySignature(sig, []byte("other"), pubs[1].VerifyingKey), ErrInvalidSignature)
}

func TestSignThresholdSubset(t *testing.T) {
	keys, pubs := runDKG(t, 2, 3)
	digest := sha256.Sum256([]byte("subset"))

	pkg, shares := signWith(t, keys, []Identifier{1, 3}, digest[:])
	sig, err := Aggregate(pkg, shares, pubs[2])
	require.NoError(t, err)

	// 32 字节消息时与 btcec 的 BIP-340 实现交叉验证
	s, err := sig.Schnorr()
	require.NoError(t, err)
	xonly, err := schnorr.ParsePubKey(pubs[2].VerifyingKey.XBytes())
	require.NoError(t, err)
	assert.True(t, s.Verify(digest[:], xonly))
}

func TestTweakedSignature(t *testing.T) {
	keys, pubs := runDKG(t, 2, 3)
	root := bytes.Repeat([]byte{0x11}, 32)
	msg := []byte("tweaked")

	tweakedKeys := make(map[Identifier]*KeyPackage)
	for id, k := range keys {
		tk, err := k.Tweak(root)
		require.NoError(t, err)
		tweakedKeys[id] = tk
	}
	tweakedPub, err := pubs[1].Tweak(root)
	require.NoError(t, err)
	for id, tk := range tweakedKeys {
		assert.True(t, tk.VerifyingKey.Equal(tweakedPub.VerifyingKey))
		assert.True(t, tk.VerifyingShare.Equal(tweakedPub.VerifyingShares[id]))
	}

	pkg, shares := signWith(t, tweakedKeys, []Identifier{1, 2, 3}, msg)
	sig, err := Aggregate(pkg, shares, tweakedPub)
	require.NoError(t, err)

	require.NoError(t, VerifySignature(sig, msg, tweakedPub.VerifyingKey))
	assert.Error(t, VerifySignature(sig, msg, pubs[1].VerifyingKey))

	// 未 tweak 的签名不能用 tweak 后的公钥验证
	pkg, shares = signWith(t, keys, []Identifier{1, 2}, msg)
	plain, err := Aggregate(pkg, shares, pubs[1])
	require.NoError(t, err)
	assert.Error(t, VerifySignature(plain, msg, tweakedPub.VerifyingKey))
}

func TestAggregateIdentifiesCheater(t *testing.T) {
	keys, pubs := runDKG(t, 2, 3)
	pkg, shares := signWith(t, keys, []Identifier{1, 2, 3}, []byte("cheat"))

	shares[2].Z.Add(curve.NewScalar(1))
	_, err := Aggregate(pkg, shares, pubs[1])
	require.Error(t, err)

	var cheat *CheatingParticipantError
	require.ErrorAs(t, err, &cheat)
	assert.Equal(t, Identifier(2), cheat.Identifier)
	assert.ErrorIs(t, err, ErrInvalidSignatureShare)

	assert.NoError(t, VerifySignatureShare(1, shares[1], pkg, pubs[1]))
}

func TestSignRejectsForeignCommitment(t *testing.T) {
	keys, _ := runDKG(t, 2, 3)
	n1, c1, err := Commit(keys[1], rand.Reader)
	require.NoError(t, err)
	_, c2, err := Commit(keys[2], rand.Reader)
	require.NoError(t, err)
	_, other, err := Commit(keys[1], rand.Reader)
	require.NoError(t, err)

	pkg := &SigningPackage{
		Commitments: map[Identifier]*SigningCommitments{1: other, 2: c2},
		Message:     []byte("m"),
	}
	_, err = Sign(pkg, n1, keys[1])
	assert.ErrorIs(t, err, ErrIncorrectCommitment)

	pkg.Commitments[1] = c1
	n1.Zeroize()
	_, err = Sign(pkg, n1, keys[1])
	assert.ErrorIs(t, err, ErrNoncesConsumed)
}

func TestCommitProducesFreshNonces(t *testing.T) {
	keys, _ := runDKG(t, 2, 2)
	_, a, err := Commit(keys[1], rand.Reader)
	require.NoError(t, err)
	_, b, err := Commit(keys[1], rand.Reader)
	require.NoError(t, err)
	assert.False(t, a.Equal(b))
}

func TestSignatureBytesRoundTrip(t *testing.T) {
	keys, pubs := runDKG(t, 2, 2)
	pkg, shares := signWith(t, keys, []Identifier{1, 2}, []byte("bytes"))
	sig, err := Aggregate(pkg, shares, pubs[1])
	require.NoError(t, err)

	raw := sig.Bytes()
	require.Len(t, raw, SignatureSize)
	parsed, err := ParseSignature(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, parsed.Bytes())
	require.NoError(t, VerifySignature(parsed, []byte("bytes"), pubs[1].VerifyingKey))

	_, err = ParseSignature(raw[:10])
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSigningPackageEncodingIsCanonical(t *testing.T) {
	keys, _ := runDKG(t, 2, 3)
	pkg, _ := signWith(t, keys, []Identifier{3, 1, 2}, []byte("canon"))

	a, err := pkg.MarshalBinary()
	require.NoError(t, err)

	var decoded SigningPackage
	require.NoError(t, decoded.UnmarshalBinary(a))
	b, err := decoded.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	for id, c := range pkg.Commitments {
		assert.True(t, c.Equal(decoded.Commitments[id]))
	}
}

func TestSecretPackageEncoding(t *testing.T) {
	s1, _, err := DkgPart1(2, 3, 2, rand.Reader)
	require.NoError(t, err)
	raw, err := s1.MarshalBinary()
	require.NoError(t, err)

	var decoded Round1SecretPackage
	require.NoError(t, decoded.UnmarshalBinary(raw))
	assert.Equal(t, s1.Identifier, decoded.Identifier)
	assert.Equal(t, s1.MinSigners, decoded.MinSigners)
	require.Len(t, decoded.Polynomial.Coefficients, 2)
	assert.True(t, decoded.Polynomial.Coefficients[0].Equals(&s1.Polynomial.Coefficients[0]))
}
