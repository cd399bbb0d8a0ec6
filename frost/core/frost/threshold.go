// frost/core/frost/threshold.go
// 两轮 FROST 签名：Commit → Sign → Aggregate（BIP-340 偶 Y 规则）

package frost

import (
	"fmt"
	"io"

	"frostsign/frost/core/curve"
	"frostsign/frost/core/dkg"
)

func lagrange(id Identifier, ids []Identifier) (*curve.Scalar, error) {
	return dkg.LagrangeCoefficient(id.Scalar(), identifierScalars(ids))
}

// generateNonce nonce = H3(random32 || secret)，随机源失效时仍依赖份额熵
func generateNonce(secret *curve.Scalar, rng io.Reader) (*curve.Scalar, error) {
	var buf [32]byte
	if _, err := io.ReadFull(rng, buf[:]); err != nil {
		return nil, fmt.Errorf("read randomness: %w", err)
	}
	k := curve.FrostHashToScalar("nonce", buf[:], curve.ScalarBytes(secret))
	curve.Zeroize(buf[:])
	if k.IsZero() {
		return nil, fmt.Errorf("%w: zero nonce", ErrInvalidParameters)
	}
	return k, nil
}

// Commit 第一轮：为一次签名生成全新的 nonce 对及其承诺
func Commit(key *KeyPackage, rng io.Reader) (*SigningNonces, *SigningCommitments, error) {
	d, err := generateNonce(&key.SigningShare, rng)
	if err != nil {
		return nil, nil, err
	}
	e, err := generateNonce(&key.SigningShare, rng)
	if err != nil {
		return nil, nil, err
	}
	commitments := &SigningCommitments{
		Hiding:  curve.BaseMult(d),
		Binding: curve.BaseMult(e),
	}
	nonces := &SigningNonces{
		Hiding:      *d,
		Binding:     *e,
		Commitments: commitments,
	}
	d.Zero()
	e.Zero()
	return nonces, commitments, nil
}

// Sign 第二轮：z_i = d_i + e_i·ρ_i + λ_i·s_i·c
//
// R 为奇 Y 时 nonce 取负；群公钥为奇 Y 时份额取负
func Sign(pkg *SigningPackage, nonces *SigningNonces, key *KeyPackage) (*SignatureShare, error) {
	if nonces == nil || nonces.Commitments == nil {
		return nil, ErrNoncesConsumed
	}
	if nonces.Hiding.IsZero() || nonces.Binding.IsZero() {
		return nil, ErrNoncesConsumed
	}
	own, ok := pkg.Commitments[key.Identifier]
	if !ok {
		return nil, fmt.Errorf("%w: participant %d", ErrMissingCommitment, key.Identifier)
	}
	if !own.Equal(nonces.Commitments) {
		return nil, ErrIncorrectCommitment
	}
	if len(pkg.Commitments) < int(key.MinSigners) {
		return nil, fmt.Errorf("%w: %d commitments, need %d", ErrIncorrectPackages, len(pkg.Commitments), key.MinSigners)
	}

	factors, err := computeBindingFactors(key.VerifyingKey, pkg)
	if err != nil {
		return nil, err
	}
	R, err := computeGroupCommitment(pkg, factors)
	if err != nil {
		return nil, err
	}
	lambda, err := lagrangeFor(key.Identifier, pkg)
	if err != nil {
		return nil, err
	}
	c := computeChallenge(R, key.VerifyingKey, pkg.Message)

	var d, e, s curve.Scalar
	d.Set(&nonces.Hiding)
	e.Set(&nonces.Binding)
	s.Set(&key.SigningShare)
	if !R.HasEvenY() {
		d.Negate()
		e.Negate()
	}
	if !key.VerifyingKey.HasEvenY() {
		s.Negate()
	}

	// z = d + e·ρ + λ·s·c
	var z curve.Scalar
	z.Mul2(&e, factors[key.Identifier]).Add(&d)
	s.Mul(lambda).Mul(c)
	z.Add(&s)

	d.Zero()
	e.Zero()
	s.Zero()
	return &SignatureShare{Z: z}, nil
}

// VerifySignatureShare z_i·G == R_i + c·λ_i·Y_i（同样施加偶 Y 规则）
func VerifySignatureShare(id Identifier, share *SignatureShare, pkg *SigningPackage, pub *PublicKeyPackage) error {
	factors, err := computeBindingFactors(pub.VerifyingKey, pkg)
	if err != nil {
		return err
	}
	R, err := computeGroupCommitment(pkg, factors)
	if err != nil {
		return err
	}
	return verifyShare(id, share, pkg, pub, factors, R)
}

func verifyShare(id Identifier, share *SignatureShare, pkg *SigningPackage, pub *PublicKeyPackage,
	factors map[Identifier]*curve.Scalar, R *curve.Point) error {

	comm, ok := pkg.Commitments[id]
	if !ok {
		return fmt.Errorf("%w: participant %d", ErrMissingCommitment, id)
	}
	Y, ok := pub.VerifyingShares[id]
	if !ok {
		return fmt.Errorf("%w: participant %d", ErrUnknownParticipant, id)
	}
	lambda, err := lagrangeFor(id, pkg)
	if err != nil {
		return err
	}
	c := computeChallenge(R, pub.VerifyingKey, pkg.Message)

	Ri := comm.Hiding.Add(comm.Binding.Mul(factors[id]))
	if !R.HasEvenY() {
		Ri = Ri.Negate()
	}
	if !pub.VerifyingKey.HasEvenY() {
		Y = Y.Negate()
	}
	var cl curve.Scalar
	cl.Mul2(c, lambda)
	rhs := Ri.Add(Y.Mul(&cl))
	if !curve.BaseMult(&share.Z).Equal(rhs) {
		return &CheatingParticipantError{Identifier: id}
	}
	return nil
}

// CheatingParticipantError 聚合时定位到的错误份额
type CheatingParticipantError struct {
	Identifier Identifier
}

func (e *CheatingParticipantError) Error() string {
	return fmt.Sprintf("invalid signature share from participant %d", e.Identifier)
}

// Unwrap 使 errors.Is(err, ErrInvalidSignatureShare) 成立
func (e *CheatingParticipantError) Unwrap() error { return ErrInvalidSignatureShare }

// Aggregate z = Σ z_i，输出 (R_even, z)；最终签名不通过时逐个检查份额
func Aggregate(pkg *SigningPackage, shares map[Identifier]*SignatureShare, pub *PublicKeyPackage) (*Signature, error) {
	if len(shares) != len(pkg.Commitments) {
		return nil, fmt.Errorf("%w: %d shares for %d commitments", ErrIncorrectPackages, len(shares), len(pkg.Commitments))
	}
	for _, id := range SortedIdentifiers(shares) {
		if _, ok := pkg.Commitments[id]; !ok {
			return nil, fmt.Errorf("%w: participant %d", ErrMissingCommitment, id)
		}
		if shares[id] == nil {
			return nil, fmt.Errorf("%w: nil share from %d", ErrInvalidSignatureShare, id)
		}
	}

	factors, err := computeBindingFactors(pub.VerifyingKey, pkg)
	if err != nil {
		return nil, err
	}
	R, err := computeGroupCommitment(pkg, factors)
	if err != nil {
		return nil, err
	}

	var z curve.Scalar
	for _, id := range SortedIdentifiers(shares) {
		z.Add(&shares[id].Z)
	}
	sig := &Signature{R: R.EvenY(), Z: z}

	if err := VerifySignature(sig, pkg.Message, pub.VerifyingKey); err == nil {
		return sig, nil
	}
	for _, id := range SortedIdentifiers(shares) {
		if err := verifyShare(id, shares[id], pkg, pub, factors, R); err != nil {
			return nil, err
		}
	}
	return nil, ErrInvalidSignature
}
