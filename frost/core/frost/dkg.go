// frost/core/frost/dkg.go
// Pedersen DKG：每个参与者充当 dealer，Feldman 承诺 + Schnorr 知识证明

package frost

import (
	"fmt"
	"io"

	"frostsign/frost/core/curve"
	"frostsign/frost/core/dkg"
)

// validateParams 检查 (min, max) 合法
func validateParams(minSigners, maxSigners uint16) error {
	if minSigners < 2 || maxSigners < minSigners {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidParameters, minSigners, maxSigners)
	}
	return nil
}

// proofChallenge c = H_dkg(id || A_i0 || R)
func proofChallenge(id Identifier, a0, r *curve.Point) *curve.Scalar {
	return curve.FrostHashToScalar("dkg", id.Bytes(), a0.Bytes(), r.Bytes())
}

// DkgPart1 生成本参与者的多项式、承诺和知识证明
func DkgPart1(id Identifier, maxSigners, minSigners uint16, rng io.Reader) (*Round1SecretPackage, *Round1Package, error) {
	if err := validateParams(minSigners, maxSigners); err != nil {
		return nil, nil, err
	}
	if err := id.Validate(maxSigners); err != nil {
		return nil, nil, err
	}

	poly, err := dkg.NewPolynomial(int(minSigners), rng)
	if err != nil {
		return nil, nil, err
	}
	commitment := poly.Commit()

	// σ = (R, z)，z = k + a_0·c
	k, err := curve.RandomScalar(rng)
	if err != nil {
		return nil, nil, err
	}
	R := curve.BaseMult(k)
	c := proofChallenge(id, commitment[0], R)
	z := new(curve.Scalar).Mul2(&poly.Coefficients[0], c).Add(k)
	k.Zero()

	secret := &Round1SecretPackage{
		Identifier: id,
		Polynomial: poly,
		Commitment: commitment,
		MinSigners: minSigners,
		MaxSigners: maxSigners,
	}
	pkg := &Round1Package{
		Commitment: commitment,
		ProofR:     R,
		ProofZ:     *z,
	}
	return secret, pkg, nil
}

// verifyProofOfKnowledge 检查 z·G - c·A_0 == R
func verifyProofOfKnowledge(id Identifier, pkg *Round1Package) error {
	if len(pkg.Commitment) == 0 || pkg.ProofR == nil {
		return fmt.Errorf("%w: participant %d", ErrInvalidCommitment, id)
	}
	c := proofChallenge(id, pkg.Commitment[0], pkg.ProofR)
	c.Negate()
	lhs := curve.BaseMult(&pkg.ProofZ).Add(pkg.Commitment[0].Mul(c))
	if !lhs.Equal(pkg.ProofR) {
		return fmt.Errorf("%w: participant %d", ErrInvalidProofOfKnow, id)
	}
	return nil
}

// validateRound1Set 必须恰好包含除自己以外的 max-1 个参与者
func validateRound1Set(self Identifier, minSigners, maxSigners uint16, round1 map[Identifier]*Round1Package) error {
	if len(round1) != int(maxSigners)-1 {
		return fmt.Errorf("%w: got %d round1 packages, want %d", ErrIncorrectPackages, len(round1), maxSigners-1)
	}
	for _, id := range SortedIdentifiers(round1) {
		if id == self {
			return fmt.Errorf("%w: own round1 package included", ErrIncorrectPackages)
		}
		if err := id.Validate(maxSigners); err != nil {
			return err
		}
		pkg := round1[id]
		if pkg == nil || len(pkg.Commitment) != int(minSigners) {
			return fmt.Errorf("%w: participant %d commitment length", ErrInvalidCommitment, id)
		}
	}
	return nil
}

// DkgPart2 验证所有知识证明，为每个接收方计算 f_i(j)
func DkgPart2(secret *Round1SecretPackage, round1 map[Identifier]*Round1Package) (*Round2SecretPackage, map[Identifier]*Round2Package, error) {
	if secret == nil || secret.Polynomial == nil {
		return nil, nil, fmt.Errorf("%w: missing round1 secret", ErrInvalidParameters)
	}
	if err := validateRound1Set(secret.Identifier, secret.MinSigners, secret.MaxSigners, round1); err != nil {
		return nil, nil, err
	}

	out := make(map[Identifier]*Round2Package, len(round1))
	for _, id := range SortedIdentifiers(round1) {
		if err := verifyProofOfKnowledge(id, round1[id]); err != nil {
			return nil, nil, err
		}
		share := secret.Polynomial.Evaluate(id.Scalar())
		out[id] = &Round2Package{SigningShare: *share}
	}

	own := secret.Polynomial.Evaluate(secret.Identifier.Scalar())
	secret2 := &Round2SecretPackage{
		Identifier:  secret.Identifier,
		Commitment:  secret.Commitment,
		SecretShare: *own,
		MinSigners:  secret.MinSigners,
		MaxSigners:  secret.MaxSigners,
	}
	return secret2, out, nil
}

// DkgPart3 验证收到的份额并汇总出 KeyPackage 与 PublicKeyPackage
//
// PublicKeyPackage 只依赖公开承诺，因此所有诚实参与者得到相同结果
func DkgPart3(secret *Round2SecretPackage, round1 map[Identifier]*Round1Package, round2 map[Identifier]*Round2Package) (*KeyPackage, *PublicKeyPackage, error) {
	if secret == nil {
		return nil, nil, fmt.Errorf("%w: missing round2 secret", ErrInvalidParameters)
	}
	if err := validateRound1Set(secret.Identifier, secret.MinSigners, secret.MaxSigners, round1); err != nil {
		return nil, nil, err
	}
	if len(round2) != len(round1) {
		return nil, nil, fmt.Errorf("%w: got %d round2 packages, want %d", ErrIncorrectPackages, len(round2), len(round1))
	}

	self := secret.Identifier.Scalar()
	var signingShare curve.Scalar
	signingShare.Set(&secret.SecretShare)

	for _, id := range SortedIdentifiers(round1) {
		r2, ok := round2[id]
		if !ok || r2 == nil {
			return nil, nil, fmt.Errorf("%w: missing round2 package from %d", ErrIncorrectPackages, id)
		}
		if !dkg.VerifyShare(&r2.SigningShare, round1[id].Commitment, self) {
			return nil, nil, fmt.Errorf("%w: from participant %d", ErrInvalidSecretShare, id)
		}
		signingShare.Add(&r2.SigningShare)
	}

	// 所有承诺（含自己）按编号排序
	commitments := make(map[Identifier][]*curve.Point, len(round1)+1)
	for id, pkg := range round1 {
		commitments[id] = pkg.Commitment
	}
	commitments[secret.Identifier] = secret.Commitment

	pub := &PublicKeyPackage{
		VerifyingShares: make(map[Identifier]*curve.Point, len(commitments)),
		VerifyingKey:    curve.NewIdentity(),
	}
	ids := SortedIdentifiers(commitments)
	for _, id := range ids {
		pub.VerifyingKey = pub.VerifyingKey.Add(commitments[id][0])
	}
	if pub.VerifyingKey.IsIdentity() {
		return nil, nil, fmt.Errorf("%w: group key", ErrInvalidCommitment)
	}
	for _, j := range ids {
		share := curve.NewIdentity()
		x := j.Scalar()
		for _, i := range ids {
			share = share.Add(dkg.EvaluateCommitment(commitments[i], x))
		}
		pub.VerifyingShares[j] = share
	}

	key := &KeyPackage{
		Identifier:     secret.Identifier,
		SigningShare:   signingShare,
		VerifyingShare: curve.BaseMult(&signingShare),
		VerifyingKey:   pub.VerifyingKey,
		MinSigners:     secret.MinSigners,
	}
	if !key.VerifyingShare.Equal(pub.VerifyingShares[secret.Identifier]) {
		return nil, nil, fmt.Errorf("%w: own verifying share mismatch", ErrInvalidSecretShare)
	}
	return key, pub, nil
}
