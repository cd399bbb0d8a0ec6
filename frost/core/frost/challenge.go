package frost

import (
	"fmt"

	"frostsign/frost/core/curve"
)

// encodeGroupCommitmentList id || D_i || E_i，按编号升序
func encodeGroupCommitmentList(pkg *SigningPackage) ([]byte, error) {
	ids := SortedIdentifiers(pkg.Commitments)
	out := make([]byte, 0, len(ids)*(curve.ScalarSize+2*curve.PointSize))
	for _, id := range ids {
		c := pkg.Commitments[id]
		if c == nil || c.Hiding == nil || c.Binding == nil {
			return nil, fmt.Errorf("%w: participant %d", ErrMissingCommitment, id)
		}
		out = append(out, id.Bytes()...)
		out = append(out, c.Hiding.Bytes()...)
		out = append(out, c.Binding.Bytes()...)
	}
	return out, nil
}

// computeBindingFactors ρ_i = H1(Y || H4(msg) || H5(commitments) || id)
func computeBindingFactors(groupKey *curve.Point, pkg *SigningPackage) (map[Identifier]*curve.Scalar, error) {
	encoded, err := encodeGroupCommitmentList(pkg)
	if err != nil {
		return nil, err
	}
	prefix := make([]byte, 0, curve.PointSize+64)
	prefix = append(prefix, groupKey.Bytes()...)
	prefix = append(prefix, curve.FrostHash("msg", pkg.Message)...)
	prefix = append(prefix, curve.FrostHash("com", encoded)...)

	out := make(map[Identifier]*curve.Scalar, len(pkg.Commitments))
	for _, id := range SortedIdentifiers(pkg.Commitments) {
		out[id] = curve.FrostHashToScalar("rho", prefix, id.Bytes())
	}
	return out, nil
}

// computeGroupCommitment R = Σ D_i + ρ_i·E_i
func computeGroupCommitment(pkg *SigningPackage, factors map[Identifier]*curve.Scalar) (*curve.Point, error) {
	R := curve.NewIdentity()
	for _, id := range SortedIdentifiers(pkg.Commitments) {
		c := pkg.Commitments[id]
		R = R.Add(c.Hiding).Add(c.Binding.Mul(factors[id]))
	}
	if R.IsIdentity() {
		return nil, ErrIdentityCommitment
	}
	return R, nil
}

// computeChallenge BIP-340 challenge，使用 R 与 Y 的 x 坐标
func computeChallenge(R, groupKey *curve.Point, msg []byte) *curve.Scalar {
	return curve.BIP340Challenge(R.XBytes(), groupKey.XBytes(), msg)
}

// lagrangeFor 在签名集合上计算 λ_i
func lagrangeFor(id Identifier, pkg *SigningPackage) (*curve.Scalar, error) {
	ids := SortedIdentifiers(pkg.Commitments)
	return lagrange(id, ids)
}
