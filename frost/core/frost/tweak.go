package frost

import (
	"frostsign/frost/core/curve"
)

// Tweak 对 KeyPackage 施加 BIP-341 tweak：
// s' = (P 为奇 Y ? -s : s) + t，Y_i' = (±Y_i) + t·G，群公钥 Q = P_even + t·G
//
// 返回新的 KeyPackage，原对象不变。merkleRoot 为空表示 key-path only。
func (k *KeyPackage) Tweak(merkleRoot []byte) (*KeyPackage, error) {
	t, err := curve.TapTweakScalar(k.VerifyingKey, merkleRoot)
	if err != nil {
		return nil, err
	}
	Q, err := curve.TaprootOutputKey(k.VerifyingKey, merkleRoot)
	if err != nil {
		return nil, err
	}

	var s curve.Scalar
	s.Set(&k.SigningShare)
	share := k.VerifyingShare
	if !k.VerifyingKey.HasEvenY() {
		s.Negate()
		share = share.Negate()
	}
	s.Add(t)
	return &KeyPackage{
		Identifier:     k.Identifier,
		SigningShare:   s,
		VerifyingShare: share.Add(curve.BaseMult(t)),
		VerifyingKey:   Q,
		MinSigners:     k.MinSigners,
	}, nil
}

// Tweak 对 PublicKeyPackage 施加同样的 tweak，用于聚合与验证
func (p *PublicKeyPackage) Tweak(merkleRoot []byte) (*PublicKeyPackage, error) {
	t, err := curve.TapTweakScalar(p.VerifyingKey, merkleRoot)
	if err != nil {
		return nil, err
	}
	Q, err := curve.TaprootOutputKey(p.VerifyingKey, merkleRoot)
	if err != nil {
		return nil, err
	}
	tG := curve.BaseMult(t)
	odd := !p.VerifyingKey.HasEvenY()

	out := &PublicKeyPackage{
		VerifyingShares: make(map[Identifier]*curve.Point, len(p.VerifyingShares)),
		VerifyingKey:    Q,
	}
	for _, id := range SortedIdentifiers(p.VerifyingShares) {
		share := p.VerifyingShares[id]
		if odd {
			share = share.Negate()
		}
		out.VerifyingShares[id] = share.Add(tG)
	}
	return out, nil
}
