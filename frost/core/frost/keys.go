package frost

import (
	"frostsign/frost/core/curve"
	"frostsign/frost/core/dkg"
)

// ========== DKG 包 ==========

// Round1Package 公开的第一轮包：Feldman 承诺 + 常数项知识证明
type Round1Package struct {
	Commitment []*curve.Point
	ProofR     *curve.Point
	ProofZ     curve.Scalar
}

// Round1SecretPackage 第一轮秘密状态，不离开本节点
type Round1SecretPackage struct {
	Identifier Identifier
	Polynomial *dkg.Polynomial
	Commitment []*curve.Point
	MinSigners uint16
	MaxSigners uint16
}

// Round2Package 发给某个接收方的秘密份额 f_i(j)
type Round2Package struct {
	SigningShare curve.Scalar
}

// Round2SecretPackage 第二轮秘密状态：自己的 f_i(i)
type Round2SecretPackage struct {
	Identifier  Identifier
	Commitment  []*curve.Point
	SecretShare curve.Scalar
	MinSigners  uint16
	MaxSigners  uint16
}

// KeyPackage 参与者最终的签名份额
type KeyPackage struct {
	Identifier     Identifier
	SigningShare   curve.Scalar
	VerifyingShare *curve.Point
	VerifyingKey   *curve.Point
	MinSigners     uint16
}

// PublicKeyPackage 群公钥与所有参与者的验证份额
type PublicKeyPackage struct {
	VerifyingShares map[Identifier]*curve.Point
	VerifyingKey    *curve.Point
}

// ========== 签名包 ==========

// SigningCommitments 第一轮公开承诺 (D_i, E_i)
type SigningCommitments struct {
	Hiding  *curve.Point
	Binding *curve.Point
}

// Equal 比较两组承诺
func (c *SigningCommitments) Equal(o *SigningCommitments) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Hiding.Equal(o.Hiding) && c.Binding.Equal(o.Binding)
}

// SigningNonces 第一轮秘密 nonce (d_i, e_i)，只能使用一次
type SigningNonces struct {
	Hiding      curve.Scalar
	Binding     curve.Scalar
	Commitments *SigningCommitments
}

// SigningPackage 所有参与者的承诺 + 待签消息
type SigningPackage struct {
	Commitments map[Identifier]*SigningCommitments
	Message     []byte
}

// SignatureShare 部分签名 z_i
type SignatureShare struct {
	Z curve.Scalar
}

// ========== 清零 ==========

// Zeroize 清零 nonce
func (n *SigningNonces) Zeroize() {
	if n == nil {
		return
	}
	n.Hiding.Zero()
	n.Binding.Zero()
}

// Zeroize 清零多项式系数
func (s *Round1SecretPackage) Zeroize() {
	if s == nil {
		return
	}
	s.Polynomial.Zeroize()
}

// Zeroize 清零自留份额
func (s *Round2SecretPackage) Zeroize() {
	if s == nil {
		return
	}
	s.SecretShare.Zero()
}

// Zeroize 清零签名份额
func (k *KeyPackage) Zeroize() {
	if k == nil {
		return
	}
	k.SigningShare.Zero()
}

// Zeroize 清零收到的份额
func (p *Round2Package) Zeroize() {
	if p == nil {
		return
	}
	p.SigningShare.Zero()
}
