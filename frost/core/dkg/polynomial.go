package dkg

import (
	"errors"
	"io"

	"frostsign/frost/core/curve"
)

// Polynomial 为 t-1 阶多项式，用于分布式密钥生成
type Polynomial struct {
	Coefficients []curve.Scalar // a_0, a_1, ..., a_(t-1)
}

// NewPolynomial 生成随机 t-1 阶多项式
func NewPolynomial(t int, r io.Reader) (*Polynomial, error) {
	if t < 1 {
		return nil, errors.New("polynomial degree must be at least 0")
	}
	coeffs := make([]curve.Scalar, t)
	for i := 0; i < t; i++ {
		c, err := curve.RandomScalar(r)
		if err != nil {
			return nil, err
		}
		coeffs[i] = *c
	}
	return &Polynomial{Coefficients: coeffs}, nil
}

// Evaluate 在 x 处求值 f(x) mod N（Horner）
func (p *Polynomial) Evaluate(x *curve.Scalar) *curve.Scalar {
	var result curve.Scalar
	for i := len(p.Coefficients) - 1; i >= 0; i-- {
		result.Mul(x)
		result.Add(&p.Coefficients[i])
	}
	return &result
}

// Commit Feldman 承诺 C_k = a_k·G
func (p *Polynomial) Commit() []*curve.Point {
	out := make([]*curve.Point, len(p.Coefficients))
	for i := range p.Coefficients {
		out[i] = curve.BaseMult(&p.Coefficients[i])
	}
	return out
}

// Zeroize 清零全部系数
func (p *Polynomial) Zeroize() {
	if p == nil {
		return
	}
	for i := range p.Coefficients {
		p.Coefficients[i].Zero()
	}
}

// EvaluateCommitment 计算 Σ C_k·x^k，即 f(x)·G
func EvaluateCommitment(commitment []*curve.Point, x *curve.Scalar) *curve.Point {
	result := curve.NewIdentity()
	for i := len(commitment) - 1; i >= 0; i-- {
		result = result.Mul(x).Add(commitment[i])
	}
	return result
}

// VerifyShare 检查 share·G == Σ C_k·x^k
func VerifyShare(share *curve.Scalar, commitment []*curve.Point, x *curve.Scalar) bool {
	if len(commitment) == 0 {
		return false
	}
	return curve.BaseMult(share).Equal(EvaluateCommitment(commitment, x))
}
