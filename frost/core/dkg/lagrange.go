package dkg

import (
	"errors"

	"frostsign/frost/core/curve"
)

var (
	ErrDuplicateID = errors.New("duplicate participant id")
	ErrIDNotInSet  = errors.New("participant id not in set")
)

// LagrangeCoefficient 计算 x_i 在集合 ids 上、于 0 点处的拉格朗日系数
// λ_i = Π_{j≠i} x_j / (x_j - x_i)
func LagrangeCoefficient(xi *curve.Scalar, ids []*curve.Scalar) (*curve.Scalar, error) {
	var num, den curve.Scalar
	num.SetInt(1)
	den.SetInt(1)

	found := false
	for _, xj := range ids {
		if xj.Equals(xi) {
			if found {
				return nil, ErrDuplicateID
			}
			found = true
			continue
		}
		num.Mul(xj)

		var diff curve.Scalar
		diff.Set(xi)
		diff.Negate()
		diff.Add(xj)
		if diff.IsZero() {
			return nil, ErrDuplicateID
		}
		den.Mul(&diff)
	}
	if !found {
		return nil, ErrIDNotInSet
	}

	den.InverseNonConst()
	num.Mul(&den)
	return &num, nil
}

// Interpolate 根据 t 个份额恢复 f(0)，仅用于测试与审计
func Interpolate(xs, ys []*curve.Scalar) (*curve.Scalar, error) {
	if len(xs) != len(ys) {
		return nil, errors.New("share count mismatch")
	}
	var f0 curve.Scalar
	for i := range xs {
		li, err := LagrangeCoefficient(xs[i], xs)
		if err != nil {
			return nil, err
		}
		li.Mul(ys[i])
		f0.Add(li)
	}
	return &f0, nil
}
