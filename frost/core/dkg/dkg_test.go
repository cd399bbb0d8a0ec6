package dkg

import (
	"crypto/rand"
	"testing"

	"frostsign/frost/core/curve"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolynomialSharesInterpolate(t *testing.T) {
	poly, err := NewPolynomial(3, rand.Reader)
	require.NoError(t, err)
	commit := poly.Commit()

	var xs, ys []*curve.Scalar
	for i := uint32(1); i <= 5; i++ {
		x := curve.NewScalar(i)
		y := poly.Evaluate(x)
		require.True(t, VerifyShare(y, commit, x))
		xs = append(xs, x)
		ys = append(ys, y)
	}

	// 任意 3 个份额都能恢复常数项
	secret, err := Interpolate(xs[1:4], ys[1:4])
	require.NoError(t, err)
	assert.True(t, secret.Equals(&poly.Coefficients[0]))

	secret, err = Interpolate([]*curve.Scalar{xs[0], xs[2], xs[4]}, []*curve.Scalar{ys[0], ys[2], ys[4]})
	require.NoError(t, err)
	assert.True(t, secret.Equals(&poly.Coefficients[0]))
}

func TestVerifyShareRejectsWrongShare(t *testing.T) {
	poly, err := NewPolynomial(2, rand.Reader)
	require.NoError(t, err)
	commit := poly.Commit()

	x := curve.NewScalar(2)
	y := poly.Evaluate(x)
	y.Add(curve.NewScalar(1))
	assert.False(t, VerifyShare(y, commit, x))
}

func TestLagrangeCoefficientErrors(t *testing.T) {
	ids := []*curve.Scalar{curve.NewScalar(1), curve.NewScalar(2)}
	_, err := LagrangeCoefficient(curve.NewScalar(3), ids)
	assert.ErrorIs(t, err, ErrIDNotInSet)

	dup := []*curve.Scalar{curve.NewScalar(1), curve.NewScalar(1)}
	_, err = LagrangeCoefficient(curve.NewScalar(1), dup)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestZeroize(t *testing.T) {
	poly, err := NewPolynomial(2, rand.Reader)
	require.NoError(t, err)
	poly.Zeroize()
	for i := range poly.Coefficients {
		assert.True(t, poly.Coefficients[i].IsZero())
	}
}
