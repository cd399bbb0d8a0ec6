// frost/core/curve/group.go
// secp256k1 群运算：标量与点的薄封装，底层全部是 btcec/v2 (decred secp256k1)

package curve

import (
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ========== 错误定义 ==========

var (
	ErrIdentityPoint  = errors.New("point is the identity")
	ErrInvalidPoint   = errors.New("invalid point encoding")
	ErrInvalidScalar  = errors.New("invalid scalar encoding")
	ErrScalarOverflow = errors.New("scalar exceeds group order")
)

// PointSize 压缩 SEC1 编码长度
const PointSize = 33

// ScalarSize 标量编码长度
const ScalarSize = 32

// Scalar 是模 n 的标量
type Scalar = secp256k1.ModNScalar

// Point 是仿射坐标下的曲线点，单位元以 (0,0) 表示
type Point struct {
	p secp256k1.JacobianPoint
}

// NewIdentity 返回单位元
func NewIdentity() *Point {
	var r Point
	r.p.Z.SetInt(1)
	return &r
}

func normalize(j *secp256k1.JacobianPoint) *Point {
	var r Point
	r.p.Set(j)
	r.p.ToAffine()
	return &r
}

// BaseMult 计算 k·G
func BaseMult(k *Scalar) *Point {
	var j secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &j)
	return normalize(&j)
}

// Mul 计算 k·P
func (p *Point) Mul(k *Scalar) *Point {
	var j secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(k, &p.p, &j)
	return normalize(&j)
}

// Add 计算 P+Q
func (p *Point) Add(q *Point) *Point {
	var j secp256k1.JacobianPoint
	secp256k1.AddNonConst(&p.p, &q.p, &j)
	return normalize(&j)
}

// Negate 返回 -P
func (p *Point) Negate() *Point {
	var r Point
	r.p.Set(&p.p)
	r.p.Y.Negate(1).Normalize()
	return &r
}

// IsIdentity 是否为单位元
func (p *Point) IsIdentity() bool {
	return p.p.X.IsZero() && p.p.Y.IsZero()
}

// HasEvenY BIP-340 的偶 Y 判定
func (p *Point) HasEvenY() bool {
	return !p.p.Y.IsOdd()
}

// Equal 比较两个点
func (p *Point) Equal(q *Point) bool {
	if p == nil || q == nil {
		return p == q
	}
	return p.p.X.Equals(&q.p.X) && p.p.Y.Equals(&q.p.Y)
}

// Bytes 33 字节压缩编码；单位元编码为全零
func (p *Point) Bytes() []byte {
	if p.IsIdentity() {
		return make([]byte, PointSize)
	}
	return p.PublicKey().SerializeCompressed()
}

// XBytes x-only 32 字节编码
func (p *Point) XBytes() []byte {
	x := p.p.X.Bytes()
	return x[:]
}

// PublicKey 转为 btcec 公钥
func (p *Point) PublicKey() *btcec.PublicKey {
	return btcec.NewPublicKey(&p.p.X, &p.p.Y)
}

func (p *Point) String() string {
	return fmt.Sprintf("%x", p.Bytes())
}

// ParsePoint 解析 33 字节压缩点，拒绝单位元
func ParsePoint(b []byte) (*Point, error) {
	if len(b) != PointSize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPoint, len(b))
	}
	pk, err := btcec.ParsePubKey(b)
	if err != nil {
		for _, c := range b {
			if c != 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
			}
		}
		return nil, ErrIdentityPoint
	}
	return FromPublicKey(pk), nil
}

// FromPublicKey 从 btcec 公钥构造点
func FromPublicKey(pk *btcec.PublicKey) *Point {
	var j secp256k1.JacobianPoint
	pk.AsJacobian(&j)
	return normalize(&j)
}

// ========== 标量 ==========

// NewScalar 小整数标量
func NewScalar(v uint32) *Scalar {
	var s Scalar
	s.SetInt(v)
	return &s
}

// RandomScalar 从 r 读取 32 字节生成非零标量，溢出时重试
func RandomScalar(r io.Reader) (*Scalar, error) {
	var buf [32]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("read randomness: %w", err)
		}
		var s Scalar
		overflow := s.SetBytes(&buf)
		if overflow == 0 && !s.IsZero() {
			Zeroize(buf[:])
			return &s, nil
		}
	}
}

// ParseScalar 解析 32 字节大端标量，拒绝 >= n
func ParseScalar(b []byte) (*Scalar, error) {
	if len(b) != ScalarSize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidScalar, len(b))
	}
	var s Scalar
	if s.SetByteSlice(b) {
		return nil, ErrScalarOverflow
	}
	return &s, nil
}

// ScalarBytes 32 字节大端编码
func ScalarBytes(s *Scalar) []byte {
	b := s.Bytes()
	return b[:]
}

// Zeroize 清零字节切片
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
