package frost

import (
	"fmt"

	"frostsign/frost/core/curve"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// SignatureSize BIP-340 签名长度
const SignatureSize = 64

// Signature 聚合后的 Schnorr 签名，R 总是偶 Y
type Signature struct {
	R *curve.Point
	Z curve.Scalar
}

// Bytes R.x || z
func (s *Signature) Bytes() []byte {
	out := make([]byte, 0, SignatureSize)
	out = append(out, s.R.XBytes()...)
	out = append(out, curve.ScalarBytes(&s.Z)...)
	return out
}

// Schnorr 转为 btcec 的签名类型，便于和钱包侧代码对接
func (s *Signature) Schnorr() (*schnorr.Signature, error) {
	return schnorr.ParseSignature(s.Bytes())
}

// ParseSignature 解析 64 字节 BIP-340 签名
func ParseSignature(b []byte) (*Signature, error) {
	if len(b) != SignatureSize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(b))
	}
	if _, err := schnorr.ParseSignature(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	// lift_x(r)：偶 Y 的压缩编码
	R, err := curve.ParsePoint(append([]byte{0x02}, b[:32]...))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	z, err := curve.ParseScalar(b[32:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &Signature{R: R, Z: *z}, nil
}

// VerifySignature BIP-340 验证，groupKey 可以是奇 Y（按 x-only 处理）
func VerifySignature(sig *Signature, msg []byte, groupKey *curve.Point) error {
	if sig == nil || sig.R == nil {
		return ErrInvalidSignature
	}
	if err := curve.VerifyBIP340(groupKey, msg, sig.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}
