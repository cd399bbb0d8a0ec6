// frost/core/frost/encoding.go
// 协议包的规范二进制编码（protowire）；map 一律按编号升序写出，编码即规范形式

package frost

import (
	"bytes"
	"fmt"

	"frostsign/frost/core/curve"
	"frostsign/frost/core/dkg"
	"frostsign/frost/core/wire"

	"google.golang.org/protobuf/encoding/protowire"
)

// ========== 基础字段 ==========

func parsePointField(f wire.Field) (*curve.Point, error) {
	b, err := f.ExpectBytes()
	if err != nil {
		return nil, err
	}
	return curve.ParsePoint(b)
}

func parseScalarField(f wire.Field, dst *curve.Scalar) error {
	b, err := f.ExpectBytes()
	if err != nil {
		return err
	}
	s, err := curve.ParseScalar(b)
	if err != nil {
		return err
	}
	dst.Set(s)
	return nil
}

func parseIdentifier(f wire.Field) (Identifier, error) {
	v, err := f.ExpectVarint()
	if err != nil {
		return 0, err
	}
	if v == 0 || v > 0xffff {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIdentifier, v)
	}
	return Identifier(v), nil
}

func parseUint16(f wire.Field) (uint16, error) {
	v, err := f.ExpectVarint()
	if err != nil {
		return 0, err
	}
	if v > 0xffff {
		return 0, fmt.Errorf("value %d overflows uint16", v)
	}
	return uint16(v), nil
}

// ========== map 编码 ==========

// AppendIdentifierMap 写出 repeated {1: id, 2: value}
func AppendIdentifierMap[V any](b []byte, num protowire.Number, m map[Identifier]V, enc func(V) ([]byte, error)) ([]byte, error) {
	for _, id := range SortedIdentifiers(m) {
		v, err := enc(m[id])
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", id, err)
		}
		var entry []byte
		entry = wire.AppendUint(entry, 1, uint64(id))
		entry = wire.AppendBytes(entry, 2, v)
		b = wire.AppendMessage(b, num, entry)
	}
	return b, nil
}

// ParseIdentifierEntry 解析 map 的单个条目
func ParseIdentifierEntry[V any](f wire.Field, dst map[Identifier]V, dec func([]byte) (V, error)) error {
	raw, err := f.ExpectBytes()
	if err != nil {
		return err
	}
	var (
		id    Identifier
		value []byte
		seen  bool
	)
	err = wire.Walk(raw, func(ef wire.Field) error {
		switch ef.Num {
		case 1:
			id, err = parseIdentifier(ef)
			return err
		case 2:
			value, err = ef.ExpectBytes()
			seen = true
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if id == 0 {
		return fmt.Errorf("%w: missing identifier", ErrInvalidIdentifier)
	}
	if _, dup := dst[id]; dup {
		return fmt.Errorf("duplicate entry for participant %d", id)
	}
	if !seen {
		value = nil
	}
	v, err := dec(value)
	if err != nil {
		return fmt.Errorf("participant %d: %w", id, err)
	}
	dst[id] = v
	return nil
}

// ========== Round1Package ==========

// MarshalBinary 1: commitment(repeated) 2: proof_r 3: proof_z
func (p *Round1Package) MarshalBinary() ([]byte, error) {
	var b []byte
	for _, c := range p.Commitment {
		b = wire.AppendBytes(b, 1, c.Bytes())
	}
	b = wire.AppendBytes(b, 2, p.ProofR.Bytes())
	b = wire.AppendBytes(b, 3, curve.ScalarBytes(&p.ProofZ))
	return b, nil
}

func (p *Round1Package) UnmarshalBinary(b []byte) error {
	*p = Round1Package{}
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			pt, err := parsePointField(f)
			if err != nil {
				return err
			}
			p.Commitment = append(p.Commitment, pt)
		case 2:
			pt, err := parsePointField(f)
			if err != nil {
				return err
			}
			p.ProofR = pt
		case 3:
			return parseScalarField(f, &p.ProofZ)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(p.Commitment) == 0 || p.ProofR == nil {
		return fmt.Errorf("%w: incomplete round1 package", ErrInvalidCommitment)
	}
	return nil
}

// ========== Round2Package ==========

func (p *Round2Package) MarshalBinary() ([]byte, error) {
	return wire.AppendBytes(nil, 1, curve.ScalarBytes(&p.SigningShare)), nil
}

func (p *Round2Package) UnmarshalBinary(b []byte) error {
	*p = Round2Package{}
	seen := false
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Num == 1 {
			seen = true
			return parseScalarField(f, &p.SigningShare)
		}
		return nil
	})
	if err == nil && !seen {
		err = fmt.Errorf("%w: empty round2 package", ErrInvalidSecretShare)
	}
	return err
}

// ========== SigningCommitments ==========

func (c *SigningCommitments) MarshalBinary() ([]byte, error) {
	if c.Hiding == nil || c.Binding == nil {
		return nil, ErrMissingCommitment
	}
	var b []byte
	b = wire.AppendBytes(b, 1, c.Hiding.Bytes())
	b = wire.AppendBytes(b, 2, c.Binding.Bytes())
	return b, nil
}

func (c *SigningCommitments) UnmarshalBinary(b []byte) error {
	*c = SigningCommitments{}
	err := wire.Walk(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			c.Hiding, err = parsePointField(f)
		case 2:
			c.Binding, err = parsePointField(f)
		}
		return err
	})
	if err != nil {
		return err
	}
	if c.Hiding == nil || c.Binding == nil {
		return ErrMissingCommitment
	}
	return nil
}

// ========== SigningPackage ==========

// MarshalBinary 1: commitments(map) 2: message
func (p *SigningPackage) MarshalBinary() ([]byte, error) {
	b, err := AppendIdentifierMap(nil, 1, p.Commitments, func(c *SigningCommitments) ([]byte, error) {
		return c.MarshalBinary()
	})
	if err != nil {
		return nil, err
	}
	return wire.AppendOptionalBytes(b, 2, p.Message), nil
}

func (p *SigningPackage) UnmarshalBinary(b []byte) error {
	*p = SigningPackage{Commitments: make(map[Identifier]*SigningCommitments)}
	return wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return ParseIdentifierEntry(f, p.Commitments, func(v []byte) (*SigningCommitments, error) {
				c := new(SigningCommitments)
				return c, c.UnmarshalBinary(v)
			})
		case 2:
			msg, err := f.ExpectBytes()
			p.Message = wire.Clone(msg)
			return err
		}
		return nil
	})
}

// ========== SignatureShare ==========

func (s *SignatureShare) MarshalBinary() ([]byte, error) {
	return wire.AppendBytes(nil, 1, curve.ScalarBytes(&s.Z)), nil
}

func (s *SignatureShare) UnmarshalBinary(b []byte) error {
	*s = SignatureShare{}
	seen := false
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Num == 1 {
			seen = true
			return parseScalarField(f, &s.Z)
		}
		return nil
	})
	if err == nil && !seen {
		err = fmt.Errorf("%w: empty share", ErrInvalidSignatureShare)
	}
	return err
}

// ========== PublicKeyPackage ==========

// MarshalBinary 1: verifying_shares(map) 2: verifying_key
func (p *PublicKeyPackage) MarshalBinary() ([]byte, error) {
	b, err := AppendIdentifierMap(nil, 1, p.VerifyingShares, func(pt *curve.Point) ([]byte, error) {
		return pt.Bytes(), nil
	})
	if err != nil {
		return nil, err
	}
	return wire.AppendBytes(b, 2, p.VerifyingKey.Bytes()), nil
}

func (p *PublicKeyPackage) UnmarshalBinary(b []byte) error {
	*p = PublicKeyPackage{VerifyingShares: make(map[Identifier]*curve.Point)}
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return ParseIdentifierEntry(f, p.VerifyingShares, curve.ParsePoint)
		case 2:
			pt, err := parsePointField(f)
			p.VerifyingKey = pt
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if p.VerifyingKey == nil {
		return fmt.Errorf("%w: missing verifying key", ErrInvalidCommitment)
	}
	return nil
}

// Equal 按规范编码比较
func (p *PublicKeyPackage) Equal(o *PublicKeyPackage) bool {
	if p == nil || o == nil {
		return p == o
	}
	a, errA := p.MarshalBinary()
	b, errB := o.MarshalBinary()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// ========== KeyPackage ==========

// MarshalBinary 1: id 2: signing_share 3: verifying_share 4: verifying_key 5: min_signers
func (k *KeyPackage) MarshalBinary() ([]byte, error) {
	var b []byte
	b = wire.AppendUint(b, 1, uint64(k.Identifier))
	b = wire.AppendBytes(b, 2, curve.ScalarBytes(&k.SigningShare))
	b = wire.AppendBytes(b, 3, k.VerifyingShare.Bytes())
	b = wire.AppendBytes(b, 4, k.VerifyingKey.Bytes())
	b = wire.AppendUint(b, 5, uint64(k.MinSigners))
	return b, nil
}

func (k *KeyPackage) UnmarshalBinary(b []byte) error {
	*k = KeyPackage{}
	err := wire.Walk(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			k.Identifier, err = parseIdentifier(f)
		case 2:
			err = parseScalarField(f, &k.SigningShare)
		case 3:
			k.VerifyingShare, err = parsePointField(f)
		case 4:
			k.VerifyingKey, err = parsePointField(f)
		case 5:
			k.MinSigners, err = parseUint16(f)
		}
		return err
	})
	if err != nil {
		return err
	}
	if k.Identifier == 0 || k.VerifyingShare == nil || k.VerifyingKey == nil {
		return fmt.Errorf("%w: incomplete key package", ErrInvalidParameters)
	}
	return nil
}

// ========== 秘密包（仅本地持久化） ==========

// MarshalBinary 1: id 2: coefficients 3: commitment 4: min 5: max
func (s *Round1SecretPackage) MarshalBinary() ([]byte, error) {
	var b []byte
	b = wire.AppendUint(b, 1, uint64(s.Identifier))
	for i := range s.Polynomial.Coefficients {
		b = wire.AppendBytes(b, 2, curve.ScalarBytes(&s.Polynomial.Coefficients[i]))
	}
	for _, c := range s.Commitment {
		b = wire.AppendBytes(b, 3, c.Bytes())
	}
	b = wire.AppendUint(b, 4, uint64(s.MinSigners))
	b = wire.AppendUint(b, 5, uint64(s.MaxSigners))
	return b, nil
}

func (s *Round1SecretPackage) UnmarshalBinary(b []byte) error {
	*s = Round1SecretPackage{Polynomial: &dkg.Polynomial{}}
	return wire.Walk(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			s.Identifier, err = parseIdentifier(f)
		case 2:
			var c curve.Scalar
			if err = parseScalarField(f, &c); err == nil {
				s.Polynomial.Coefficients = append(s.Polynomial.Coefficients, c)
			}
		case 3:
			var pt *curve.Point
			if pt, err = parsePointField(f); err == nil {
				s.Commitment = append(s.Commitment, pt)
			}
		case 4:
			s.MinSigners, err = parseUint16(f)
		case 5:
			s.MaxSigners, err = parseUint16(f)
		}
		return err
	})
}

// MarshalBinary 1: id 2: commitment 3: secret_share 4: min 5: max
func (s *Round2SecretPackage) MarshalBinary() ([]byte, error) {
	var b []byte
	b = wire.AppendUint(b, 1, uint64(s.Identifier))
	for _, c := range s.Commitment {
		b = wire.AppendBytes(b, 2, c.Bytes())
	}
	b = wire.AppendBytes(b, 3, curve.ScalarBytes(&s.SecretShare))
	b = wire.AppendUint(b, 4, uint64(s.MinSigners))
	b = wire.AppendUint(b, 5, uint64(s.MaxSigners))
	return b, nil
}

func (s *Round2SecretPackage) UnmarshalBinary(b []byte) error {
	*s = Round2SecretPackage{}
	return wire.Walk(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			s.Identifier, err = parseIdentifier(f)
		case 2:
			var pt *curve.Point
			if pt, err = parsePointField(f); err == nil {
				s.Commitment = append(s.Commitment, pt)
			}
		case 3:
			err = parseScalarField(f, &s.SecretShare)
		case 4:
			s.MinSigners, err = parseUint16(f)
		case 5:
			s.MaxSigners, err = parseUint16(f)
		}
		return err
	})
}

// MarshalBinary 1: hiding 2: binding 3: commitments
func (n *SigningNonces) MarshalBinary() ([]byte, error) {
	var b []byte
	b = wire.AppendBytes(b, 1, curve.ScalarBytes(&n.Hiding))
	b = wire.AppendBytes(b, 2, curve.ScalarBytes(&n.Binding))
	if n.Commitments != nil {
		c, err := n.Commitments.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = wire.AppendMessage(b, 3, c)
	}
	return b, nil
}

func (n *SigningNonces) UnmarshalBinary(b []byte) error {
	*n = SigningNonces{}
	return wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return parseScalarField(f, &n.Hiding)
		case 2:
			return parseScalarField(f, &n.Binding)
		case 3:
			raw, err := f.ExpectBytes()
			if err != nil {
				return err
			}
			n.Commitments = new(SigningCommitments)
			return n.Commitments.UnmarshalBinary(raw)
		}
		return nil
	})
}
