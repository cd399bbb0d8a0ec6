// frost/runtime/types/state.go
// 持久化状态：聚合者/签名者的 key 状态与 session 状态

package types

import (
	"fmt"
	"time"

	"frostsign/frost/core/frost"
	"frostsign/frost/core/wire"
)

// ========== Key 状态 ==========

// AggregatorKeyState 聚合者按 MusigID 保存的合并后 DKG 状态
type AggregatorKeyState struct {
	Phase            KeyPhase
	Round1Packages   map[frost.Identifier]*frost.Round1Package
	Round2Packages   map[frost.Identifier]map[frost.Identifier]*Round2Package // 接收方 → 发送方 → 密文
	PublicKeyPackage *frost.PublicKeyPackage
}

// SignerKeyState 签名者本地的 DKG 状态，秘密包从不离开本节点
type SignerKeyState struct {
	Phase          KeyPhase
	Round1Secret   *frost.Round1SecretPackage
	Round2Secret   *frost.Round2SecretPackage
	Round1Packages map[frost.Identifier]*frost.Round1Package
	KeyPackage     *frost.KeyPackage
}

// Zeroize 清零全部秘密材料
func (s *SignerKeyState) Zeroize() {
	if s == nil {
		return
	}
	s.Round1Secret.Zeroize()
	s.Round2Secret.Zeroize()
	s.KeyPackage.Zeroize()
}

// ========== Session 状态 ==========

// AggregatorSessionState 聚合者按 (MusigID, session) 保存的签名会话
type AggregatorSessionState struct {
	Phase          SessionPhase
	SigningPackage *frost.SigningPackage
	Signature      *frost.Signature
	Tweak          *TweakBytes
	MessageHash    []byte
	Metadata       SigningMetadata
	CreatedAt      time.Time
}

// SignerSessionState 签名者的会话：Round1 持有 nonce，Round2 只保留份额
type SignerSessionState struct {
	Phase          SessionPhase
	Nonces         *frost.SigningNonces
	SignatureShare *frost.SignatureShare
	Tweak          *TweakBytes
	MessageHash    []byte
	Metadata       SigningMetadata
	CreatedAt      time.Time
}

// Zeroize 清零 nonce
func (s *SignerSessionState) Zeroize() {
	if s == nil {
		return
	}
	s.Nonces.Zeroize()
}

// ========== 编解码 ==========

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedState, err)
}

func appendTime(b []byte, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	return wire.AppendInt(b, 7, t.UnixNano())
}

func parsePhase(f wire.Field) (uint8, error) {
	v, err := f.ExpectVarint()
	if err != nil {
		return 0, err
	}
	if v > 0xff {
		return 0, fmt.Errorf("phase %d out of range", v)
	}
	return uint8(v), nil
}

// MarshalBinary 1: phase 2: round1 3: round2(nested map) 4: public key package
func (s *AggregatorKeyState) MarshalBinary() ([]byte, error) {
	b := wire.AppendUint(nil, 1, uint64(s.Phase))
	b, err := appendRound1Map(b, 2, s.Round1Packages)
	if err != nil {
		return nil, err
	}
	b, err = frost.AppendIdentifierMap(b, 3, s.Round2Packages, func(inner map[frost.Identifier]*Round2Package) ([]byte, error) {
		return appendSealedMap(nil, 1, inner)
	})
	if err != nil {
		return nil, err
	}
	if s.PublicKeyPackage != nil {
		if b, err = appendMarshaler(b, 4, s.PublicKeyPackage); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (s *AggregatorKeyState) UnmarshalBinary(b []byte) error {
	*s = AggregatorKeyState{}
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			p, err := parsePhase(f)
			s.Phase = KeyPhase(p)
			return err
		case 2:
			if s.Round1Packages == nil {
				s.Round1Packages = make(map[frost.Identifier]*frost.Round1Package)
			}
			return parseRound1Entry(f, s.Round1Packages)
		case 3:
			if s.Round2Packages == nil {
				s.Round2Packages = make(map[frost.Identifier]map[frost.Identifier]*Round2Package)
			}
			return frost.ParseIdentifierEntry(f, s.Round2Packages, func(v []byte) (map[frost.Identifier]*Round2Package, error) {
				inner := make(map[frost.Identifier]*Round2Package)
				err := wire.Walk(v, func(ef wire.Field) error {
					if ef.Num == 1 {
						return parseSealedEntry(ef, inner)
					}
					return nil
				})
				return inner, err
			})
		case 4:
			s.PublicKeyPackage = new(frost.PublicKeyPackage)
			return unmarshalField(f, s.PublicKeyPackage)
		}
		return nil
	})
	if err != nil {
		return malformed(err)
	}
	return nil
}

// MarshalBinary 1: phase 2: round1 secret 3: round2 secret 4: round1 packages 5: key package
func (s *SignerKeyState) MarshalBinary() ([]byte, error) {
	b := wire.AppendUint(nil, 1, uint64(s.Phase))
	var err error
	if s.Round1Secret != nil {
		if b, err = appendMarshaler(b, 2, s.Round1Secret); err != nil {
			return nil, err
		}
	}
	if s.Round2Secret != nil {
		if b, err = appendMarshaler(b, 3, s.Round2Secret); err != nil {
			return nil, err
		}
	}
	if b, err = appendRound1Map(b, 4, s.Round1Packages); err != nil {
		return nil, err
	}
	if s.KeyPackage != nil {
		if b, err = appendMarshaler(b, 5, s.KeyPackage); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (s *SignerKeyState) UnmarshalBinary(b []byte) error {
	*s = SignerKeyState{}
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			p, err := parsePhase(f)
			s.Phase = KeyPhase(p)
			return err
		case 2:
			s.Round1Secret = new(frost.Round1SecretPackage)
			return unmarshalField(f, s.Round1Secret)
		case 3:
			s.Round2Secret = new(frost.Round2SecretPackage)
			return unmarshalField(f, s.Round2Secret)
		case 4:
			if s.Round1Packages == nil {
				s.Round1Packages = make(map[frost.Identifier]*frost.Round1Package)
			}
			return parseRound1Entry(f, s.Round1Packages)
		case 5:
			s.KeyPackage = new(frost.KeyPackage)
			return unmarshalField(f, s.KeyPackage)
		}
		return nil
	})
	if err != nil {
		return malformed(err)
	}
	return nil
}

// MarshalBinary 1: phase 2: signing package 3: signature 4: tweak 5: message hash 6: metadata 7: created_at
func (s *AggregatorSessionState) MarshalBinary() ([]byte, error) {
	b := wire.AppendUint(nil, 1, uint64(s.Phase))
	var err error
	if s.SigningPackage != nil {
		if b, err = appendMarshaler(b, 2, s.SigningPackage); err != nil {
			return nil, err
		}
	}
	if s.Signature != nil {
		b = wire.AppendBytes(b, 3, s.Signature.Bytes())
	}
	b = wire.AppendOptionalBytes(b, 4, s.Tweak.Bytes())
	b = wire.AppendOptionalBytes(b, 5, s.MessageHash)
	if b, err = appendMarshaler(b, 6, s.Metadata); err != nil {
		return nil, err
	}
	return appendTime(b, s.CreatedAt), nil
}

func (s *AggregatorSessionState) UnmarshalBinary(b []byte) error {
	*s = AggregatorSessionState{}
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			p, err := parsePhase(f)
			s.Phase = SessionPhase(p)
			return err
		case 2:
			s.SigningPackage = new(frost.SigningPackage)
			return unmarshalField(f, s.SigningPackage)
		case 3:
			v, err := f.ExpectBytes()
			if err != nil {
				return err
			}
			s.Signature, err = frost.ParseSignature(v)
			return err
		case 4:
			v, err := f.ExpectBytes()
			if err != nil {
				return err
			}
			s.Tweak, err = ParseTweak(v)
			return err
		case 5:
			v, err := f.ExpectBytes()
			s.MessageHash = wire.Clone(v)
			return err
		case 6:
			return unmarshalField(f, &s.Metadata)
		case 7:
			v, err := f.ExpectVarint()
			s.CreatedAt = time.Unix(0, int64(v))
			return err
		}
		return nil
	})
	if err != nil {
		return malformed(err)
	}
	return nil
}

// MarshalBinary 1: phase 2: nonces 3: share 4: tweak 5: message hash 6: metadata 7: created_at
func (s *SignerSessionState) MarshalBinary() ([]byte, error) {
	b := wire.AppendUint(nil, 1, uint64(s.Phase))
	var err error
	if s.Nonces != nil {
		if b, err = appendMarshaler(b, 2, s.Nonces); err != nil {
			return nil, err
		}
	}
	if s.SignatureShare != nil {
		if b, err = appendMarshaler(b, 3, s.SignatureShare); err != nil {
			return nil, err
		}
	}
	b = wire.AppendOptionalBytes(b, 4, s.Tweak.Bytes())
	b = wire.AppendOptionalBytes(b, 5, s.MessageHash)
	if b, err = appendMarshaler(b, 6, s.Metadata); err != nil {
		return nil, err
	}
	return appendTime(b, s.CreatedAt), nil
}

func (s *SignerSessionState) UnmarshalBinary(b []byte) error {
	*s = SignerSessionState{}
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			p, err := parsePhase(f)
			s.Phase = SessionPhase(p)
			return err
		case 2:
			s.Nonces = new(frost.SigningNonces)
			return unmarshalField(f, s.Nonces)
		case 3:
			s.SignatureShare = new(frost.SignatureShare)
			return unmarshalField(f, s.SignatureShare)
		case 4:
			v, err := f.ExpectBytes()
			if err != nil {
				return err
			}
			s.Tweak, err = ParseTweak(v)
			return err
		case 5:
			v, err := f.ExpectBytes()
			s.MessageHash = wire.Clone(v)
			return err
		case 6:
			return unmarshalField(f, &s.Metadata)
		case 7:
			v, err := f.ExpectVarint()
			s.CreatedAt = time.Unix(0, int64(v))
			return err
		}
		return nil
	})
	if err != nil {
		return malformed(err)
	}
	return nil
}
