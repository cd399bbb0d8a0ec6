// frost/runtime/types/messages.go
// SignerClient 请求/响应负载与 protowire 编解码

package types

import (
	"encoding"
	"fmt"

	"frostsign/frost/core/frost"
	"frostsign/frost/core/wire"

	"google.golang.org/protobuf/encoding/protowire"
)

// Round2Package 发往某个接收方的 round-2 份额，已用接收方身份公钥 ECIES 加密
type Round2Package struct {
	Ciphertext []byte
}

// ========== DKG ==========

type DkgRound1Request struct {
	MusigID MusigID
}

type DkgRound1Response struct {
	Round1Package *frost.Round1Package
}

type DkgRound2Request struct {
	MusigID        MusigID
	Round1Packages map[frost.Identifier]*frost.Round1Package
}

type DkgRound2Response struct {
	Round2Packages map[frost.Identifier]*Round2Package // 接收方 → 密文
}

type DkgFinalizeRequest struct {
	MusigID        MusigID
	Round1Packages map[frost.Identifier]*frost.Round1Package
	Round2Packages map[frost.Identifier]*Round2Package // 发送方 → 密文
}

type DkgFinalizeResponse struct {
	PublicKeyPackage *frost.PublicKeyPackage
}

// ========== 签名 ==========

type SignRound1Request struct {
	MusigID     MusigID
	SessionID   string
	MessageHash []byte
	Metadata    SigningMetadata
	Tweak       *TweakBytes
}

type SignRound1Response struct {
	Commitments *frost.SigningCommitments
}

type SignRound2Request struct {
	MusigID        MusigID
	SessionID      string
	SigningPackage *frost.SigningPackage
}

type SignRound2Response struct {
	SignatureShare *frost.SignatureShare
}

// ========== 编码工具 ==========

func appendMarshaler(b []byte, num protowire.Number, m encoding.BinaryMarshaler) ([]byte, error) {
	raw, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return wire.AppendMessage(b, num, raw), nil
}

func unmarshalField(f wire.Field, m encoding.BinaryUnmarshaler) error {
	raw, err := f.ExpectBytes()
	if err != nil {
		return err
	}
	return m.UnmarshalBinary(raw)
}

func appendRound1Map(b []byte, num protowire.Number, m map[frost.Identifier]*frost.Round1Package) ([]byte, error) {
	return frost.AppendIdentifierMap(b, num, m, func(p *frost.Round1Package) ([]byte, error) {
		return p.MarshalBinary()
	})
}

func parseRound1Entry(f wire.Field, dst map[frost.Identifier]*frost.Round1Package) error {
	return frost.ParseIdentifierEntry(f, dst, func(v []byte) (*frost.Round1Package, error) {
		p := new(frost.Round1Package)
		return p, p.UnmarshalBinary(v)
	})
}

func appendSealedMap(b []byte, num protowire.Number, m map[frost.Identifier]*Round2Package) ([]byte, error) {
	return frost.AppendIdentifierMap(b, num, m, func(p *Round2Package) ([]byte, error) {
		return wire.AppendBytes(nil, 1, p.Ciphertext), nil
	})
}

func parseSealedEntry(f wire.Field, dst map[frost.Identifier]*Round2Package) error {
	return frost.ParseIdentifierEntry(f, dst, func(v []byte) (*Round2Package, error) {
		p := new(Round2Package)
		err := wire.Walk(v, func(ef wire.Field) error {
			if ef.Num == 1 {
				ct, err := ef.ExpectBytes()
				p.Ciphertext = wire.Clone(ct)
				return err
			}
			return nil
		})
		return p, err
	})
}

func requireField(ok bool, name string) error {
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrMalformedRecord, name)
	}
	return nil
}

// ========== DkgRound1 ==========

func (r *DkgRound1Request) MarshalBinary() ([]byte, error) {
	return appendMarshaler(nil, 1, r.MusigID)
}

func (r *DkgRound1Request) UnmarshalBinary(b []byte) error {
	*r = DkgRound1Request{}
	seen := false
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Num == 1 {
			seen = true
			return unmarshalField(f, &r.MusigID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return requireField(seen, "musig id")
}

func (r *DkgRound1Response) MarshalBinary() ([]byte, error) {
	return appendMarshaler(nil, 1, r.Round1Package)
}

func (r *DkgRound1Response) UnmarshalBinary(b []byte) error {
	*r = DkgRound1Response{}
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Num == 1 {
			r.Round1Package = new(frost.Round1Package)
			return unmarshalField(f, r.Round1Package)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return requireField(r.Round1Package != nil, "round1 package")
}

// ========== DkgRound2 ==========

func (r *DkgRound2Request) MarshalBinary() ([]byte, error) {
	b, err := appendMarshaler(nil, 1, r.MusigID)
	if err != nil {
		return nil, err
	}
	return appendRound1Map(b, 2, r.Round1Packages)
}

func (r *DkgRound2Request) UnmarshalBinary(b []byte) error {
	*r = DkgRound2Request{Round1Packages: make(map[frost.Identifier]*frost.Round1Package)}
	seen := false
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			seen = true
			return unmarshalField(f, &r.MusigID)
		case 2:
			return parseRound1Entry(f, r.Round1Packages)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return requireField(seen, "musig id")
}

func (r *DkgRound2Response) MarshalBinary() ([]byte, error) {
	return appendSealedMap(nil, 1, r.Round2Packages)
}

func (r *DkgRound2Response) UnmarshalBinary(b []byte) error {
	*r = DkgRound2Response{Round2Packages: make(map[frost.Identifier]*Round2Package)}
	return wire.Walk(b, func(f wire.Field) error {
		if f.Num == 1 {
			return parseSealedEntry(f, r.Round2Packages)
		}
		return nil
	})
}

// ========== DkgFinalize ==========

func (r *DkgFinalizeRequest) MarshalBinary() ([]byte, error) {
	b, err := appendMarshaler(nil, 1, r.MusigID)
	if err != nil {
		return nil, err
	}
	if b, err = appendRound1Map(b, 2, r.Round1Packages); err != nil {
		return nil, err
	}
	return appendSealedMap(b, 3, r.Round2Packages)
}

func (r *DkgFinalizeRequest) UnmarshalBinary(b []byte) error {
	*r = DkgFinalizeRequest{
		Round1Packages: make(map[frost.Identifier]*frost.Round1Package),
		Round2Packages: make(map[frost.Identifier]*Round2Package),
	}
	seen := false
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			seen = true
			return unmarshalField(f, &r.MusigID)
		case 2:
			return parseRound1Entry(f, r.Round1Packages)
		case 3:
			return parseSealedEntry(f, r.Round2Packages)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return requireField(seen, "musig id")
}

func (r *DkgFinalizeResponse) MarshalBinary() ([]byte, error) {
	return appendMarshaler(nil, 1, r.PublicKeyPackage)
}

func (r *DkgFinalizeResponse) UnmarshalBinary(b []byte) error {
	*r = DkgFinalizeResponse{}
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Num == 1 {
			r.PublicKeyPackage = new(frost.PublicKeyPackage)
			return unmarshalField(f, r.PublicKeyPackage)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return requireField(r.PublicKeyPackage != nil, "public key package")
}

// ========== SignRound1 ==========

// MarshalBinary 1: musig_id 2: session_id 3: message_hash 4: metadata 5: tweak
func (r *SignRound1Request) MarshalBinary() ([]byte, error) {
	b, err := appendMarshaler(nil, 1, r.MusigID)
	if err != nil {
		return nil, err
	}
	b = wire.AppendString(b, 2, r.SessionID)
	b = wire.AppendOptionalBytes(b, 3, r.MessageHash)
	if b, err = appendMarshaler(b, 4, r.Metadata); err != nil {
		return nil, err
	}
	return wire.AppendOptionalBytes(b, 5, r.Tweak.Bytes()), nil
}

func (r *SignRound1Request) UnmarshalBinary(b []byte) error {
	*r = SignRound1Request{}
	seen := false
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			seen = true
			return unmarshalField(f, &r.MusigID)
		case 2:
			v, err := f.ExpectBytes()
			r.SessionID = string(v)
			return err
		case 3:
			v, err := f.ExpectBytes()
			r.MessageHash = wire.Clone(v)
			return err
		case 4:
			return unmarshalField(f, &r.Metadata)
		case 5:
			v, err := f.ExpectBytes()
			if err != nil {
				return err
			}
			r.Tweak, err = ParseTweak(v)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := requireField(seen, "musig id"); err != nil {
		return err
	}
	return requireField(r.SessionID != "", "session id")
}

func (r *SignRound1Response) MarshalBinary() ([]byte, error) {
	return appendMarshaler(nil, 1, r.Commitments)
}

func (r *SignRound1Response) UnmarshalBinary(b []byte) error {
	*r = SignRound1Response{}
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Num == 1 {
			r.Commitments = new(frost.SigningCommitments)
			return unmarshalField(f, r.Commitments)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return requireField(r.Commitments != nil, "commitments")
}

// ========== SignRound2 ==========

func (r *SignRound2Request) MarshalBinary() ([]byte, error) {
	b, err := appendMarshaler(nil, 1, r.MusigID)
	if err != nil {
		return nil, err
	}
	b = wire.AppendString(b, 2, r.SessionID)
	return appendMarshaler(b, 3, r.SigningPackage)
}

func (r *SignRound2Request) UnmarshalBinary(b []byte) error {
	*r = SignRound2Request{}
	seen := false
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			seen = true
			return unmarshalField(f, &r.MusigID)
		case 2:
			v, err := f.ExpectBytes()
			r.SessionID = string(v)
			return err
		case 3:
			r.SigningPackage = new(frost.SigningPackage)
			return unmarshalField(f, r.SigningPackage)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := requireField(seen, "musig id"); err != nil {
		return err
	}
	if err := requireField(r.SessionID != "", "session id"); err != nil {
		return err
	}
	return requireField(r.SigningPackage != nil, "signing package")
}

func (r *SignRound2Response) MarshalBinary() ([]byte, error) {
	return appendMarshaler(nil, 1, r.SignatureShare)
}

func (r *SignRound2Response) UnmarshalBinary(b []byte) error {
	*r = SignRound2Response{}
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Num == 1 {
			r.SignatureShare = new(frost.SignatureShare)
			return unmarshalField(f, r.SignatureShare)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return requireField(r.SignatureShare != nil, "signature share")
}
