// frost/runtime/types/types.go
// 共享类型定义：身份、签名用途、tweak、状态机阶段

package types

import (
	"encoding/hex"
	"errors"
	"fmt"

	"frostsign/frost/core/wire"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ========== 错误定义 ==========

var (
	ErrInvalidMusigID  = errors.New("invalid musig id")
	ErrInvalidPurpose  = errors.New("signing purpose not specified")
	ErrInvalidTweak    = errors.New("tweak must be 32 bytes")
	ErrMalformedState  = errors.New("malformed stored state")
	ErrMalformedRecord = errors.New("malformed request payload")
)

// ========== MusigID ==========

// MusigKind 身份类型
type MusigKind uint8

const (
	MusigKindUnspecified MusigKind = iota
	MusigKindUser                  // 用户账户
	MusigKindIssuer                // 代币发行方
)

func (k MusigKind) String() string {
	switch k {
	case MusigKindUser:
		return "user"
	case MusigKindIssuer:
		return "issuer"
	default:
		return "unspecified"
	}
}

// MusigID 逻辑账户标识，key/session 存储的主键；创建后不可变
type MusigID struct {
	Kind      MusigKind
	PublicKey [33]byte
	RuneID    string
}

func newMusigID(kind MusigKind, pub []byte, runeID string) (MusigID, error) {
	if len(pub) != 33 {
		return MusigID{}, fmt.Errorf("%w: public key length %d", ErrInvalidMusigID, len(pub))
	}
	if _, err := btcec.ParsePubKey(pub); err != nil {
		return MusigID{}, fmt.Errorf("%w: %v", ErrInvalidMusigID, err)
	}
	id := MusigID{Kind: kind, RuneID: runeID}
	copy(id.PublicKey[:], pub)
	return id, nil
}

// NewUserID 用户身份
func NewUserID(userPublicKey []byte, runeID string) (MusigID, error) {
	return newMusigID(MusigKindUser, userPublicKey, runeID)
}

// NewIssuerID 发行方身份
func NewIssuerID(issuerPublicKey []byte, runeID string) (MusigID, error) {
	return newMusigID(MusigKindIssuer, issuerPublicKey, runeID)
}

// Validate 检查类型与公钥
func (m MusigID) Validate() error {
	if m.Kind != MusigKindUser && m.Kind != MusigKindIssuer {
		return fmt.Errorf("%w: kind %d", ErrInvalidMusigID, m.Kind)
	}
	if _, err := btcec.ParsePubKey(m.PublicKey[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMusigID, err)
	}
	return nil
}

// Key 存储键：kind:hex(pub):hex(rune)，rune 编码后不含分隔符
func (m MusigID) Key() string {
	return fmt.Sprintf("%d:%x:%s", m.Kind, m.PublicKey[:], hex.EncodeToString([]byte(m.RuneID)))
}

// String 可记录日志的形式
func (m MusigID) String() string {
	if m.RuneID == "" {
		return fmt.Sprintf("%s(%x)", m.Kind, m.PublicKey[:])
	}
	return fmt.Sprintf("%s(%x, rune=%s)", m.Kind, m.PublicKey[:], m.RuneID)
}

// MarshalBinary 1: kind 2: public_key 3: rune_id
func (m MusigID) MarshalBinary() ([]byte, error) {
	var b []byte
	b = wire.AppendUint(b, 1, uint64(m.Kind))
	b = wire.AppendBytes(b, 2, m.PublicKey[:])
	b = wire.AppendString(b, 3, m.RuneID)
	return b, nil
}

func (m *MusigID) UnmarshalBinary(b []byte) error {
	*m = MusigID{}
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			v, err := f.ExpectVarint()
			if err != nil {
				return err
			}
			m.Kind = MusigKind(v)
		case 2:
			v, err := f.ExpectBytes()
			if err != nil {
				return err
			}
			if len(v) != 33 {
				return fmt.Errorf("%w: public key length %d", ErrInvalidMusigID, len(v))
			}
			copy(m.PublicKey[:], v)
		case 3:
			v, err := f.ExpectBytes()
			if err != nil {
				return err
			}
			m.RuneID = string(v)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return m.Validate()
}

// ========== SigningMetadata ==========

// SigningPurpose 签名用途，防止跨协议复用签名
type SigningPurpose uint8

const (
	PurposeUnspecified      SigningPurpose = iota
	PurposeAuthorization                   // 身份/授权挑战
	PurposeTokenTransaction                // 代币交易最终哈希
	PurposeMessage                         // 通用 protobuf 消息哈希
)

func (p SigningPurpose) String() string {
	switch p {
	case PurposeAuthorization:
		return "authorization"
	case PurposeTokenTransaction:
		return "token_transaction"
	case PurposeMessage:
		return "message"
	default:
		return "unspecified"
	}
}

// SigningMetadata 会话级不可变的签名上下文
type SigningMetadata struct {
	Purpose SigningPurpose
	Detail  string // 例如交易类型、业务单号，仅用于审计
}

// Validate 签名者拒绝未声明用途的请求
func (m SigningMetadata) Validate() error {
	switch m.Purpose {
	case PurposeAuthorization, PurposeTokenTransaction, PurposeMessage:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrInvalidPurpose, m.Purpose)
	}
}

// MarshalBinary 1: purpose 2: detail
func (m SigningMetadata) MarshalBinary() ([]byte, error) {
	var b []byte
	b = wire.AppendUint(b, 1, uint64(m.Purpose))
	b = wire.AppendString(b, 2, m.Detail)
	return b, nil
}

func (m *SigningMetadata) UnmarshalBinary(b []byte) error {
	*m = SigningMetadata{}
	return wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			v, err := f.ExpectVarint()
			m.Purpose = SigningPurpose(v)
			return err
		case 2:
			v, err := f.ExpectBytes()
			m.Detail = string(v)
			return err
		}
		return nil
	})
}

// ========== Tweak ==========

// TweakBytes 32 字节 BIP-341 tweak（taproot merkle root）；*TweakBytes 为 nil 表示不 tweak
type TweakBytes [32]byte

// ParseTweak 空输入返回 nil
func ParseTweak(b []byte) (*TweakBytes, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTweak, len(b))
	}
	var t TweakBytes
	copy(t[:], b)
	return &t, nil
}

// Bytes nil 安全
func (t *TweakBytes) Bytes() []byte {
	if t == nil {
		return nil
	}
	return t[:]
}

// ========== 状态机阶段 ==========

// KeyPhase DKG 状态；不存在记录即 None
type KeyPhase uint8

const (
	KeyPhaseNone KeyPhase = iota
	KeyPhaseDkgRound1
	KeyPhaseDkgRound2
	KeyPhaseDkgFinalized
)

func (p KeyPhase) String() string {
	switch p {
	case KeyPhaseNone:
		return "NONE"
	case KeyPhaseDkgRound1:
		return "DKG_ROUND1"
	case KeyPhaseDkgRound2:
		return "DKG_ROUND2"
	case KeyPhaseDkgFinalized:
		return "DKG_FINALIZED"
	default:
		return "UNKNOWN"
	}
}

// SessionPhase 签名会话状态
type SessionPhase uint8

const (
	SessionPhaseNone SessionPhase = iota
	SessionPhaseSigningRound1
	SessionPhaseSigningRound2
)

func (p SessionPhase) String() string {
	switch p {
	case SessionPhaseNone:
		return "NONE"
	case SessionPhaseSigningRound1:
		return "SIGNING_ROUND1"
	case SessionPhaseSigningRound2:
		return "SIGNING_ROUND2"
	default:
		return "UNKNOWN"
	}
}
