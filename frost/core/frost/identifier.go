package frost

import (
	"errors"
	"fmt"
	"sort"

	"frostsign/frost/core/curve"
)

// ========== 错误定义 ==========

var (
	ErrInvalidIdentifier     = errors.New("invalid participant identifier")
	ErrUnknownParticipant    = errors.New("unknown participant")
	ErrInvalidParameters     = errors.New("invalid threshold parameters")
	ErrIncorrectPackages     = errors.New("incorrect number of packages")
	ErrInvalidProofOfKnow    = errors.New("invalid proof of knowledge")
	ErrInvalidSecretShare    = errors.New("invalid secret share")
	ErrInvalidCommitment     = errors.New("invalid commitment")
	ErrIdentityCommitment    = errors.New("group commitment is the identity")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrInvalidSignatureShare = errors.New("invalid signature share")
	ErrMissingCommitment     = errors.New("missing signing commitment")
	ErrIncorrectCommitment   = errors.New("signing commitment does not match nonces")
	ErrNoncesConsumed        = errors.New("signing nonces already consumed")
)

// Identifier 参与者编号，取值 1..=max_signers
type Identifier uint16

// Scalar 编号对应的标量
func (id Identifier) Scalar() *curve.Scalar {
	return curve.NewScalar(uint32(id))
}

// Bytes 32 字节大端标量编码，哈希时使用
func (id Identifier) Bytes() []byte {
	return curve.ScalarBytes(id.Scalar())
}

// Validate 检查 1 <= id <= max
func (id Identifier) Validate(max uint16) error {
	if id == 0 || uint16(id) > max {
		return fmt.Errorf("%w: %d (max %d)", ErrInvalidIdentifier, id, max)
	}
	return nil
}

func (id Identifier) String() string {
	return fmt.Sprintf("%d", uint16(id))
}

// SortedIdentifiers 返回 map 的有序键，所有影响哈希或签名的遍历都走这里
func SortedIdentifiers[V any](m map[Identifier]V) []Identifier {
	ids := make([]Identifier, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func identifierScalars(ids []Identifier) []*curve.Scalar {
	out := make([]*curve.Scalar, len(ids))
	for i, id := range ids {
		out[i] = id.Scalar()
	}
	return out
}
