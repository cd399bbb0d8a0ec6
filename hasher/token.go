// hasher/token.go
// 代币交易哈希：各字段先单独 SHA-256，再按固定顺序写入同一个运行中的 SHA-256

package hasher

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"sort"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
)

// ========== 错误定义 ==========

var (
	ErrNilTransaction = errors.New("token transaction is nil")
	ErrInvalidInput   = errors.New("token transaction must have exactly one of mint, transfer or create input")
	ErrInvalidField   = errors.New("invalid token transaction field")
)

// 输入类型标识
const (
	inputTypeCreate   byte = 1
	inputTypeMint     byte = 2
	inputTypeTransfer byte = 3
)

const (
	pubKeySize = 33
	hashSize   = 32
)

// maxUint128 金额上限（不含）
var maxUint128 = new(big.Int).Lsh(big.NewInt(1), 128)

// ========== 类型 ==========

// TokenTransaction 待签名的代币交易
type TokenTransaction struct {
	Version uint32

	// 三选一
	Mint     *MintInput
	Transfer *TransferInput
	Create   *CreateInput

	Outputs                    []*TokenOutput
	OperatorIdentityPublicKeys [][]byte
	Network                    wire.BitcoinNet

	ClientCreatedTimestamp time.Time // version >= 2
	ExpiryTime             time.Time // 最终哈希才包含
}

// MintInput 发行
type MintInput struct {
	IssuerPublicKey []byte
	TokenIdentifier []byte // 可选
}

// TransferInput 转账：花费之前交易的输出
type TransferInput struct {
	OutputsToSpend []OutputReference
}

// OutputReference 指向之前交易的某个输出
type OutputReference struct {
	PrevTokenTransactionHash []byte
	Vout                     uint32
}

// CreateInput 创建代币
type CreateInput struct {
	IssuerPublicKey []byte
	TokenName       string
	TokenTicker     string
	Decimals        uint8
	MaxSupply       decimal.Decimal
	IsFreezable     bool
}

// TokenOutput 输出叶子；ID、撤销承诺、保证金、锁定时间由运营方在最终化时填写
type TokenOutput struct {
	ID                            string
	OwnerPublicKey                []byte
	RevocationCommitment          []byte
	WithdrawBondSats              uint64
	WithdrawRelativeBlockLocktime uint64
	TokenPublicKey                []byte // 可选
	TokenIdentifier               []byte // 可选
	TokenAmount                   decimal.Decimal
}

// ========== 哈希 ==========

func sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// writeHashed 写入 SHA-256(b)
func writeHashed(h hash.Hash, b []byte) {
	h.Write(sum(b))
}

func u32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func u64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func unixMillis(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixMilli())
}

// Uint128Bytes 非负整数金额，16 字节大端
func Uint128Bytes(d decimal.Decimal) ([]byte, error) {
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("%w: amount %s is not an integer", ErrInvalidField, d)
	}
	v := d.BigInt()
	if v.Sign() < 0 || v.Cmp(maxUint128) >= 0 {
		return nil, fmt.Errorf("%w: amount %s out of uint128 range", ErrInvalidField, d)
	}
	return v.FillBytes(make([]byte, 16)), nil
}

func checkLen(name string, b []byte, n int) error {
	if len(b) != n {
		return fmt.Errorf("%w: %s must be %d bytes, got %d", ErrInvalidField, name, n, len(b))
	}
	return nil
}

// HashTokenTransaction partial=true 时省略运营方最终化才确定的字段（输出 ID、撤销承诺、
// 保证金、锁定时间、过期时间）；所有者签 partial 哈希，运营方签最终哈希
func HashTokenTransaction(tx *TokenTransaction, partial bool) ([]byte, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	h := sha256.New()

	if tx.Version >= 2 {
		writeHashed(h, u32(tx.Version))
	}
	if err := hashInput(h, tx); err != nil {
		return nil, err
	}

	writeHashed(h, u32(uint32(len(tx.Outputs))))
	for i, out := range tx.Outputs {
		leaf, err := HashTokenOutput(out, partial)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		h.Write(leaf)
	}

	keys := make([][]byte, len(tx.OperatorIdentityPublicKeys))
	copy(keys, tx.OperatorIdentityPublicKeys)
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	writeHashed(h, u32(uint32(len(keys))))
	for i, k := range keys {
		if err := checkLen(fmt.Sprintf("operator key %d", i), k, pubKeySize); err != nil {
			return nil, err
		}
		writeHashed(h, k)
	}

	writeHashed(h, u32(uint32(tx.Network)))

	if tx.Version >= 2 {
		writeHashed(h, u64(unixMillis(tx.ClientCreatedTimestamp)))
	}
	if !partial && (tx.Version >= 2 || !tx.ExpiryTime.IsZero()) {
		writeHashed(h, u64(unixMillis(tx.ExpiryTime)))
	}
	return h.Sum(nil), nil
}

func hashInput(h hash.Hash, tx *TokenTransaction) error {
	set := 0
	for _, ok := range []bool{tx.Mint != nil, tx.Transfer != nil, tx.Create != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return ErrInvalidInput
	}

	switch {
	case tx.Transfer != nil:
		writeHashed(h, []byte{inputTypeTransfer})
		writeHashed(h, u32(uint32(len(tx.Transfer.OutputsToSpend))))
		for i, ref := range tx.Transfer.OutputsToSpend {
			if err := checkLen(fmt.Sprintf("spent output %d hash", i), ref.PrevTokenTransactionHash, hashSize); err != nil {
				return err
			}
			leaf := append(append([]byte(nil), ref.PrevTokenTransactionHash...), u32(ref.Vout)...)
			writeHashed(h, leaf)
		}
	case tx.Mint != nil:
		writeHashed(h, []byte{inputTypeMint})
		if err := checkLen("issuer public key", tx.Mint.IssuerPublicKey, pubKeySize); err != nil {
			return err
		}
		writeHashed(h, tx.Mint.IssuerPublicKey)
		if len(tx.Mint.TokenIdentifier) > 0 {
			writeHashed(h, tx.Mint.TokenIdentifier)
		}
	case tx.Create != nil:
		c := tx.Create
		writeHashed(h, []byte{inputTypeCreate})
		if err := checkLen("issuer public key", c.IssuerPublicKey, pubKeySize); err != nil {
			return err
		}
		supply, err := Uint128Bytes(c.MaxSupply)
		if err != nil {
			return err
		}
		writeHashed(h, c.IssuerPublicKey)
		writeHashed(h, []byte(c.TokenName))
		writeHashed(h, []byte(c.TokenTicker))
		writeHashed(h, []byte{c.Decimals})
		writeHashed(h, supply)
		writeHashed(h, boolByte(c.IsFreezable))
	}
	return nil
}

func boolByte(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// HashTokenOutput 输出叶子哈希 = SHA-256(各字段 SHA-256 的拼接)
func HashTokenOutput(out *TokenOutput, partial bool) ([]byte, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: nil output", ErrInvalidField)
	}
	if err := checkLen("owner public key", out.OwnerPublicKey, pubKeySize); err != nil {
		return nil, err
	}
	amount, err := Uint128Bytes(out.TokenAmount)
	if err != nil {
		return nil, err
	}

	var leaf []byte
	if !partial && out.ID != "" {
		leaf = append(leaf, sum([]byte(out.ID))...)
	}
	leaf = append(leaf, sum(out.OwnerPublicKey)...)
	if !partial {
		if len(out.RevocationCommitment) > 0 {
			if err := checkLen("revocation commitment", out.RevocationCommitment, pubKeySize); err != nil {
				return nil, err
			}
			leaf = append(leaf, sum(out.RevocationCommitment)...)
		}
		leaf = append(leaf, sum(u64(out.WithdrawBondSats))...)
		leaf = append(leaf, sum(u64(out.WithdrawRelativeBlockLocktime))...)
	}
	if len(out.TokenPublicKey) > 0 {
		if err := checkLen("token public key", out.TokenPublicKey, pubKeySize); err != nil {
			return nil, err
		}
		leaf = append(leaf, sum(out.TokenPublicKey)...)
	}
	if len(out.TokenIdentifier) > 0 {
		leaf = append(leaf, sum(out.TokenIdentifier)...)
	}
	leaf = append(leaf, sum(amount)...)
	return sum(leaf), nil
}
