// frost/runtime/hashing.go
// 先规范化哈希再签名

package runtime

import (
	"context"

	"frostsign/frost/core/frost"
	"frostsign/frost/runtime/types"
	"frostsign/hasher"

	"google.golang.org/protobuf/proto"
)

// SignMessage 对 protobuf 对象哈希后签名；metadata 未指定用途时默认为 Message
func (a *FrostAggregator) SignMessage(ctx context.Context, id types.MusigID, msg proto.Message, metadata types.SigningMetadata, tweak *types.TweakBytes) (*frost.Signature, error) {
	digest, err := hasher.HashMessage(msg)
	if err != nil {
		return nil, newError(ErrInvalidRequest, "sign_message", id, err)
	}
	if metadata.Purpose == types.PurposeUnspecified {
		metadata.Purpose = types.PurposeMessage
	}
	return a.RunSigningFlow(ctx, id, digest, metadata, tweak)
}

// SignTokenTransaction 运营方对最终哈希签名
func (a *FrostAggregator) SignTokenTransaction(ctx context.Context, id types.MusigID, tx *hasher.TokenTransaction, tweak *types.TweakBytes) (*frost.Signature, error) {
	digest, err := hasher.HashTokenTransaction(tx, false)
	if err != nil {
		return nil, newError(ErrInvalidRequest, "sign_token_transaction", id, err)
	}
	metadata := types.SigningMetadata{Purpose: types.PurposeTokenTransaction, Detail: tokenDetail(tx)}
	return a.RunSigningFlow(ctx, id, digest, metadata, tweak)
}

func tokenDetail(tx *hasher.TokenTransaction) string {
	switch {
	case tx.Mint != nil:
		return "mint"
	case tx.Transfer != nil:
		return "transfer"
	case tx.Create != nil:
		return "create"
	}
	return ""
}
