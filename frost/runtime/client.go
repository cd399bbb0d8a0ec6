// frost/runtime/client.go
// SignerClient：聚合者眼中的远端签名者

package runtime

import (
	"context"

	"frostsign/frost/runtime/types"
)

// SignerClient 一个签名者的 RPC 边界；实现方负责传输与超时
type SignerClient interface {
	DkgRound1(ctx context.Context, req *types.DkgRound1Request) (*types.DkgRound1Response, error)
	DkgRound2(ctx context.Context, req *types.DkgRound2Request) (*types.DkgRound2Response, error)
	DkgFinalize(ctx context.Context, req *types.DkgFinalizeRequest) (*types.DkgFinalizeResponse, error)
	SignRound1(ctx context.Context, req *types.SignRound1Request) (*types.SignRound1Response, error)
	SignRound2(ctx context.Context, req *types.SignRound2Request) (*types.SignRound2Response, error)
}

// 进程内签名者直接满足 SignerClient
var _ SignerClient = (*FrostSigner)(nil)
