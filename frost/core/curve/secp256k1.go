package curve

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ContextString FROST 域分隔前缀
const ContextString = "FROST-secp256k1-SHA256-TR-v1"

// TaggedHash BIP-340 风格的 tagged hash：SHA256(SHA256(tag)||SHA256(tag)||data...)
func TaggedHash(tag string, data ...[]byte) []byte {
	h := chainhash.TaggedHash([]byte(tag), data...)
	return h[:]
}

// HashToScalar tagged hash 后模 n 归约
func HashToScalar(tag string, data ...[]byte) *Scalar {
	h := chainhash.TaggedHash([]byte(tag), data...)
	var s Scalar
	s.SetBytes((*[32]byte)(h))
	return &s
}

// FrostHash 带 ContextString 前缀的域分隔哈希（H1..H5）
func FrostHash(name string, data ...[]byte) []byte {
	return TaggedHash(ContextString+name, data...)
}

// FrostHashToScalar 带 ContextString 前缀的哈希到标量
func FrostHashToScalar(name string, data ...[]byte) *Scalar {
	return HashToScalar(ContextString+name, data...)
}
