// frost/security/ecies.go
// ECIES 加解密工具（用于 DKG round-2 share 加密，聚合者只转发密文）
// 密文格式：ephemeralPubKey (33 bytes) || ciphertext (len(plaintext)) || mac (32 bytes)

package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidCiphertext     = errors.New("invalid ciphertext format")
	ErrMacVerificationFailed = errors.New("mac verification failed")
	ErrInvalidPublicKey      = errors.New("invalid public key")
	ErrInvalidPrivateKey     = errors.New("invalid private key")
)

const (
	pubKeyLen = 33
	macLen    = 32
	encKeyLen = 16
	hkdfInfo  = "frostsign/ecies/v1"
)

// ECIESCiphertext ECIES 密文结构
type ECIESCiphertext struct {
	EphemeralPubKey []byte // 33 bytes compressed public key
	Encrypted       []byte // 加密的数据
	Mac             []byte // HMAC-SHA256
}

// ECIESEncrypt 使用 secp256k1 ECIES 加密
// recipientPubKey: 接收者公钥（33 字节压缩格式）
// plaintext: 明文（通常是 32 字节 share）
// aad: 附加认证数据，绑定 MusigID 与收发双方
// randomness: 32 字节临时私钥熵
func ECIESEncrypt(recipientPubKey, plaintext, aad, randomness []byte) ([]byte, error) {
	if len(recipientPubKey) != pubKeyLen {
		return nil, ErrInvalidPublicKey
	}
	if len(randomness) != 32 {
		return nil, errors.New("randomness must be 32 bytes")
	}
	pubKey, err := btcec.ParsePubKey(recipientPubKey)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}

	ephemeralPriv, _ := btcec.PrivKeyFromBytes(randomness)
	if ephemeralPriv.Key.IsZero() {
		return nil, ErrInvalidPrivateKey
	}
	defer ephemeralPriv.Zero()
	ephemeralPubBytes := ephemeralPriv.PubKey().SerializeCompressed()

	encKey, macKey, err := deriveKeys(btcec.GenerateSharedSecret(ephemeralPriv, pubKey), ephemeralPubBytes)
	if err != nil {
		return nil, err
	}

	encrypted, err := aesCTR(encKey, plaintext)
	if err != nil {
		return nil, err
	}
	mac := computeHMAC(macKey, ephemeralPubBytes, encrypted, aad)

	result := make([]byte, 0, pubKeyLen+len(encrypted)+macLen)
	result = append(result, ephemeralPubBytes...)
	result = append(result, encrypted...)
	result = append(result, mac...)
	return result, nil
}

// ECIESDecrypt 解密并校验 MAC
func ECIESDecrypt(recipientPriv *btcec.PrivateKey, ciphertext, aad []byte) ([]byte, error) {
	if recipientPriv == nil {
		return nil, ErrInvalidPrivateKey
	}
	parsed, err := ParseECIESCiphertext(ciphertext)
	if err != nil {
		return nil, err
	}
	ephemeralPub, err := btcec.ParsePubKey(parsed.EphemeralPubKey)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}

	encKey, macKey, err := deriveKeys(btcec.GenerateSharedSecret(recipientPriv, ephemeralPub), parsed.EphemeralPubKey)
	if err != nil {
		return nil, err
	}
	expected := computeHMAC(macKey, parsed.EphemeralPubKey, parsed.Encrypted, aad)
	if !hmac.Equal(expected, parsed.Mac) {
		return nil, ErrMacVerificationFailed
	}
	return aesCTR(encKey, parsed.Encrypted)
}

// SealShare 用 rng 抽取临时私钥后加密
func SealShare(recipient *btcec.PublicKey, share, aad []byte, rng io.Reader) ([]byte, error) {
	if recipient == nil {
		return nil, ErrInvalidPublicKey
	}
	var randomness [32]byte
	if _, err := io.ReadFull(rng, randomness[:]); err != nil {
		return nil, fmt.Errorf("read randomness: %w", err)
	}
	defer func() { randomness = [32]byte{} }()
	return ECIESEncrypt(recipient.SerializeCompressed(), share, aad, randomness[:])
}

// deriveKeys HKDF-SHA256(sharedX, salt=ephemeralPub) → encKey(16) || macKey(32)
func deriveKeys(sharedX, salt []byte) ([]byte, []byte, error) {
	r := hkdf.New(sha256.New, sharedX, salt, []byte(hkdfInfo))
	keys := make([]byte, encKeyLen+macLen)
	if _, err := io.ReadFull(r, keys); err != nil {
		return nil, nil, err
	}
	return keys[:encKeyLen], keys[encKeyLen:], nil
}

// aesCTR AES-CTR，加解密同一操作
func aesCTR(key, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	// 使用全零 IV（每个密钥只用一次）
	iv := make([]byte, aes.BlockSize)
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}

// computeHMAC 计算 HMAC-SHA256
func computeHMAC(key []byte, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, key)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// ParseECIESCiphertext 解析 ECIES 密文
func ParseECIESCiphertext(ciphertext []byte) (*ECIESCiphertext, error) {
	if len(ciphertext) < pubKeyLen+macLen {
		return nil, ErrInvalidCiphertext
	}
	n := len(ciphertext) - macLen
	return &ECIESCiphertext{
		EphemeralPubKey: ciphertext[:pubKeyLen],
		Encrypted:       ciphertext[pubKeyLen:n],
		Mac:             ciphertext[n:],
	}, nil
}
