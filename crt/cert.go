package crt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"frostsign/logs"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// DefaultValidity 自签名证书有效期
const DefaultValidity = 365 * 24 * time.Hour

// ErrNoCertificate tls.Certificate 中没有证书
var ErrNoCertificate = errors.New("no certificate")

// IdentityAddress 签名者身份公钥的 P2TR 地址，写入证书的 Organization 字段
func IdentityAddress(identity *btcec.PublicKey, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(identity), params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// SelfSigned 生成内存中的 ECDSA P-256 自签名证书。
// hosts 可以是域名或 IP；identity 非 nil 时把其 taproot 地址写入 Organization
func SelfSigned(hosts []string, identity *btcec.PublicKey, params *chaincfg.Params) (tls.Certificate, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	subject := pkix.Name{CommonName: "frostsign"}
	if identity != nil {
		addr, err := IdentityAddress(identity, params)
		if err != nil {
			return tls.Certificate{}, err
		}
		subject.Organization = []string{addr}
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          big.NewInt(now.UnixNano()),
		Subject:               subject,
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(DefaultValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	if len(hosts) == 0 {
		hosts = []string{"localhost"}
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return tls.Certificate{}, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}
	logs.Debug("[crt] self-signed certificate generated for %v, organization=%v", hosts, subject.Organization)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: privateKey, Leaf: leaf}, nil
}

// LoadOrGenerate certFile 与 keyFile 都为空时生成自签名证书
func LoadOrGenerate(certFile, keyFile string, hosts []string, identity *btcec.PublicKey, params *chaincfg.Params) (tls.Certificate, error) {
	if certFile == "" && keyFile == "" {
		return SelfSigned(hosts, identity, params)
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load key pair: %w", err)
	}
	return cert, nil
}

// WritePEM 把证书与私钥写成 PEM 文件
func WritePEM(cert tls.Certificate, certPath, keyPath string) error {
	if len(cert.Certificate) == 0 {
		return ErrNoCertificate
	}
	key, ok := cert.PrivateKey.(*ecdsa.PrivateKey)
	if !ok {
		return fmt.Errorf("unsupported private key type %T", cert.PrivateKey)
	}
	privBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}

	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]}), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}), 0o600); err != nil {
		return err
	}
	logs.Debug("[crt] certificate written: %s, key: %s", certPath, keyPath)
	return nil
}

// Pool 由若干证书构造信任池，供客户端校验自签名的对端
func Pool(certs ...tls.Certificate) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for _, c := range certs {
		if len(c.Certificate) == 0 {
			return nil, ErrNoCertificate
		}
		leaf, err := x509.ParseCertificate(c.Certificate[0])
		if err != nil {
			return nil, err
		}
		pool.AddCert(leaf)
	}
	return pool, nil
}

// LoadPool 从 PEM 文件构造信任池
func LoadPool(paths ...string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificate found in %s", p)
		}
	}
	return pool, nil
}
