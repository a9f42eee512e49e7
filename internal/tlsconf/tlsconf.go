// Package tlsconf derives matching TLS settings for the daemon's TCP listener
// and its clients from the shared bearer token.
//
// The private key is derived deterministically via HKDF, so both sides get
// the same key from the same token. The certificate itself is random; clients
// skip chain verification and compare the server's public key instead.
//
// Same token → public keys match → connection succeeds, traffic encrypted.
// Different tokens → public keys differ → handshake fails.
//
// Key derivation:
//
//	HKDF-SHA256(ikm=token, salt="clipvault-tls-v1", info="private-key")
//	→ 64 bytes → reduced mod curve order → deterministic ECDSA P-256 key
package tlsconf

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hkdf"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"google.golang.org/grpc/credentials"
)

// ServerName is the name clients send in the handshake and the certificate
// carries.
const ServerName = "clipvault"

// Pair holds a server config and the client config that trusts it.
type Pair struct {
	Server *tls.Config
	Client *tls.Config
}

// Derive builds the server and client TLS configs for token.
func Derive(token string) (*Pair, error) {
	if token == "" {
		return nil, errors.New("tlsconf: empty token")
	}
	key, err := deriveKey(token)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: derive key: %w", err)
	}
	cert, err := selfSignedCert(key)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: cert: %w", err)
	}
	expectedPub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: marshal pubkey: %w", err)
	}

	return &Pair{
		// h2 and http/1.1 so gRPC and the JSON API can share one listener.
		Server: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS13,
		},
		Client: &tls.Config{
			// The public key is checked below instead of the chain.
			InsecureSkipVerify: true, //nolint:gosec
			ServerName:         ServerName,
			MinVersion:         tls.VersionTLS13,
			VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
				return verifyPublicKey(rawCerts, expectedPub)
			},
		},
	}, nil
}

// Credentials returns gRPC transport credentials for the client side.
func (p *Pair) Credentials() credentials.TransportCredentials {
	return credentials.NewTLS(p.Client.Clone())
}

func verifyPublicKey(rawCerts [][]byte, expected []byte) error {
	if len(rawCerts) == 0 {
		return errors.New("tlsconf: server presented no certificate")
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("tlsconf: parse server cert: %w", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return fmt.Errorf("tlsconf: marshal server pubkey: %w", err)
	}
	if !bytes.Equal(pub, expected) {
		return errors.New("tlsconf: server public key does not match token")
	}
	return nil
}

// deriveKey derives a deterministic ECDSA P-256 private key from token.
func deriveKey(token string) (*ecdsa.PrivateKey, error) {
	buf, err := hkdf.Key(sha256.New, []byte(token), []byte("clipvault-tls-v1"), "private-key", 64)
	if err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}

	curve := elliptic.P256()
	n := curve.Params().N
	k := new(big.Int).SetBytes(buf)
	k.Mod(k, new(big.Int).Sub(n, big.NewInt(1)))
	k.Add(k, big.NewInt(1)) // k ∈ [1, N-1]

	key := new(ecdsa.PrivateKey)
	key.PublicKey.Curve = curve
	key.D = k
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(k.Bytes())
	return key, nil
}

// selfSignedCert wraps key in a throwaway certificate. Only its public key
// is ever checked.
func selfSignedCert(key *ecdsa.PrivateKey) (tls.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: ServerName},
		DNSNames:              []string{ServerName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(100 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	)
}
