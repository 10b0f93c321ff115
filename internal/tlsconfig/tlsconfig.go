// Package tlsconfig loads the PEM certificate material used for both the
// internal (management API) and organization (mesh) identities, and derives
// the server/client tls.Config values the rest of the gateway needs.
//
// Loading follows the same "read cert+key, read CA, build tls.Config"
// sequence as the teacher's transport.loadTLSCredentials, generalized to
// produce both server-side (mandatory client auth) and client-side
// (pinned trust, no system roots) configurations.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// Pair holds one certificate/key/root triple loaded from disk. It is
// immutable after Load and safe to share by reference across goroutines.
type Pair struct {
	RootPEM []byte
	CertPEM []byte
	KeyPEM  []byte

	cert tls.Certificate
	root *x509.CertPool
}

// Load reads the root CA, leaf certificate, and private key PEM files from
// disk and parses the leaf/key into a tls.Certificate.
func Load(rootPath, certPath, keyPath string) (*Pair, error) {
	rootPEM, err := os.ReadFile(rootPath)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: read root cert %s: %w", rootPath, err)
	}
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: read cert %s: %w", certPath, err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: read key %s: %w", keyPath, err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: parse cert/key (%s, %s): %w", certPath, keyPath, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(rootPEM) {
		return nil, fmt.Errorf("tlsconfig: parse root cert %s: no certificates found", rootPath)
	}

	return &Pair{
		RootPEM: rootPEM,
		CertPEM: certPEM,
		KeyPEM:  keyPEM,
		cert:    cert,
		root:    pool,
	}, nil
}

// Bundle returns cert_pem ++ '\n' ++ root_pem, used both as the server's
// certificate chain and as the mandatory client-auth CA set.
func (p *Pair) Bundle() []byte {
	bundle := make([]byte, 0, len(p.CertPEM)+1+len(p.RootPEM))
	bundle = append(bundle, p.CertPEM...)
	bundle = append(bundle, '\n')
	bundle = append(bundle, p.RootPEM...)
	return bundle
}

// PublicKeyPEM extracts the leaf certificate's SubjectPublicKeyInfo and
// re-encodes it under the "PUBLIC KEY" PEM label. It is used by the outway
// to announce its public key to the management API on registration.
func (p *Pair) PublicKeyPEM() ([]byte, error) {
	block, _ := pem.Decode(p.CertPEM)
	if block == nil {
		return nil, fmt.Errorf("tlsconfig: cert is not valid PEM")
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: parse certificate: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: leaf.RawSubjectPublicKeyInfo,
	}), nil
}

// ServerConfig builds a tls.Config suitable for a listener that terminates
// mesh-facing mTLS: it presents the bundle as its certificate chain and
// requires and verifies a client certificate against the same root.
func (p *Pair) ServerConfig() (*tls.Config, error) {
	bundle := p.Bundle()
	cert, err := tls.X509KeyPair(bundle, p.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: build server chain: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    p.root,
	}, nil
}

// ClientConfig builds a tls.Config for outbound connections: it presents
// this identity and trusts only the pinned root (no system roots).
func (p *Pair) ClientConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{p.cert},
		RootCAs:      p.root,
	}
}
