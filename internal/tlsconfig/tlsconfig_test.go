package tlsconfig_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nlx-io/nlx-gateway/internal/tlsconfig"
)

// genCert creates a leaf certificate signed by a freshly generated root CA,
// returning root/cert/key PEM bytes.
func genCert(t *testing.T) (rootPEM, certPEM, keyPEM []byte) {
	t.Helper()

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test root"},
		NotBefore:             time.Unix(0, 0),
		NotAfter:              time.Unix(0, 0).Add(100 * 365 * 24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	if err != nil {
		t.Fatal(err)
	}
	rootPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER})

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		t.Fatal(err)
	}
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "test leaf"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(100 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, rootCert, &leafKey.PublicKey, rootKey)
	if err != nil {
		t.Fatal(err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leafDER})

	keyDER, err := x509.MarshalECPrivateKey(leafKey)
	if err != nil {
		t.Fatal(err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return rootPEM, certPEM, keyPEM
}

func writeTempPair(t *testing.T) (rootPath, certPath, keyPath string) {
	t.Helper()
	rootPEM, certPEM, keyPEM := genCert(t)

	dir := t.TempDir()
	rootPath = filepath.Join(dir, "root.pem")
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	if err := os.WriteFile(rootPath, rootPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	return rootPath, certPath, keyPath
}

func TestLoad_Bundle(t *testing.T) {
	rootPath, certPath, keyPath := writeTempPair(t)

	pair, err := tlsconfig.Load(rootPath, certPath, keyPath)
	if err != nil {
		t.Fatal(err)
	}

	want := append(append([]byte{}, pair.CertPEM...), '\n')
	want = append(want, pair.RootPEM...)

	if !bytes.Equal(pair.Bundle(), want) {
		t.Fatal("Bundle() != cert_pem ++ '\\n' ++ root_pem")
	}
}

func TestLoad_PublicKeyPEM(t *testing.T) {
	rootPath, certPath, keyPath := writeTempPair(t)

	pair, err := tlsconfig.Load(rootPath, certPath, keyPath)
	if err != nil {
		t.Fatal(err)
	}

	pubPEM, err := pair.PublicKeyPEM()
	if err != nil {
		t.Fatal(err)
	}

	block, _ := pem.Decode(pubPEM)
	if block == nil || block.Type != "PUBLIC KEY" {
		t.Fatalf("PublicKeyPEM did not produce a PUBLIC KEY PEM block: %+v", block)
	}
	if _, err := x509.ParsePKIXPublicKey(block.Bytes); err != nil {
		t.Fatalf("PublicKeyPEM produced unparseable SubjectPublicKeyInfo: %v", err)
	}
}

func TestLoad_ServerAndClientConfigs(t *testing.T) {
	rootPath, certPath, keyPath := writeTempPair(t)

	pair, err := tlsconfig.Load(rootPath, certPath, keyPath)
	if err != nil {
		t.Fatal(err)
	}

	serverCfg, err := pair.ServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if serverCfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Fatalf("ClientAuth = %v, want RequireAndVerifyClientCert", serverCfg.ClientAuth)
	}
	if len(serverCfg.Certificates) != 1 {
		t.Fatalf("server config has %d certificates, want 1", len(serverCfg.Certificates))
	}

	clientCfg := pair.ClientConfig()
	if len(clientCfg.Certificates) != 1 {
		t.Fatalf("client config has %d certificates, want 1", len(clientCfg.Certificates))
	}
	if clientCfg.RootCAs == nil {
		t.Fatal("client config has no pinned root pool")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, _, keyPath := writeTempPair(t)
	_, err := tlsconfig.Load(filepath.Join(dir, "missing-root.pem"), filepath.Join(dir, "missing-cert.pem"), keyPath)
	if err == nil {
		t.Fatal("expected error for missing files")
	}
}
