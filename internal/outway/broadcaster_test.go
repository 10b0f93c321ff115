package outway

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nlx-io/nlx-gateway/internal/metrics"
	"github.com/nlx-io/nlx-gateway/internal/rpc"
	"github.com/nlx-io/nlx-gateway/internal/rpc/directory"
	"github.com/nlx-io/nlx-gateway/internal/rpc/management"
	"github.com/nlx-io/nlx-gateway/internal/rpctest"
	"github.com/nlx-io/nlx-gateway/internal/tlsconfig"
)

// newOrgTLSPair generates a minimal self-signed organization TLS pair on
// disk and loads it through tlsconfig.Load, matching the shape
// Broadcaster.OrgTLS expects. Grounded on tlsconfig_test.go's genCert.
func newOrgTLSPair(t *testing.T) *tlsconfig.Pair {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "outway-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	dir := t.TempDir()
	rootPath := filepath.Join(dir, "root.pem")
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(rootPath, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	pair, err := tlsconfig.Load(rootPath, certPath, keyPath)
	if err != nil {
		t.Fatalf("tlsconfig.Load: %v", err)
	}
	return pair
}

// TestBroadcaster_AnnouncesToBothManagementAndDirectory drives Run against
// real in-process management and directory servers (internal/rpctest) and
// asserts both RegisterOutway RPCs are observed, exercising the parallel
// announce path spec.md §4.2 describes.
func TestBroadcaster_AnnouncesToBothManagementAndDirectory(t *testing.T) {
	cert, leaf := rpctest.NewCert(t)
	tlsCfg := rpctest.ClientTLSConfig(leaf)

	var mgmtCalls, dirCalls int32
	mgmtAddr := rpctest.StartServer(t, cert, func(call rpctest.Call) (any, error) {
		if call.Method == "/nlx.management.Management/RegisterOutway" {
			atomic.AddInt32(&mgmtCalls, 1)
		}
		return map[string]any{}, nil
	})
	dirAddr := rpctest.StartServer(t, cert, func(call rpctest.Call) (any, error) {
		if call.Method == "/nlx.directory.Directory/RegisterOutway" {
			atomic.AddInt32(&dirCalls, 1)
		}
		return map[string]any{}, nil
	})

	mgmtConn, err := rpc.Dial(mgmtAddr, tlsCfg)
	if err != nil {
		t.Fatalf("dial management: %v", err)
	}
	defer mgmtConn.Close()
	dirConn, err := rpc.Dial(dirAddr, tlsCfg)
	if err != nil {
		t.Fatalf("dial directory: %v", err)
	}
	defer dirConn.Close()

	b := &Broadcaster{
		Name:             "outway-1",
		Version:          "v-test",
		SelfAddressAPI:   "https://outway.example.org/api",
		OrgTLS:           newOrgTLSPair(t),
		Management:       management.New(mgmtConn),
		Directory:        directory.New(dirConn),
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:          metrics.New(),
		announceInterval: 20 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := b.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if atomic.LoadInt32(&mgmtCalls) == 0 {
		t.Error("management RegisterOutway was never called")
	}
	if atomic.LoadInt32(&dirCalls) == 0 {
		t.Error("directory RegisterOutway was never called")
	}
}
