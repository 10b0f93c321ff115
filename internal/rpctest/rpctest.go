// Package rpctest is a test-only helper for standing up a real, in-process
// gRPC server that speaks internal/rpc's JSON codec, so internal/inway and
// internal/outway's broadcaster/poll tests can exercise their
// management.Client/directory.Client call paths against genuine network
// traffic instead of a hand-rolled interface seam. There are no
// protoc-generated service stubs to implement here (spec.md §1 treats the
// management/directory .proto definitions as opaque), so calls are
// dispatched through grpc.UnknownServiceHandler keyed on method path,
// mirroring the role a generated XxxServer would otherwise play.
//
// Grounded on the teacher's in-process test-server harness
// (internal/transport/grpctransport_test.go: newTestPKI + startTestServer),
// adapted to dispatch through grpc.UnknownServiceHandler instead of a
// registered service, and trimmed to a single
// self-signed leaf certificate instead of a full CA hierarchy, since these
// tests only need a cert the dialing client can trust directly.
package rpctest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	_ "github.com/nlx-io/nlx-gateway/internal/rpc" // registers the json codec
)

// Call is one observed invocation against a Server: the full method path
// and the request body, decoded generically (the json codec works on any
// shape, so a map is enough for a fake handler to inspect fields by name).
type Call struct {
	Method string
	Req    map[string]any
}

// Handler computes the response body for a single RPC call. A non-nil
// error fails that call with gRPC's default Unknown/Internal status.
type Handler func(call Call) (resp any, err error)

// NewCert generates an in-memory ECDSA self-signed certificate valid for
// 127.0.0.1/localhost, usable directly as both a Server's certificate and
// (via its returned leaf) a client trust anchor.
func NewCert(t *testing.T) (tls.Certificate, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("rpctest: generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "rpctest"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("rpctest: create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("rpctest: parse certificate: %v", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}, leaf
}

// ClientTLSConfig builds a *tls.Config that trusts leaf, suitable for
// dialing a Server via internal/rpc.Dial.
func ClientTLSConfig(leaf *x509.Certificate) *tls.Config {
	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	return &tls.Config{RootCAs: pool}
}

// StartServer starts a real in-process gRPC server on 127.0.0.1 presenting
// cert, dispatching every call through handler, and returns its address.
// The server is stopped via t.Cleanup.
func StartServer(t *testing.T, cert tls.Certificate, handler Handler) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("rpctest: listen: %v", err)
	}

	srv := grpc.NewServer(
		grpc.Creds(credentials.NewTLS(&tls.Config{Certificates: []tls.Certificate{cert}})),
		grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
			method, ok := grpc.MethodFromServerStream(stream)
			if !ok {
				return fmt.Errorf("rpctest: no method on stream")
			}
			var req map[string]any
			if err := stream.RecvMsg(&req); err != nil {
				return fmt.Errorf("rpctest: recv %s: %w", method, err)
			}
			resp, err := handler(Call{Method: method, Req: req})
			if err != nil {
				return err
			}
			return stream.SendMsg(resp)
		}),
	)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}
