package rpc

import (
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Dial opens a connection to address, presenting tlsConfig for mTLS and
// defaulting every call on the connection to the JSON codec registered in
// codec.go. Grounded on the teacher's transport.connect
// (internal/transport/grpctransport.go), which dials with
// grpc.NewClient + grpc.WithTransportCredentials.
func Dial(address string, tlsConfig *tls.Config) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		address,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", address, err)
	}
	return conn, nil
}
