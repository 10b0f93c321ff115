// Package management is a thin client for the management API's gRPC
// service, as described opaquely by spec.md §6. The service's real
// request/response wire types are an external collaborator's concern; the
// structs here mirror only the field shapes spec.md names, carried over
// the JSON codec registered in internal/rpc.
package management

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

const (
	methodRegisterInway  = "/nlx.management.Management/RegisterInway"
	methodRegisterOutway = "/nlx.management.Management/RegisterOutway"
	methodGetInwayConfig = "/nlx.management.Management/GetInwayConfig"
)

// Inway is the request body of RegisterInway, per spec.md §4.2.
type Inway struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Hostname    string   `json:"hostname"`
	SelfAddress string   `json:"self_address"`
	Services    []string `json:"services"`
	IPAddress   string   `json:"ip_address"`
}

// RegisterOutwayRequest is the request body of RegisterOutway.
type RegisterOutwayRequest struct {
	Name            string `json:"name"`
	PublicKeyPEM    string `json:"public_key_pem"`
	Version         string `json:"version"`
	SelfAddressAPI  string `json:"self_address_api"`
}

// GetInwayConfigRequest is the request body of GetInwayConfig.
type GetInwayConfigRequest struct {
	Name string `json:"name"`
}

// ConfigService is one entry of GetInwayConfigResponse.Services.
type ConfigService struct {
	Name                 string `json:"name"`
	EndpointURL          string `json:"endpoint_url"`
	Internal             bool   `json:"internal"`
	DocumentationURL     string `json:"documentation_url"`
	TechSupportContact   string `json:"tech_support_contact"`
	PublicSupportContact string `json:"public_support_contact"`
	OneTimeCosts         int64  `json:"one_time_costs"`
	MonthlyCosts         int64  `json:"monthly_costs"`
	RequestCosts         int64  `json:"request_costs"`
}

// GetInwayConfigResponse is the response body of GetInwayConfig.
type GetInwayConfigResponse struct {
	Services []ConfigService `json:"services"`
}

// Ack is an empty success acknowledgement, returned by RPCs that carry no
// meaningful response payload.
type Ack struct{}

// Client wraps a *grpc.ClientConn already dialed against the management
// API with the appropriate internal TLS pair.
type Client struct {
	conn *grpc.ClientConn
}

// New wraps conn. The caller owns conn's lifecycle.
func New(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// RegisterInway registers this inway with the management API.
func (c *Client) RegisterInway(ctx context.Context, req *Inway) error {
	var resp Ack
	if err := c.conn.Invoke(ctx, methodRegisterInway, req, &resp); err != nil {
		return fmt.Errorf("management: RegisterInway: %w", err)
	}
	return nil
}

// RegisterOutway registers this outway with the management API.
func (c *Client) RegisterOutway(ctx context.Context, req *RegisterOutwayRequest) error {
	var resp Ack
	if err := c.conn.Invoke(ctx, methodRegisterOutway, req, &resp); err != nil {
		return fmt.Errorf("management: RegisterOutway: %w", err)
	}
	return nil
}

// GetInwayConfig fetches the configuration this inway should be serving.
func (c *Client) GetInwayConfig(ctx context.Context, req *GetInwayConfigRequest) (*GetInwayConfigResponse, error) {
	var resp GetInwayConfigResponse
	if err := c.conn.Invoke(ctx, methodGetInwayConfig, req, &resp); err != nil {
		return nil, fmt.Errorf("management: GetInwayConfig: %w", err)
	}
	return &resp, nil
}
