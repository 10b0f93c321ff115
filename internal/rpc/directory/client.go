// Package directory is a thin client for the directory's gRPC service, as
// described opaquely by spec.md §6. See the management package's doc
// comment for why a JSON-coded *grpc.ClientConn stands in for
// protoc-generated types here.
package directory

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

const (
	methodGetVersion     = "/nlx.directory.Directory/GetVersion"
	methodRegisterInway  = "/nlx.directory.Directory/RegisterInway"
	methodRegisterOutway = "/nlx.directory.Directory/RegisterOutway"
	methodListServices   = "/nlx.directory.Directory/ListServices"
)

// Version is the response body of GetVersion.
type Version struct {
	Version string `json:"version"`
}

// Costs mirrors spec.md §3's cost triple.
type Costs struct {
	OneTime int64 `json:"one_time"`
	Monthly int64 `json:"monthly"`
	Request int64 `json:"request"`
}

// RegisterInwayService is one entry of RegisterInwayRequest.Services.
type RegisterInwayService struct {
	Name             string `json:"name"`
	DocumentationURL string `json:"documentation_url"`
	Costs            Costs  `json:"costs"`
}

// RegisterInwayRequest is the request body of the directory's
// RegisterInway RPC (distinct in shape from the management API's
// RegisterInway — see spec.md §4.2).
type RegisterInwayRequest struct {
	InwayAddress              string                 `json:"inway_address"`
	Services                  []RegisterInwayService `json:"services"`
	InwayName                 string                 `json:"inway_name"`
	IsOrganizationInway       bool                   `json:"is_organization_inway"`
	ManagementAPIProxyAddress string                 `json:"management_api_proxy_address"`
}

// RegisterOutwayRequest is the request body of the directory's
// RegisterOutway RPC.
type RegisterOutwayRequest struct {
	Name string `json:"name"`
}

// ListServicesRequest is the (empty) request body of ListServices.
type ListServicesRequest struct{}

// Inway is one advertising inway of a ListServicesResponse service.
type Inway struct {
	Address string `json:"address"`
	State   int    `json:"state"`
}

// Organization identifies the owner of a ListServicesResponse service.
type Organization struct {
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`
}

// Service is one entry of ListServicesResponse.Services.
type Service struct {
	Name                 string       `json:"name"`
	DocumentationURL     string       `json:"documentation_url"`
	APISpecificationType string       `json:"api_specification_type"`
	Internal             bool         `json:"internal"`
	PublicSupportContact string       `json:"public_support_contact"`
	Inways               []Inway      `json:"inways"`
	Costs                Costs        `json:"costs"`
	Organization         Organization `json:"organization"`
}

// ListServicesResponse is the response body of ListServices.
type ListServicesResponse struct {
	Services []Service `json:"services"`
}

// Ack is the directory's RegisterInway response, carrying an error string
// when registration was rejected.
type Ack struct {
	Error string `json:"error"`
}

// Client wraps a *grpc.ClientConn already dialed against the directory
// with the organization TLS pair.
type Client struct {
	conn *grpc.ClientConn
}

// New wraps conn. The caller owns conn's lifecycle.
func New(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// GetVersion fetches the directory's reported version.
func (c *Client) GetVersion(ctx context.Context) (*Version, error) {
	var resp Version
	if err := c.conn.Invoke(ctx, methodGetVersion, &struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("directory: GetVersion: %w", err)
	}
	return &resp, nil
}

// RegisterInway announces this inway's services to the directory.
func (c *Client) RegisterInway(ctx context.Context, req *RegisterInwayRequest) (*Ack, error) {
	var resp Ack
	if err := c.conn.Invoke(ctx, methodRegisterInway, req, &resp); err != nil {
		return nil, fmt.Errorf("directory: RegisterInway: %w", err)
	}
	if resp.Error != "" {
		return &resp, fmt.Errorf("directory: RegisterInway rejected: %s", resp.Error)
	}
	return &resp, nil
}

// RegisterOutway announces this outway to the directory.
func (c *Client) RegisterOutway(ctx context.Context, req *RegisterOutwayRequest) error {
	var resp Ack
	if err := c.conn.Invoke(ctx, methodRegisterOutway, req, &resp); err != nil {
		return fmt.Errorf("directory: RegisterOutway: %w", err)
	}
	return nil
}

// ListServices fetches every service known to the directory.
func (c *Client) ListServices(ctx context.Context, req *ListServicesRequest) (*ListServicesResponse, error) {
	var resp ListServicesResponse
	if err := c.conn.Invoke(ctx, methodListServices, req, &resp); err != nil {
		return nil, fmt.Errorf("directory: ListServices: %w", err)
	}
	return &resp, nil
}
