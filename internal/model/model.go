// Package model defines the configuration snapshots exchanged between the
// poller, the routing table, and the reverse proxy. Types here are plain
// data: no I/O, no locking. Hashing is content-based and order-independent
// for the top-level maps so that repeated polls of equivalent data never
// trigger a spurious publish.
package model

import (
	"hash/fnv"
	"sort"
	"strings"
)

// InwayService is a single service advertised by an inway, as returned by
// the management API's GetInwayConfig RPC.
type InwayService struct {
	Name                 string
	EndpointURL          string
	Internal             bool
	DocumentationURL     string
	TechSupportContact   string
	PublicSupportContact string
	OneTimeCosts         int64
	MonthlyCosts         int64
	RequestCosts         int64
}

// InwayConfig is the mapping of service name to InwayService published by
// the inway poller. It replaces the routing table wholesale on every
// successful, changed poll.
type InwayConfig struct {
	Services map[string]InwayService
}

// Hash returns a 64-bit content hash that is invariant under permutation of
// the underlying map's iteration order. Two InwayConfig values with the same
// services (regardless of map insertion order) hash identically.
func (c InwayConfig) Hash() uint64 {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	h := fnv.New64a()
	for _, name := range names {
		s := c.Services[name]
		writeString(h, s.Name)
		writeString(h, s.EndpointURL)
		writeBool(h, s.Internal)
		writeString(h, s.DocumentationURL)
		writeString(h, s.TechSupportContact)
		writeString(h, s.PublicSupportContact)
		writeInt(h, s.OneTimeCosts)
		writeInt(h, s.MonthlyCosts)
		writeInt(h, s.RequestCosts)
	}
	return h.Sum64()
}

// DirectoryInwayState is the liveness state of a directory-advertised inway
// endpoint, as reported by the directory's ListServices RPC.
type DirectoryInwayState int

const (
	DirectoryInwayUnknown DirectoryInwayState = iota
	DirectoryInwayUp
	DirectoryInwayDown
)

// DirectoryInway is one inway endpoint advertising a DirectoryService.
// Address is normalized: it always has a scheme and a trailing slash (see
// NormalizeAddress).
type DirectoryInway struct {
	Address string
	State   DirectoryInwayState
}

// Costs mirrors the three integer cost fields carried on both InwayService
// and DirectoryService.
type Costs struct {
	OneTime int64
	Monthly int64
	Request int64
}

// Organization identifies the organization that owns a DirectoryService.
type Organization struct {
	Name         string
	SerialNumber string
}

// DirectoryService is a service as seen through the directory's
// ListServices RPC: it may have zero or more advertising inways.
type DirectoryService struct {
	Name                 string
	DocumentationURL     string
	APISpecificationType string
	Internal             bool
	PublicSupportContact string
	Inways               []DirectoryInway
	Costs                Costs
	Organization         Organization
}

// OutwayConfig maps an organization's serial number to the services that
// organization exposes, as seen by the outway poller.
type OutwayConfig struct {
	Services map[string][]DirectoryService
}

// Hash returns a 64-bit content hash, order-independent over the top-level
// map. Each organization's service list, and each service's inway list, is
// hashed in slice order.
func (c OutwayConfig) Hash() uint64 {
	serials := make([]string, 0, len(c.Services))
	for serial := range c.Services {
		serials = append(serials, serial)
	}
	sort.Strings(serials)

	h := fnv.New64a()
	for _, serial := range serials {
		writeString(h, serial)
		for _, svc := range c.Services[serial] {
			writeString(h, svc.Name)
			writeString(h, svc.DocumentationURL)
			writeString(h, svc.APISpecificationType)
			writeBool(h, svc.Internal)
			writeString(h, svc.PublicSupportContact)
			writeInt(h, svc.Costs.OneTime)
			writeInt(h, svc.Costs.Monthly)
			writeInt(h, svc.Costs.Request)
			writeString(h, svc.Organization.Name)
			writeString(h, svc.Organization.SerialNumber)
			for _, inway := range svc.Inways {
				writeString(h, inway.Address)
				writeInt(h, int64(inway.State))
			}
		}
	}
	return h.Sum64()
}

// NormalizeAddress ensures addr is a URL suitable for path-joining: it gets
// an "https://" scheme prepended when it has none, and a trailing slash
// appended when it lacks one. Normalization is idempotent.
func NormalizeAddress(addr string) string {
	if !strings.Contains(addr, "://") {
		addr = "https://" + addr
	}
	if !strings.HasSuffix(addr, "/") {
		addr += "/"
	}
	return addr
}

func writeString(h interface{ Write([]byte) (int, error) }, s string) {
	_, _ = h.Write([]byte{0}) // field separator so "ab","c" != "a","bc"
	_, _ = h.Write([]byte(s))
}

func writeBool(h interface{ Write([]byte) (int, error) }, b bool) {
	if b {
		_, _ = h.Write([]byte{1})
		return
	}
	_, _ = h.Write([]byte{0})
}

func writeInt(h interface{ Write([]byte) (int, error) }, v int64) {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
	_, _ = h.Write(buf[:])
}
