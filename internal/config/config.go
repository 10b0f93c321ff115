// Package config resolves the gateway's runtime configuration from CLI
// flags with environment-variable fallback, per spec.md §6's option table.
// There is no configuration file: every value is either a flag, its
// matching env var, or a documented default — grounded on the teacher's
// agent/internal/config package for the apply-defaults-then-validate-all
// shape, adapted from YAML-file parsing to flag/env resolution since
// spec.md §6 specifies CLI flags and env vars, not a config file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

// Role selects which of the two gateway roles a process runs as.
type Role string

const (
	RoleInway  Role = "inway"
	RoleOutway Role = "outway"
)

// ErrUnknownRole is returned by Parse when the role (the subcommand
// argument in cmd/gateway) is neither "inway" nor "outway".
var ErrUnknownRole = errors.New("config: unknown role, expected \"inway\" or \"outway\"")

// TLSPaths is the set of PEM file paths for one certificate pair.
type TLSPaths struct {
	RootCert string
	Cert     string
	Key      string
}

// Config is the fully resolved configuration for one gateway process.
type Config struct {
	Role Role

	// Internal is the TLS pair used for RPC to the management API
	// (TLS_ROOT_CERT / TLS_CERT / TLS_KEY).
	Internal TLSPaths
	// Organization is the TLS pair used for mesh traffic: RPC to the
	// directory, the inway listener, and the outway's outbound client
	// (TLS_NLX_ROOT_CERT / TLS_ORG_CERT / TLS_ORG_KEY).
	Organization TLSPaths

	DirectoryAddress     string
	ManagementAPIAddress string

	Name          string // INWAY_NAME or OUTWAY_NAME
	ListenAddress string
	SelfAddress   string // inway only

	MetricsAddress string
}

// Parse builds a Config for role from args (normally os.Args[2:], after the
// role subcommand has been consumed), seeding each flag's default from its
// environment variable per spec.md §6's Env column.
func Parse(role Role, args []string) (*Config, error) {
	if role != RoleInway && role != RoleOutway {
		return nil, ErrUnknownRole
	}

	fs := flag.NewFlagSet(string(role), flag.ContinueOnError)
	cfg := &Config{Role: role}

	fs.StringVar(&cfg.Internal.RootCert, "tls-root-cert", envOr("TLS_ROOT_CERT", ""), "internal CA PEM path")
	fs.StringVar(&cfg.Internal.Cert, "tls-cert", envOr("TLS_CERT", ""), "internal client cert PEM path")
	fs.StringVar(&cfg.Internal.Key, "tls-key", envOr("TLS_KEY", ""), "internal client key PEM path")

	fs.StringVar(&cfg.Organization.RootCert, "tls-nlx-root-cert", envOr("TLS_NLX_ROOT_CERT", ""), "mesh CA PEM path")
	fs.StringVar(&cfg.Organization.Cert, "tls-org-cert", envOr("TLS_ORG_CERT", ""), "org cert PEM path")
	fs.StringVar(&cfg.Organization.Key, "tls-org-key", envOr("TLS_ORG_KEY", ""), "org key PEM path")

	fs.StringVar(&cfg.DirectoryAddress, "directory-address", envOr("DIRECTORY_ADDRESS", ""), "directory gRPC address")
	fs.StringVar(&cfg.ManagementAPIAddress, "management-api-address", envOr("MANAGEMENT_API_ADDRESS", ""), "management API gRPC address")

	nameEnv := "INWAY_NAME"
	if role == RoleOutway {
		nameEnv = "OUTWAY_NAME"
	}
	fs.StringVar(&cfg.Name, "name", envOr(nameEnv, ""), "identity string")

	fs.StringVar(&cfg.ListenAddress, "listen-address", envOr("LISTEN_ADDRESS", ""), "host:port to listen on")
	fs.StringVar(&cfg.SelfAddress, "self-address", envOr("SELF_ADDRESS", ""), "externally reachable URL (inway only)")
	fs.StringVar(&cfg.MetricsAddress, "metrics-address", envOr("METRICS_ADDRESS", "127.0.0.1:9090"), "Prometheus metrics listen address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, fmt.Errorf("invalid configuration:\n  - %s", strings.Join(msgs, "\n  - "))
	}

	return cfg, nil
}

// Validate returns every semantic problem with cfg, empty when valid.
func (cfg *Config) Validate() []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.Internal.RootCert == "" {
		add("tls-root-cert must not be empty")
	}
	if cfg.Internal.Cert == "" {
		add("tls-cert must not be empty")
	}
	if cfg.Internal.Key == "" {
		add("tls-key must not be empty")
	}
	if cfg.Organization.RootCert == "" {
		add("tls-nlx-root-cert must not be empty")
	}
	if cfg.Organization.Cert == "" {
		add("tls-org-cert must not be empty")
	}
	if cfg.Organization.Key == "" {
		add("tls-org-key must not be empty")
	}
	if cfg.DirectoryAddress == "" {
		add("directory-address must not be empty")
	}
	if cfg.ManagementAPIAddress == "" {
		add("management-api-address must not be empty")
	}
	if cfg.Name == "" {
		add("name must not be empty")
	}
	if cfg.ListenAddress == "" {
		add("listen-address must not be empty")
	}
	if cfg.Role == RoleInway && cfg.SelfAddress == "" {
		add("self-address must not be empty for the inway role")
	}

	return errs
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
