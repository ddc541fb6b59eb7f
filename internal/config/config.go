// Package config defines the application's single Config struct and
// the cobra/pflag/viper wiring described by SPEC_FULL.md §6/§11: one
// binary, flags readable from IBTOP_-prefixed environment variables,
// validated once after cobra parses the command line. Grounded on
// linkerd-linkerd2 cli/cmd/root.go's PersistentFlags()/PersistentPreRunE
// pattern, generalised from that package-level var style to an
// injected struct per §9's "no global mutable state" note.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServiceType selects the transport backend, per §6's --service-type.
type ServiceType string

const (
	ServiceTypeIBMad ServiceType = "ibmad"
	ServiceTypeTest  ServiceType = "test"
)

// Config holds every CLI/env-configurable parameter of §6. It is
// populated once, after cobra parses flags, and never mutated again.
type Config struct {
	HCA            string
	PKey           uint32
	Threads        int
	ServiceType    ServiceType
	UpdateInterval int
	TimeoutMS      uint32
	Retries        uint32
	IncludeHCAs    bool
	ScopeFile      string
	Verbose        bool
	Tracing        bool
}

const envPrefix = "IBTOP"

// BindFlags registers every §6 flag on cmd's persistent flag set and
// binds viper to the same set with the IBTOP_ environment prefix.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.String("hca", "", "local host-adapter device name")
	flags.Uint32("pkey", 0, "partition key for privileged queries")
	flags.Int("threads", 16, "counter worker pool size")
	flags.String("service-type", string(ServiceTypeIBMad), `transport backend: "ibmad" or "test"`)
	flags.Int("update-interval", 2, "auto-update cadence in tick-wraps")
	flags.Uint32("timeout", 250, "management-datagram timeout in milliseconds")
	flags.Uint32("retries", 2, "management-datagram retry count")
	flags.Bool("include-hcas", false, "list CA nodes in the node table")
	flags.String("scope-file", "", "static node set in place of discovery")
	flags.Bool("verbose", false, "enable debug logging")
	flags.Bool("tracing", false, "enable caller-annotated logging")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)
}

// FromViper builds a Config from a viper instance already bound to a
// parsed flag set via BindFlags.
func FromViper(v *viper.Viper) Config {
	return Config{
		HCA:            v.GetString("hca"),
		PKey:           v.GetUint32("pkey"),
		Threads:        v.GetInt("threads"),
		ServiceType:    ServiceType(v.GetString("service-type")),
		UpdateInterval: v.GetInt("update-interval"),
		TimeoutMS:      v.GetUint32("timeout"),
		Retries:        v.GetUint32("retries"),
		IncludeHCAs:    v.GetBool("include-hcas"),
		ScopeFile:      v.GetString("scope-file"),
		Verbose:        v.GetBool("verbose"),
		Tracing:        v.GetBool("tracing"),
	}
}

// Validate checks the §7 "Configuration error" conditions.
func Validate(c Config) error {
	switch c.ServiceType {
	case ServiceTypeIBMad, ServiceTypeTest:
	default:
		return fmt.Errorf("unknown --service-type %q: must be %q or %q", c.ServiceType, ServiceTypeIBMad, ServiceTypeTest)
	}

	if c.ServiceType == ServiceTypeIBMad && c.HCA == "" && c.ScopeFile == "" {
		return fmt.Errorf("--hca is required when --service-type=%s and --scope-file is not set", ServiceTypeIBMad)
	}

	if c.Threads <= 0 {
		return fmt.Errorf("--threads must be positive, got %d", c.Threads)
	}

	if c.UpdateInterval <= 0 {
		return fmt.Errorf("--update-interval must be positive, got %d", c.UpdateInterval)
	}

	return nil
}
