package vpn

import (
	"fmt"
	"net/netip"
	"strings"

	"mihomo_vpn_binding/contract"
)

const (
	DefaultSessionName  = "MihomoVPN"
	DefaultLocalAddress = "10.0.0.2/32"
	DefaultRoute        = "0.0.0.0/0"
	DefaultMTU          = 1500

	MinMTU = 576
	MaxMTU = 65535
)

var DefaultDNSServers = []string{"8.8.8.8", "1.1.1.1"}

// DefaultConfig returns the interface used when the host supplies none.
func DefaultConfig() contract.InterfaceConfig {
	return contract.InterfaceConfig{
		Name:         DefaultSessionName,
		LocalAddress: DefaultLocalAddress,
		Routes:       []string{DefaultRoute},
		DNSServers:   append([]string(nil), DefaultDNSServers...),
		MTU:          DefaultMTU,
	}
}

// WithDefaults fills zero fields of cfg from DefaultConfig. A nil cfg yields the defaults.
func WithDefaults(cfg *contract.InterfaceConfig) contract.InterfaceConfig {
	def := DefaultConfig()
	if cfg == nil {
		return def
	}

	out := cfg.Clone()
	if strings.TrimSpace(out.Name) == "" {
		out.Name = def.Name
	}
	if strings.TrimSpace(out.LocalAddress) == "" {
		out.LocalAddress = def.LocalAddress
	}
	if len(out.Routes) == 0 {
		out.Routes = def.Routes
	}
	if len(out.DNSServers) == 0 {
		out.DNSServers = def.DNSServers
	}
	if out.MTU == 0 {
		out.MTU = def.MTU
	}
	return out
}

// Validate reports the first reason the platform would refuse cfg.
func Validate(cfg contract.InterfaceConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: empty session name", ErrSystemRejected)
	}
	if _, err := netip.ParsePrefix(cfg.LocalAddress); err != nil {
		return fmt.Errorf("%w: local address %q: %v", ErrSystemRejected, cfg.LocalAddress, err)
	}
	for _, route := range cfg.Routes {
		if _, err := netip.ParsePrefix(route); err != nil {
			return fmt.Errorf("%w: route %q: %v", ErrSystemRejected, route, err)
		}
	}
	for _, dns := range cfg.DNSServers {
		if _, err := netip.ParseAddr(dns); err != nil {
			return fmt.Errorf("%w: dns server %q: %v", ErrSystemRejected, dns, err)
		}
	}
	if cfg.MTU < MinMTU || cfg.MTU > MaxMTU {
		return fmt.Errorf("%w: mtu %d out of range [%d, %d]", ErrSystemRejected, cfg.MTU, MinMTU, MaxMTU)
	}
	return nil
}
