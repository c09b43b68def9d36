//go:build android && cgo

package main

import (
	"encoding/json"
	"fmt"

	"mihomo_vpn_binding/contract"

	"golang.org/x/sys/unix"
)

// hostPlatform reaches VpnService through the host bridge.
type hostPlatform struct{}

func (hostPlatform) Prepared() (bool, error) {
	prepared, err := vpnPrepared()
	if err != nil {
		return false, fmt.Errorf("vpn prepare: %w", err)
	}
	return prepared, nil
}

func (hostPlatform) RequestConsent() error {
	if err := vpnRequestConsent(); err != nil {
		return fmt.Errorf("vpn consent: %w", err)
	}
	return nil
}

func (hostPlatform) Establish(cfg contract.InterfaceConfig) (int, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return -1, err
	}
	fd, err := vpnEstablish(string(data))
	if err != nil {
		return -1, fmt.Errorf("vpn establish: %w", err)
	}
	return fd, nil
}

// Close closes a descriptor detached by the host in vpn_establish.
func (hostPlatform) Close(fd int) error {
	return unix.Close(fd)
}
