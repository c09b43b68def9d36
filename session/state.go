package session

import "mihomo_vpn_binding/contract"

type state int32

const (
	idle state = iota
	starting
	running
	stopping
)

func (s state) public() contract.SessionState {
	switch s {
	case idle:
		return contract.StateIdle
	case starting:
		return contract.StateStarting
	case running:
		return contract.StateRunning
	case stopping:
		return contract.StateStopping
	default:
		return contract.StateError
	}
}
