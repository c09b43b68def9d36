package core

import (
	"errors"
	"net"
	"net/netip"
	"strings"
	"syscall"
	"time"

	"mihomo_vpn_binding/contract"

	"github.com/metacubex/mihomo/component/dialer"
	"github.com/metacubex/mihomo/constant"
	LC "github.com/metacubex/mihomo/listener/config"
	"github.com/metacubex/mihomo/listener/sing_tun"
	"github.com/metacubex/mihomo/log"
	"github.com/metacubex/mihomo/tunnel"
	"golang.org/x/sys/unix"
)

// buildTunConfig builds a mihomo TUN config around an already established VPN file descriptor.
func buildTunConfig(params contract.TunnelParams) (LC.Tun, error) {
	if params.FD <= 0 {
		return LC.Tun{}, errors.New("invalid TUN file descriptor")
	}
	if params.MTU <= 0 {
		return LC.Tun{}, errors.New("invalid MTU")
	}

	tunStack, ok := constant.StackTypeMapping[strings.ToLower(params.Stack)]
	if !ok {
		tunStack = constant.TunSystem
	}

	var prefix4 []netip.Prefix
	var prefix6 []netip.Prefix
	for _, a := range params.Addresses {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(a)
		if err != nil {
			return LC.Tun{}, err
		}
		if prefix.Addr().Is4() {
			prefix4 = append(prefix4, prefix)
		} else {
			prefix6 = append(prefix6, prefix)
		}
	}
	if len(prefix4) == 0 && len(prefix6) == 0 {
		return LC.Tun{}, errors.New("no interface address")
	}

	var dnsHijack []string
	for _, d := range params.DNS {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		dnsHijack = append(dnsHijack, net.JoinHostPort(d, "53"))
	}

	device := params.Name
	if device == "" {
		device = "Mihomo"
	}

	return LC.Tun{
		Enable:              true,
		Device:              device,
		Stack:               tunStack,
		DNSHijack:           dnsHijack,
		AutoRoute:           false,
		AutoDetectInterface: false,
		Inet4Address:        prefix4,
		Inet6Address:        prefix6,
		MTU:                 uint32(params.MTU),
		FileDescriptor:      params.FD,
		IncludePackage:      append([]string(nil), params.IncludePackages...),
	}, nil
}

// CreateTunnel validates params and reserves the tunnel. A second create
// without an intervening stop is rejected with CodeAlreadyExists.
func (c *Core) CreateTunnel(params contract.TunnelParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.created != nil {
		log.Warnln("[TUN] create rejected: %s already exists", c.created.params.Name)
		return &CodeError{Op: "create", code: CodeAlreadyExists}
	}

	if _, err := buildTunConfig(params); err != nil {
		log.Errorln("[TUN] create failed: %s", err.Error())
		return &CodeError{Op: "create", code: CodeFailed, Err: err}
	}

	c.created = &tunnelState{params: params}
	c.resetCounters()
	log.Infoln("[TUN] created: %s (fd %d, mtu %d)", params.Name, params.FD, params.MTU)
	return nil
}

// StartTunnel hands the created tunnel to the mihomo TUN listener.
func (c *Core) StartTunnel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.created == nil {
		return &CodeError{Op: "start", code: CodeNotCreated}
	}
	if c.listener != nil {
		return nil
	}

	tunConf, err := buildTunConfig(c.created.params)
	if err != nil {
		return &CodeError{Op: "start", code: CodeFailed, Err: err}
	}

	// The listener closes its device on shutdown; the interface owner keeps the original fd.
	dupFD, err := unix.Dup(tunConf.FileDescriptor)
	if err != nil {
		log.Errorln("[TUN] dup fd %d: %s", tunConf.FileDescriptor, err.Error())
		return &CodeError{Op: "start", code: CodeFailed, Err: err}
	}
	tunConf.FileDescriptor = dupFD

	c.installSocketHookLocked()

	listener, err := sing_tun.New(tunConf, tunnel.Tunnel)
	if err != nil {
		c.restoreSocketHookLocked()
		_ = unix.Close(dupFD)
		log.Errorln("[TUN] start failed: %s", err.Error())
		return &CodeError{Op: "start", code: CodeFailed, Err: err}
	}

	c.listener = listener
	c.startedAt.Store(time.Now().Unix())
	log.Infoln("[TUN] started: %s", listener.Address())
	return nil
}

// StopTunnel closes the listener and forgets the created tunnel. It is safe
// to call in any state; with nothing to stop it reports CodeNotCreated.
func (c *Core) StopTunnel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.created == nil && c.listener == nil {
		return &CodeError{Op: "stop", code: CodeNotCreated}
	}

	var closeErr error
	if c.listener != nil {
		closeErr = c.listener.Close()
		c.listener = nil
	}
	c.restoreSocketHookLocked()
	c.created = nil

	if closeErr != nil {
		log.Warnln("[TUN] close listener: %s", closeErr.Error())
		return &CodeError{Op: "stop", code: CodeFailed, Err: closeErr}
	}
	log.Infoln("[TUN] stopped")
	return nil
}

// installSocketHookLocked routes every outbound socket through the host protector (requires mu).
func (c *Core) installSocketHookLocked() {
	if c.protect == nil {
		return
	}
	c.previousSockHook = dialer.DefaultSocketHook
	protect := c.protect
	dialer.DefaultSocketHook = func(network, address string, conn syscall.RawConn) error {
		return conn.Control(func(fd uintptr) {
			protect(int(fd))
		})
	}
}

// restoreSocketHookLocked undoes installSocketHookLocked (requires mu).
func (c *Core) restoreSocketHookLocked() {
	if c.protect == nil {
		return
	}
	dialer.DefaultSocketHook = c.previousSockHook
	c.previousSockHook = nil
}
