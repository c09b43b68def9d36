// Package vpn obtains the OS VPN capability and owns the established interface.
package vpn

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"mihomo_vpn_binding/contract"

	"github.com/metacubex/mihomo/log"
)

var (
	ErrPermissionDenied = errors.New("vpn permission denied")
	ErrNotPermitted     = errors.New("vpn permission not granted")
	ErrSystemRejected   = errors.New("system rejected interface")
)

type Permission int

const (
	PermissionGranted Permission = iota
	PermissionPending
	PermissionFailed
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionPending:
		return "pending"
	default:
		return "failed"
	}
}

// Handle is an established interface. It is released at most once.
type Handle struct {
	fd     int
	config contract.InterfaceConfig

	once     sync.Once
	released atomic.Bool
}

// FD returns the interface file descriptor, or -1 once released.
func (h *Handle) FD() int {
	if h == nil || h.released.Load() {
		return -1
	}
	return h.fd
}

// Config returns a copy of the configuration the interface was built from.
func (h *Handle) Config() contract.InterfaceConfig {
	if h == nil {
		return contract.InterfaceConfig{}
	}
	return h.config.Clone()
}

func (h *Handle) Released() bool {
	return h == nil || h.released.Load()
}

type Manager struct {
	platform contract.Platform
	granted  atomic.Bool
}

func NewManager(platform contract.Platform) *Manager {
	return &Manager{platform: platform}
}

// RequestPermission returns PermissionGranted when the OS already allows the VPN,
// otherwise it starts the consent flow and returns PermissionPending. The caller
// retries EstablishInterface only after OnConsentResult(true).
func (m *Manager) RequestPermission() (Permission, error) {
	prepared, err := m.platform.Prepared()
	if err != nil {
		log.Errorln("[VPN] permission check failed: %s", err.Error())
		return PermissionFailed, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if prepared {
		m.granted.Store(true)
		return PermissionGranted, nil
	}

	if err := m.platform.RequestConsent(); err != nil {
		log.Errorln("[VPN] consent request failed: %s", err.Error())
		return PermissionFailed, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	log.Infoln("[VPN] waiting for user consent")
	return PermissionPending, nil
}

// OnConsentResult records the outcome of the OS consent dialog.
func (m *Manager) OnConsentResult(granted bool) {
	m.granted.Store(granted)
	if granted {
		log.Infoln("[VPN] consent granted")
	} else {
		log.Warnln("[VPN] consent refused")
	}
}

// EstablishInterface builds the interface from cfg, or from the defaults when cfg is nil.
func (m *Manager) EstablishInterface(cfg *contract.InterfaceConfig) (*Handle, error) {
	if !m.granted.Load() {
		return nil, ErrNotPermitted
	}

	conf := WithDefaults(cfg)
	if err := Validate(conf); err != nil {
		log.Errorln("[VPN] invalid interface config: %s", err.Error())
		return nil, err
	}

	fd, err := m.platform.Establish(conf)
	if err != nil {
		log.Errorln("[VPN] establish failed: %s", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrSystemRejected, err)
	}
	if fd < 0 {
		return nil, fmt.Errorf("%w: invalid file descriptor %d", ErrSystemRejected, fd)
	}

	log.Infoln("[VPN] interface established: %s (fd %d)", conf.Name, fd)
	return &Handle{fd: fd, config: conf}, nil
}

// ReleaseInterface closes h. Nil and already released handles are ignored.
func (m *Manager) ReleaseInterface(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.released.Store(true)
		if err := m.platform.Close(h.fd); err != nil {
			log.Warnln("[VPN] close interface %s: %s", h.config.Name, err.Error())
			return
		}
		log.Infoln("[VPN] interface released: %s", h.config.Name)
	})
}
