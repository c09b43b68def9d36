// Package service puts the permission manager, the session controller and
// the mihomo core behind contract.Service.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"mihomo_vpn_binding/contract"
	"mihomo_vpn_binding/core"
	"mihomo_vpn_binding/options"
	"mihomo_vpn_binding/session"
	"mihomo_vpn_binding/vpn"

	"github.com/metacubex/mihomo/log"
)

// ErrNotInitialized is returned by calls that need Init first.
var ErrNotInitialized = errors.New("binding not initialized")

// Core is the native surface the service drives beyond contract.NativeCore.
type Core interface {
	contract.NativeCore
	StartLog()
	StopLog()
	StartStats(interval time.Duration)
	StopStats()
	Shutdown() bool
}

// Runtime groups the process-wide mihomo entry points.
type Runtime struct {
	EnsureLoaded func(homeDir string) error
	SetupConfig  func(payload []byte) string
	SetLogLevel  func(level string) bool
	Version      func() string
	ForceGC      func()
}

// DefaultRuntime is backed by package core.
func DefaultRuntime() Runtime {
	return Runtime{
		EnsureLoaded: core.EnsureLoaded,
		SetupConfig:  core.SetupConfig,
		SetLogLevel:  core.SetLogLevel,
		Version:      core.Version,
		ForceGC:      core.ForceGC,
	}
}

type Options struct {
	Core     Core
	Platform contract.Platform
	Emitter  contract.Emitter
	Runtime  Runtime
}

type Service struct {
	core    Core
	runtime Runtime
	manager *vpn.Manager
	session *session.Controller

	mu          sync.Mutex
	initialized bool
	opts        options.Options
}

var _ contract.Service = (*Service)(nil)

func New(opts Options) *Service {
	manager := vpn.NewManager(opts.Platform)
	defaults := options.Default()
	return &Service{
		core:    opts.Core,
		runtime: opts.Runtime,
		manager: manager,
		session: session.New(opts.Core, manager, opts.Emitter, session.Options{
			CallTimeout: defaults.CallTimeout,
			Stack:       defaults.Stack,
		}),
		opts: defaults,
	}
}

// Init loads the core from params.HomeDir and applies binding.yaml. It returns
// an empty string on success. Repeated calls reload the options file.
func (s *Service) Init(params contract.InitParams) string {
	homeDir := strings.TrimSpace(params.HomeDir)
	if err := s.runtime.EnsureLoaded(homeDir); err != nil {
		log.Errorln("[APP] init failed: %s", err.Error())
		return err.Error()
	}

	opts, err := options.Load(homeDir)
	if err != nil {
		log.Warnln("[APP] %s, using defaults", err.Error())
	}
	if !s.runtime.SetLogLevel(opts.LogLevel) {
		log.Warnln("[APP] unknown log level %q", opts.LogLevel)
	}
	if err := s.session.Configure(session.Options{CallTimeout: opts.CallTimeout, Stack: opts.Stack}); err != nil {
		log.Warnln("[APP] options not applied to the running session: %s", err.Error())
	}

	s.mu.Lock()
	s.initialized = true
	s.opts = opts
	s.mu.Unlock()

	log.Infoln("[APP] initialized: %s", homeDir)
	return ""
}

func (s *Service) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Service) RequestPermission() contract.PermissionResult {
	perm, err := s.manager.RequestPermission()
	result := contract.PermissionResult{Status: perm.String()}
	if err != nil {
		result.Reason = err.Error()
	}
	return result
}

func (s *Service) ConsentResult(granted bool) {
	s.manager.OnConsentResult(granted)
}

// EstablishInterface builds the interface and attaches it to the session.
// A nil cfg falls back to the interface from binding.yaml, then to the defaults.
func (s *Service) EstablishInterface(cfg *contract.InterfaceConfig) string {
	if cfg == nil {
		s.mu.Lock()
		if s.opts.Interface != nil {
			c := s.opts.Interface.Clone()
			cfg = &c
		}
		s.mu.Unlock()
	}

	h, err := s.manager.EstablishInterface(cfg)
	if err != nil {
		return err.Error()
	}
	if err := s.session.Attach(h); err != nil {
		s.manager.ReleaseInterface(h)
		return err.Error()
	}
	return ""
}

// ReleaseInterface stops the session if needed and gives the interface back.
func (s *Service) ReleaseInterface() {
	s.session.Dispose(context.Background())
}

// Start returns an empty string on success.
func (s *Service) Start() string {
	if !s.ready() {
		return ErrNotInitialized.Error()
	}
	if err := s.session.Start(context.Background()); err != nil {
		return err.Error()
	}
	return ""
}

func (s *Service) Stop() {
	s.session.Stop(context.Background())
}

// Dispose ends the session, releases the interface and stops stats reporting.
func (s *Service) Dispose() {
	s.session.Dispose(context.Background())
	s.core.StopStats()
}

func (s *Service) GetState() contract.SessionState {
	return s.session.State()
}

func (s *Service) GetStatus() contract.StatusSnapshot {
	return s.session.Status()
}

func (s *Service) GetStats() contract.StatsSnapshot {
	return s.session.Stats()
}

func (s *Service) ResetStats() bool {
	if err := s.session.ResetStats(); err != nil {
		log.Warnln("[APP] reset stats: %s", err.Error())
		return false
	}
	return true
}

func (s *Service) GetVersion() string {
	return s.runtime.Version()
}

// SetupConfig hands a proxy configuration to mihomo. It returns an empty
// string on success.
func (s *Service) SetupConfig(payload string) string {
	if !s.ready() {
		return ErrNotInitialized.Error()
	}
	return s.runtime.SetupConfig([]byte(payload))
}

func (s *Service) SetLogLevel(level string) bool {
	return s.runtime.SetLogLevel(level)
}

func (s *Service) LogMessage(level, message string) {
	s.core.LogMessage(level, message)
}

func (s *Service) StartLog() {
	s.core.StartLog()
}

func (s *Service) StopLog() {
	s.core.StopLog()
}

// ReadPacket reads one packet of at most limit bytes; limit <= 0 uses the
// interface MTU and limits above vpn.MaxMTU are clamped to it.
func (s *Service) ReadPacket(limit int) ([]byte, error) {
	if limit <= 0 {
		limit = s.session.Handle().Config().MTU
	}
	if limit <= 0 {
		limit = vpn.DefaultMTU
	}
	if limit > vpn.MaxMTU {
		limit = vpn.MaxMTU
	}
	buf := make([]byte, limit)
	n, err := s.core.ReadPacket(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (s *Service) WritePacket(packet []byte) (int, error) {
	return s.core.WritePacket(packet)
}

func (s *Service) StartStats(intervalMs int64) {
	s.core.StartStats(time.Duration(intervalMs) * time.Millisecond)
}

func (s *Service) StopStats() {
	s.core.StopStats()
}

func (s *Service) ForceGC() {
	s.runtime.ForceGC()
}

// Shutdown disposes the session and stops the core.
func (s *Service) Shutdown() bool {
	s.Dispose()
	return s.core.Shutdown()
}
