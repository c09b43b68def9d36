// Package session sequences the native core through create, start and stop and
// reports each transition to the host exactly once.
//
// State machine:
//
//	idle     -> starting (start with an interface attached)
//	starting -> running  (create and start succeeded)
//	starting -> idle     (create or start failed; start failure runs a compensating stop)
//	running  -> stopping -> idle
//
// Error is never stored: failures are reported and the controller is back in
// idle, so a retry is always possible. A create that outlives its deadline is
// stopped once it lands, before the next create.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mihomo_vpn_binding/contract"
	"mihomo_vpn_binding/vpn"

	"github.com/metacubex/mihomo/log"
)

var (
	ErrNoInterface      = errors.New("no interface attached")
	ErrCoreCreateFailed = errors.New("core create failed")
	ErrCoreStartFailed  = errors.New("core start failed")
	ErrCoreStopFailed   = errors.New("core stop failed")
	ErrCallTimeout      = errors.New("core call timed out")
	ErrBusy             = errors.New("session is not idle")
)

// InterfaceReleaser gives an attached interface back to its owner on disposal.
type InterfaceReleaser interface {
	ReleaseInterface(h *vpn.Handle)
}

type Options struct {
	// CallTimeout bounds every create/start/stop call. Zero waits forever.
	CallTimeout time.Duration
	// Stack is passed to the core as the TUN stack name.
	Stack string
}

type Controller struct {
	core     contract.NativeCore
	releaser InterfaceReleaser
	emitter  contract.Emitter
	opts     Options

	// mu serializes commands; state is readable without it.
	mu     sync.Mutex
	state  atomic.Int32
	handle *vpn.Handle

	// lateCreate delivers the result of a create abandoned at its deadline.
	lateCreate <-chan error
}

func New(core contract.NativeCore, releaser InterfaceReleaser, emitter contract.Emitter, opts Options) *Controller {
	c := &Controller{
		core:     core,
		releaser: releaser,
		emitter:  emitter,
		opts:     opts,
	}
	c.state.Store(int32(idle))
	return c
}

// Attach records the interface used by the next Start. A previously attached
// interface is released unless it is the same handle. Attaching is refused
// while the session is not idle.
func (c *Controller) Attach(h *vpn.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state(c.state.Load()) != idle {
		return ErrBusy
	}
	if c.handle != nil && c.handle != h {
		c.releaser.ReleaseInterface(c.handle)
	}
	c.handle = h
	return nil
}

// Configure replaces the options used by later calls. It is refused while
// the session is not idle.
func (c *Controller) Configure(opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state(c.state.Load()) != idle {
		return ErrBusy
	}
	c.opts = opts
	return nil
}

// Handle returns the attached interface, if any.
func (c *Controller) Handle() *vpn.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

func (c *Controller) State() contract.SessionState {
	return state(c.state.Load()).public()
}

func (c *Controller) IsRunning() bool {
	return state(c.state.Load()) == running
}

// Start brings the core up on the attached interface. It returns nil without
// touching the core when the session is already running.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsRunning() {
		log.Debugln("[SESSION] start ignored: already running")
		return nil
	}
	if c.handle.Released() {
		return ErrNoInterface
	}

	if err := c.settleCreateLocked(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrCoreCreateFailed, err)
		log.Errorln("[SESSION] %s", err.Error())
		c.emitError(err)
		return err
	}

	c.set(starting)
	params := c.tunnelParams()

	if err := c.call(ctx, func() error { return c.core.CreateTunnel(params) }); err != nil {
		var abandoned *abandonedCall
		if errors.As(err, &abandoned) {
			c.lateCreate = abandoned.result
		}
		c.set(idle)
		err = fmt.Errorf("%w: %w", ErrCoreCreateFailed, err)
		log.Errorln("[SESSION] %s", err.Error())
		c.emitError(err)
		return err
	}

	if err := c.call(ctx, c.core.StartTunnel); err != nil {
		// The caller's context may already be done; the compensating stop still runs.
		if stopErr := c.call(context.Background(), c.core.StopTunnel); stopErr != nil {
			log.Warnln("[SESSION] %s: %s", ErrCoreStopFailed.Error(), stopErr.Error())
		}
		c.set(idle)
		err = fmt.Errorf("%w: %w", ErrCoreStartFailed, err)
		log.Errorln("[SESSION] %s", err.Error())
		c.emitError(err)
		return err
	}

	c.set(running)
	log.Infoln("[SESSION] started on %s", params.Name)
	c.emit(contract.Message{Type: contract.StartedMessage})
	return nil
}

// Stop stops a running session. Core failures are logged and the session
// still ends idle. Stopping an idle session does nothing.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(ctx)
}

func (c *Controller) stopLocked(ctx context.Context) {
	if !c.IsRunning() {
		return
	}

	c.set(stopping)
	if err := c.call(ctx, c.core.StopTunnel); err != nil {
		log.Warnln("[SESSION] %s: %s", ErrCoreStopFailed.Error(), err.Error())
	}
	c.set(idle)
	log.Infoln("[SESSION] stopped")
	c.emit(contract.Message{Type: contract.StoppedMessage})
}

// Dispose stops the session if needed and releases the attached interface.
// It always runs to completion and may be called more than once.
func (c *Controller) Dispose(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked(ctx)
	c.reapCreateLocked()

	if c.handle != nil {
		c.releaser.ReleaseInterface(c.handle)
		c.handle = nil
	}
	c.set(idle)
}

// Status queries the core and decodes leniently.
func (c *Controller) Status() contract.StatusSnapshot {
	return DecodeStatus(c.core.GetStatus())
}

// Stats queries the core and decodes leniently.
func (c *Controller) Stats() contract.StatsSnapshot {
	return DecodeStats(c.core.GetStats())
}

func (c *Controller) ResetStats() error {
	return c.core.ResetStats()
}

func (c *Controller) tunnelParams() contract.TunnelParams {
	cfg := c.handle.Config()
	return contract.TunnelParams{
		Name:            cfg.Name,
		FD:              c.handle.FD(),
		Addresses:       []string{cfg.LocalAddress},
		DNS:             cfg.DNSServers,
		MTU:             cfg.MTU,
		Stack:           c.opts.Stack,
		IncludePackages: cfg.AllowedApplications,
	}
}

// settleCreateLocked waits for an abandoned create and stops the tunnel it
// produced, so the next create starts from an empty core.
func (c *Controller) settleCreateLocked(ctx context.Context) error {
	if c.lateCreate == nil {
		return nil
	}
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	select {
	case err := <-c.lateCreate:
		c.lateCreate = nil
		if err == nil {
			c.stopLateTunnel()
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: previous create still running: %v", ErrCallTimeout, ctx.Err())
	}
}

// reapCreateLocked stops the tunnel of an abandoned create that has finished.
// A create still running is left for the next Start to settle.
func (c *Controller) reapCreateLocked() {
	if c.lateCreate == nil {
		return
	}
	select {
	case err := <-c.lateCreate:
		c.lateCreate = nil
		if err == nil {
			c.stopLateTunnel()
		}
	default:
	}
}

func (c *Controller) stopLateTunnel() {
	log.Warnln("[SESSION] stopping tunnel left by a timed-out create")
	if err := guard(c.core.StopTunnel); err != nil {
		log.Warnln("[SESSION] %s: %s", ErrCoreStopFailed.Error(), err.Error())
	}
}

// abandonedCall is returned by call when the deadline passes first; result
// receives fn's outcome once it finishes.
type abandonedCall struct {
	err    error
	result <-chan error
}

func (e *abandonedCall) Error() string { return e.err.Error() }

func (e *abandonedCall) Unwrap() error { return e.err }

// call runs fn, bounded by ctx and CallTimeout. A call that outlives its
// deadline keeps running and reports through an *abandonedCall error.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}
	if ctx.Done() == nil {
		return guard(fn)
	}

	done := make(chan error, 1)
	go func() {
		done <- guard(fn)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &abandonedCall{
			err:    fmt.Errorf("%w: %v", ErrCallTimeout, ctx.Err()),
			result: done,
		}
	}
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (c *Controller) set(s state) {
	c.state.Store(int32(s))
}

func (c *Controller) emitError(err error) {
	c.emit(contract.Message{Type: contract.ErrorMessage, Data: err.Error()})
}

func (c *Controller) emit(message contract.Message) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(message)
}
