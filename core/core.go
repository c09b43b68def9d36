package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mihomo_vpn_binding/contract"

	"github.com/metacubex/mihomo/component/dialer"
	"github.com/metacubex/mihomo/listener/sing_tun"
)

// Status codes returned across the native boundary.
const (
	CodeOK            = 0
	CodeAlreadyExists = 1
	CodeNotCreated    = 2
	CodeFailed        = -1
)

// CodeError carries a non-zero native status code.
type CodeError struct {
	Op   string
	code int
	Err  error
}

func (e *CodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: code %d: %s", e.Op, e.code, e.Err.Error())
	}
	return fmt.Sprintf("%s: code %d", e.Op, e.code)
}

func (e *CodeError) Unwrap() error { return e.Err }

func (e *CodeError) Code() int { return e.code }

// Code maps err to a native status code.
func Code(err error) int {
	if err == nil {
		return CodeOK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return CodeFailed
}

type Options struct {
	Emitter contract.Emitter
	// Protect keeps sockets opened by the core out of the VPN. Optional.
	Protect func(fd int)
}

type tunnelState struct {
	params contract.TunnelParams
}

// Core is the mihomo-backed contract.NativeCore.
type Core struct {
	emitter contract.Emitter
	protect func(fd int)

	mu               sync.Mutex
	created          *tunnelState
	listener         *sing_tun.Listener
	previousSockHook dialer.SocketControl

	packetsIn  atomic.Uint64
	packetsOut atomic.Uint64
	bytesIn    atomic.Uint64
	bytesOut   atomic.Uint64
	startedAt  atomic.Int64

	logMu     sync.Mutex
	logStop   func()
	statsMu   sync.Mutex
	statsStop chan struct{}
	statsTick *time.Ticker
}

func New(opts Options) *Core {
	c := &Core{
		emitter: opts.Emitter,
		protect: opts.Protect,
	}
	c.startedAt.Store(time.Now().Unix())
	return c
}

// emitMessage emits an event to the host if an Emitter is set.
func (c *Core) emitMessage(message contract.Message) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(message)
}
