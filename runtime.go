//go:build android && cgo

package main

import (
	"sync"

	"mihomo_vpn_binding/api"
	"mihomo_vpn_binding/contract"
	"mihomo_vpn_binding/core"
	"mihomo_vpn_binding/service"
)

var (
	runtimeOnce   sync.Once
	runtimeCore   *core.Core
	runtimeSvc    contract.Service
	runtimeRouter *api.Dispatcher
)

type runtimeEmitter struct{}

// Emit forwards session events, logs and stats to the host listener callback.
func (runtimeEmitter) Emit(message contract.Message) {
	sendMessage(message)
}

// ensureRuntime initializes the singleton Service and Dispatcher used by exported symbols.
func ensureRuntime() {
	runtimeOnce.Do(func() {
		runtimeCore = core.New(core.Options{
			Emitter: runtimeEmitter{},
			Protect: protect,
		})
		runtimeSvc = service.New(service.Options{
			Core:     runtimeCore,
			Platform: hostPlatform{},
			Emitter:  runtimeEmitter{},
			Runtime:  service.DefaultRuntime(),
		})
		runtimeRouter = api.New(runtimeSvc)
	})
}

// getService returns the singleton contract.Service.
func getService() contract.Service {
	ensureRuntime()
	return runtimeSvc
}

// getCore returns the singleton native core for the packet exports.
func getCore() *core.Core {
	ensureRuntime()
	return runtimeCore
}

// getDispatcher returns the singleton API dispatcher (method routing).
func getDispatcher() *api.Dispatcher {
	ensureRuntime()
	return runtimeRouter
}
