//go:build android && cgo

package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"encoding/json"
	"fmt"
	"unsafe"

	"mihomo_vpn_binding/contract"

	"github.com/metacubex/mihomo/log"
)

var (
	eventListenerSlot callbackSlot
	protectorSlot     callbackSlot
)

// invokeAction is the host entrypoint. It runs asynchronously and returns a JSON {id, method, data, code}.
// It uses recover to prevent panics from crashing the process.
//
//export invokeAction
func invokeAction(callback unsafe.Pointer, paramsChar *C.char) {
	params := takeCString(paramsChar)

	var action contract.Action
	if err := json.Unmarshal([]byte(params), &action); err != nil {
		failedResult(action, err.Error(), callback).send()
		return
	}

	go func(action contract.Action, callback unsafe.Pointer) {
		sent := false
		defer func() {
			if r := recover(); r != nil {
				log.Errorln("[APP] %s panicked: %v", action.Method, r)
				if !sent {
					failedResult(action, fmt.Sprintf("panic recovered: %v", r), callback).send()
				}
			}
		}()

		dispatched := getDispatcher().Dispatch(action)
		resp := dispatched.Response
		result := ActionResult{
			ID:       resp.ID,
			Method:   resp.Method,
			Data:     resp.Data,
			Code:     resp.Code,
			callback: callback,
		}
		result.send()
		sent = true
		if dispatched.AfterSend != nil {
			dispatched.AfterSend()
		}
	}(action, callback)
}

// setEventListener sets the callback receiving started/stopped/error/log/stats messages.
// When replaced, the old callback is released after in-flight calls complete.
//
//export setEventListener
func setEventListener(listener unsafe.Pointer) {
	eventListenerSlot.Store(listener)
}

// setProtector sets the context passed to protect_socket for sockets opened by the core.
// A nil protector leaves outbound sockets unprotected.
//
//export setProtector
func setProtector(tunCtx unsafe.Pointer) {
	protectorSlot.Store(tunCtx)
}

// protect is the core's socket hook.
func protect(fd int) {
	protectorSlot.With(func(ptr unsafe.Pointer) {
		protectSocket(ptr, fd)
	})
}

// sendMessage sends a contract.Message to the current listener callback.
func sendMessage(message contract.Message) {
	eventListenerSlot.With(func(ptr unsafe.Pointer) {
		result := ActionResult{
			Method:   contract.MessageMethod,
			Data:     message,
			callback: ptr,
		}
		result.send()
	})
}

// getState returns the session state name.
//
//export getState
func getState() *C.char {
	return C.CString(string(getService().GetState()))
}

// getStats returns a JSON snapshot of the interface counters.
//
//export getStats
func getStats() *C.char {
	data, err := json.Marshal(getService().GetStats())
	if err != nil {
		return C.CString("")
	}
	return C.CString(string(data))
}

// readPacket reads one packet from the tunnel into buf; it returns the length or -1.
//
//export readPacket
func readPacket(buf unsafe.Pointer, size C.int) C.int {
	if buf == nil || size <= 0 {
		return -1
	}
	n, err := getCore().ReadPacket(unsafe.Slice((*byte)(buf), int(size)))
	if err != nil {
		return -1
	}
	return C.int(n)
}

// writePacket writes one packet from buf into the tunnel; it returns the length or -1.
//
//export writePacket
func writePacket(buf unsafe.Pointer, size C.int) C.int {
	if buf == nil || size <= 0 {
		return -1
	}
	n, err := getCore().WritePacket(unsafe.Slice((*byte)(buf), int(size)))
	if err != nil {
		return -1
	}
	return C.int(n)
}

// forceGC triggers a GC cycle and tries to return memory to the OS.
//
//export forceGC
func forceGC() {
	getService().ForceGC()
}
