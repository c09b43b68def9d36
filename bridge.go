//go:build android && cgo

package main

//#include "bridge.h"
import "C"
import (
	"errors"
	"unsafe"
)

// protectSocket calls host-side protect_socket to keep the socket out of the VPN.
// Equivalent to Android VpnService#protect.
func protectSocket(tunCtx unsafe.Pointer, fd int) {
	C.protect_socket(tunCtx, C.int(fd))
}

// releaseObject releases a host-owned handle (for example, a callback pointer).
func releaseObject(obj unsafe.Pointer) {
	C.release_object(obj)
}

// invokeResult sends a JSON result (or an error message) to the host callback.
// The host must not keep the C string pointer after the callback returns.
func invokeResult(callback unsafe.Pointer, data string) {
	s := C.CString(data)
	defer C.free(unsafe.Pointer(s))
	C.invoke_result(callback, s)
}

// takeCString converts a host C string to Go string and frees it via free_string.
func takeCString(s *C.char) string {
	if s == nil {
		return ""
	}
	defer C.free_string(s)
	return C.GoString(s)
}

var errHostCall = errors.New("host call failed")

// vpnPrepared asks the host whether VpnService.prepare needs user consent.
func vpnPrepared() (bool, error) {
	switch r := C.vpn_prepared(); {
	case r > 0:
		return true, nil
	case r == 0:
		return false, nil
	default:
		return false, errHostCall
	}
}

func vpnRequestConsent() error {
	if C.vpn_request_consent() != 0 {
		return errHostCall
	}
	return nil
}

// vpnEstablish hands a JSON interface description to VpnService.Builder.
func vpnEstablish(configJSON string) (int, error) {
	s := C.CString(configJSON)
	defer C.free(unsafe.Pointer(s))
	fd := int(C.vpn_establish(s))
	if fd < 0 {
		return -1, errHostCall
	}
	return fd, nil
}
