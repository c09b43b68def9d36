//go:build android && cgo

package main

import (
	"encoding/json"
	"unsafe"

	"mihomo_vpn_binding/contract"
)

// ActionResult is the {id, method, data, code} envelope delivered to invoke_result.
type ActionResult struct {
	ID       string          `json:"id"`
	Method   contract.Method `json:"method"`
	Data     any             `json:"data"`
	Code     int             `json:"code"`
	callback unsafe.Pointer
}

func failedResult(action contract.Action, data string, callback unsafe.Pointer) *ActionResult {
	return &ActionResult{
		ID:       action.ID,
		Method:   action.Method,
		Data:     data,
		Code:     -1,
		callback: callback,
	}
}

// encode marshals r, degrading to a failure envelope carrying the marshal error.
func (r *ActionResult) encode() string {
	data, err := json.Marshal(r)
	if err == nil {
		return string(data)
	}
	fallback := ActionResult{ID: r.ID, Method: r.Method, Data: err.Error(), Code: -1}
	if data, err := json.Marshal(&fallback); err == nil {
		return string(data)
	}
	return err.Error()
}

// send calls back into the host. Responses release their one-shot callback;
// messages reuse the listener, which its slot owns.
func (r *ActionResult) send() {
	invokeResult(r.callback, r.encode())
	if r.Method != contract.MessageMethod {
		releaseObject(r.callback)
	}
}
