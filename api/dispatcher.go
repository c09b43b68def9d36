package api

import (
	"encoding/json"

	"mihomo_vpn_binding/contract"
)

type DispatchResult struct {
	Response  contract.Response
	AfterSend func()
}

type Dispatcher struct {
	Service contract.Service
}

// New creates a Dispatcher that routes contract.Action to Service.
func New(service contract.Service) *Dispatcher {
	return &Dispatcher{Service: service}
}

// Dispatch routes an Action to Service and builds a response.
// AfterSend is used for side effects that must happen after the response is sent (shutdown).
func (d *Dispatcher) Dispatch(action contract.Action) DispatchResult {
	result := DispatchResult{
		Response: contract.Response{
			ID:     action.ID,
			Method: action.Method,
			Code:   0,
		},
	}

	fail := func(data any) DispatchResult {
		result.Response.Code = -1
		result.Response.Data = data
		return result
	}

	success := func(data any) DispatchResult {
		result.Response.Code = 0
		result.Response.Data = data
		return result
	}

	// failIfSet reports a non-empty error string as a failure.
	failIfSet := func(errText string) DispatchResult {
		if errText != "" {
			return fail(errText)
		}
		return success(true)
	}

	switch action.Method {
	case contract.InitMethod:
		var params contract.InitParams
		if err := decodeJSON(action.Data, &params); err != nil {
			return fail("init: invalid params: " + err.Error())
		}
		return failIfSet(d.Service.Init(params))
	case contract.RequestPermissionMethod:
		return success(d.Service.RequestPermission())
	case contract.ConsentResultMethod:
		granted, err := decodeBool(action.Data)
		if err != nil {
			return fail("consentResult: invalid params: " + err.Error())
		}
		d.Service.ConsentResult(granted)
		return success(true)
	case contract.EstablishInterfaceMethod:
		cfg, err := decodeOptionalJSON[contract.InterfaceConfig](action.Data)
		if err != nil {
			return fail("establishInterface: invalid params: " + err.Error())
		}
		return failIfSet(d.Service.EstablishInterface(cfg))
	case contract.ReleaseInterfaceMethod:
		d.Service.ReleaseInterface()
		return success(true)
	case contract.StartTunnelMethod:
		return failIfSet(d.Service.Start())
	case contract.StopTunnelMethod:
		d.Service.Stop()
		return success(true)
	case contract.DisposeMethod:
		d.Service.Dispose()
		return success(true)
	case contract.GetStateMethod:
		return success(d.Service.GetState())
	case contract.GetStatusMethod:
		return success(d.Service.GetStatus())
	case contract.GetStatsMethod:
		return success(d.Service.GetStats())
	case contract.ResetStatsMethod:
		return success(d.Service.ResetStats())
	case contract.GetVersionMethod:
		return success(d.Service.GetVersion())
	case contract.SetupConfigMethod:
		payload, err := decodeString(action.Data)
		if err != nil {
			return fail("setupConfig: invalid params: " + err.Error())
		}
		return failIfSet(d.Service.SetupConfig(payload))
	case contract.SetLogLevelMethod:
		level, err := decodeString(action.Data)
		if err != nil {
			return fail("setLogLevel: invalid params: " + err.Error())
		}
		if !d.Service.SetLogLevel(level) {
			return fail("setLogLevel: unknown level " + level)
		}
		return success(true)
	case contract.LogMessageMethod:
		var params contract.LogParams
		if err := decodeJSON(action.Data, &params); err != nil {
			return fail("logMessage: invalid params: " + err.Error())
		}
		d.Service.LogMessage(params.Level, params.Message)
		return success(true)
	case contract.StartLogMethod:
		d.Service.StartLog()
		return success(true)
	case contract.StopLogMethod:
		d.Service.StopLog()
		return success(true)
	case contract.ReadPacketMethod:
		limit, err := decodeInt(action.Data)
		if err != nil {
			return fail("readPacket: invalid params: " + err.Error())
		}
		packet, err := d.Service.ReadPacket(limit)
		if err != nil {
			return fail(err.Error())
		}
		return success(packet)
	case contract.WritePacketMethod:
		var packet []byte
		if err := decodeJSON(action.Data, &packet); err != nil {
			return fail("writePacket: invalid params: " + err.Error())
		}
		n, err := d.Service.WritePacket(packet)
		if err != nil {
			return fail(err.Error())
		}
		return success(n)
	case contract.StartStatsMethod:
		interval, err := decodeInt(action.Data)
		if err != nil {
			return fail("startStats: invalid params: " + err.Error())
		}
		d.Service.StartStats(int64(interval))
		return success(true)
	case contract.StopStatsMethod:
		d.Service.StopStats()
		return success(true)
	case contract.ForceGcMethod:
		d.Service.ForceGC()
		return success(true)
	case contract.ShutdownMethod:
		result.AfterSend = func() { d.Service.Shutdown() }
		return success(true)
	default:
		return fail("unknown method")
	}
}

// decodeOptionalJSON decodes raw into a new T; missing data and null yield nil.
func decodeOptionalJSON[T any](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return &value, nil
}
