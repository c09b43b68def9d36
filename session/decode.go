package session

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"mihomo_vpn_binding/contract"

	"github.com/metacubex/mihomo/log"
)

// DecodeStatus parses the core status encoding. Absent or malformed fields are
// reported as contract.Unknown and listed in Missing; the rest is kept.
func DecodeStatus(raw string) contract.StatusSnapshot {
	fields := decodeObject(raw)
	var missing []string

	str := func(key string) string {
		if v, ok := stringField(fields, key); ok {
			return v
		}
		missing = append(missing, key)
		return contract.Unknown
	}

	snapshot := contract.StatusSnapshot{
		Status:  str("status"),
		Config:  str("config"),
		Version: str("version"),
	}
	snapshot.Missing = missing
	if len(missing) > 0 {
		log.Debugln("[SESSION] status degraded, defaulted fields: %s", strings.Join(missing, ","))
	}
	return snapshot
}

// DecodeStats parses the core stats encoding with the same rules as DecodeStatus:
// counters default to 0 and active to false.
func DecodeStats(raw string) contract.StatsSnapshot {
	fields := decodeObject(raw)
	var missing []string

	counter := func(key string) uint64 {
		if v, ok := counterField(fields, key); ok {
			return v
		}
		missing = append(missing, key)
		return 0
	}

	var snapshot contract.StatsSnapshot
	if v, ok := stringField(fields, "interface"); ok {
		snapshot.InterfaceName = v
	} else {
		snapshot.InterfaceName = contract.Unknown
		missing = append(missing, "interface")
	}
	if v, ok := boolField(fields, "active"); ok {
		snapshot.Active = v
	} else {
		missing = append(missing, "active")
	}
	snapshot.PacketsIn = counter("packetsIn")
	snapshot.PacketsOut = counter("packetsOut")
	snapshot.BytesIn = counter("bytesIn")
	snapshot.BytesOut = counter("bytesOut")
	snapshot.UptimeSeconds = counter("uptime")

	snapshot.Missing = missing
	if len(missing) > 0 {
		log.Debugln("[SESSION] stats degraded, defaulted fields: %s", strings.Join(missing, ","))
	}
	return snapshot
}

// decodeObject returns nil for anything that is not a JSON object.
func decodeObject(raw string) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return nil
	}
	return fields
}

// field returns the raw value for key; JSON null counts as absent.
func field(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := field(fields, key)
	if !ok {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

func boolField(fields map[string]json.RawMessage, key string) (bool, bool) {
	raw, ok := field(fields, key)
	if !ok {
		return false, false
	}
	var value bool
	if err := json.Unmarshal(raw, &value); err == nil {
		return value, true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if b, err := strconv.ParseBool(text); err == nil {
			return b, true
		}
	}
	return false, false
}

// counterField accepts integers, non-negative floats (truncated) and numeric strings.
func counterField(fields map[string]json.RawMessage, key string) (uint64, bool) {
	raw, ok := field(fields, key)
	if !ok {
		return 0, false
	}
	var value uint64
	if err := json.Unmarshal(raw, &value); err == nil {
		return value, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f >= 0 && f < math.MaxUint64 {
			return uint64(f), true
		}
		return 0, false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if v, err := strconv.ParseUint(strings.TrimSpace(text), 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
