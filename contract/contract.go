package contract

import "encoding/json"

type Method string

const (
	MessageMethod Method = "message"

	InitMethod               Method = "init"
	RequestPermissionMethod  Method = "requestPermission"
	ConsentResultMethod      Method = "consentResult"
	EstablishInterfaceMethod Method = "establishInterface"
	ReleaseInterfaceMethod   Method = "releaseInterface"
	StartTunnelMethod        Method = "startTunnel"
	StopTunnelMethod         Method = "stopTunnel"
	DisposeMethod            Method = "dispose"
	GetStateMethod           Method = "getState"
	GetStatusMethod          Method = "getStatus"
	GetStatsMethod           Method = "getStats"
	ResetStatsMethod         Method = "resetStats"
	GetVersionMethod         Method = "getVersion"
	SetupConfigMethod        Method = "setupConfig"
	SetLogLevelMethod        Method = "setLogLevel"
	LogMessageMethod         Method = "logMessage"
	StartLogMethod           Method = "startLog"
	StopLogMethod            Method = "stopLog"
	StartStatsMethod         Method = "startStats"
	StopStatsMethod          Method = "stopStats"
	ForceGcMethod            Method = "forceGc"
	ReadPacketMethod         Method = "readPacket"
	WritePacketMethod        Method = "writePacket"
	ShutdownMethod           Method = "shutdown"
)

type MessageType string

const (
	LogMessage     MessageType = "log"
	StartedMessage MessageType = "started"
	StoppedMessage MessageType = "stopped"
	ErrorMessage   MessageType = "error"
	StatsMessage   MessageType = "stats"
)

type Action struct {
	ID     string          `json:"id"`
	Method Method          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

type Response struct {
	ID     string `json:"id"`
	Method Method `json:"method"`
	Data   any    `json:"data"`
	Code   int    `json:"code"`
}

type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

type InitParams struct {
	HomeDir string `json:"home-dir"`
}

type LogParams struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type Emitter interface {
	Emit(message Message)
}

// Service is the host-facing surface; every call returns a result and never panics on bad input.
type Service interface {
	Init(params InitParams) string

	RequestPermission() PermissionResult
	ConsentResult(granted bool)
	EstablishInterface(cfg *InterfaceConfig) string
	ReleaseInterface()

	Start() string
	Stop()
	Dispose()

	GetState() SessionState
	GetStatus() StatusSnapshot
	GetStats() StatsSnapshot
	ResetStats() bool
	GetVersion() string

	SetupConfig(payload string) string
	SetLogLevel(level string) bool
	LogMessage(level, message string)

	StartLog()
	StopLog()

	ReadPacket(limit int) ([]byte, error)
	WritePacket(packet []byte) (int, error)

	StartStats(intervalMs int64)
	StopStats()
	ForceGC()
	Shutdown() bool
}
