package core

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/metacubex/mihomo/config"
	"github.com/metacubex/mihomo/constant"
	"github.com/metacubex/mihomo/hub"
	"github.com/metacubex/mihomo/hub/executor"
	"github.com/metacubex/mihomo/log"
)

var (
	ErrNotLoaded    = errors.New("core not loaded")
	ErrEmptyHomeDir = errors.New("home-dir is empty")
)

var (
	loadOnce sync.Once
	loadErr  error
	loaded   atomic.Bool
	homeDir  string

	configMu sync.Mutex
)

type SetupParams struct {
	ConfigPath string `json:"config-path"`
	Payload    string `json:"payload"`
}

// EnsureLoaded initializes the mihomo runtime for the process. Only the first
// call with a non-empty dir does the work; later calls return its cached result.
func EnsureLoaded(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return ErrEmptyHomeDir
	}

	loadOnce.Do(func() {
		constant.SetHomeDir(dir)
		constant.SetConfig(filepath.Join(dir, "config.yaml"))
		if err := config.Init(dir); err != nil {
			log.Errorln("[APP] failed to init config directory: %s", err.Error())
			loadErr = err
			return
		}
		homeDir = dir
		loaded.Store(true)
		log.Infoln("[APP] core loaded: %s", dir)
	})

	if loadErr == nil && homeDir != dir {
		log.Warnln("[APP] core already loaded from %s, ignoring %s", homeDir, dir)
	}
	return loadErr
}

// Loaded reports whether EnsureLoaded has succeeded.
func Loaded() bool {
	return loaded.Load()
}

// Version returns the mihomo version with a leading "v".
func Version() string {
	version := strings.TrimSpace(constant.Version)
	if version == "" {
		return ""
	}
	if strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}

// SetupConfig loads the proxy configuration into mihomo.
// Supports two modes:
// 1. File mode: ConfigPath names the config file (empty keeps the current one)
// 2. Payload mode: Payload holds the YAML config itself
// Returns an empty string on success.
func SetupConfig(data []byte) string {
	configMu.Lock()
	defer configMu.Unlock()

	if !Loaded() {
		return ErrNotLoaded.Error()
	}

	var params SetupParams
	if err := json.Unmarshal(data, &params); err != nil {
		return err.Error()
	}

	var cfg *config.Config
	var err error

	if params.Payload != "" {
		cfg, err = executor.ParseWithBytes([]byte(params.Payload))
		if err != nil {
			return err.Error()
		}
	} else {
		if params.ConfigPath != "" {
			if _, err := os.Stat(params.ConfigPath); err != nil {
				return "config file not found: " + params.ConfigPath
			}
			constant.SetConfig(params.ConfigPath)
		}
		cfg, err = executor.Parse()
		if err != nil {
			return err.Error()
		}
	}

	// The VPN fd arrives through CreateTunnel, so mihomo must not open its own TUN.
	if cfg.General != nil {
		cfg.General.Tun.Enable = false
	}

	hub.ApplyConfig(cfg)
	log.Infoln("[APP] config applied")
	return ""
}

// ForceGC forces a GC cycle and tries to return memory to the OS.
func ForceGC() {
	runtime.GC()
	debug.FreeOSMemory()
}

// Shutdown stops the tunnel, log and stats forwarding, then the mihomo executor.
func (c *Core) Shutdown() bool {
	if err := c.StopTunnel(); err != nil && Code(err) != CodeNotCreated {
		log.Warnln("[APP] shutdown: %s", err.Error())
	}
	c.StopLog()
	c.StopStats()
	if Loaded() {
		executor.Shutdown()
	}
	return true
}
