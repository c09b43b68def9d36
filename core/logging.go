package core

import (
	"strings"

	"mihomo_vpn_binding/contract"

	"github.com/metacubex/mihomo/log"
)

// StartLog subscribes to mihomo log events and forwards them to the host.
func (c *Core) StartLog() {
	c.logMu.Lock()
	if c.logStop != nil {
		c.logStop()
		c.logStop = nil
	}

	sub := log.Subscribe()
	c.logStop = func() { log.UnSubscribe(sub) }
	c.logMu.Unlock()

	go func() {
		for logData := range sub {
			if logData.LogLevel < log.Level() {
				continue
			}
			c.emitMessage(contract.Message{
				Type: contract.LogMessage,
				Data: map[string]string{
					"level":   logData.LogLevel.String(),
					"payload": logData.Payload,
				},
			})
		}
	}()
}

// StopLog stops forwarding log events to the host.
func (c *Core) StopLog() {
	c.logMu.Lock()
	stop := c.logStop
	c.logStop = nil
	c.logMu.Unlock()
	if stop != nil {
		stop()
	}
}

// LogMessage writes a host diagnostic into the mihomo log.
func (c *Core) LogMessage(level, message string) {
	switch parseLevel(level) {
	case log.DEBUG:
		log.Debugln("[HOST] %s", message)
	case log.WARNING:
		log.Warnln("[HOST] %s", message)
	case log.ERROR:
		log.Errorln("[HOST] %s", message)
	default:
		log.Infoln("[HOST] %s", message)
	}
}

// SetLogLevel changes the mihomo log level; unknown names are rejected.
func SetLogLevel(level string) bool {
	lvl, ok := log.LogLevelMapping[normalizeLevel(level)]
	if !ok {
		return false
	}
	log.SetLevel(lvl)
	return true
}

func parseLevel(level string) log.LogLevel {
	if lvl, ok := log.LogLevelMapping[normalizeLevel(level)]; ok {
		return lvl
	}
	return log.INFO
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warn" {
		return "warning"
	}
	return level
}
