package core

import (
	"encoding/json"
	"time"

	"mihomo_vpn_binding/contract"

	"github.com/metacubex/mihomo/constant"
	"github.com/metacubex/mihomo/tunnel/statistic"
)

type statusEncoding struct {
	Status  string `json:"status"`
	Config  string `json:"config"`
	Version string `json:"version"`
}

type statsEncoding struct {
	Interface  string `json:"interface"`
	Active     bool   `json:"active"`
	PacketsIn  uint64 `json:"packetsIn"`
	PacketsOut uint64 `json:"packetsOut"`
	BytesIn    uint64 `json:"bytesIn"`
	BytesOut   uint64 `json:"bytesOut"`
	Uptime     int64  `json:"uptime"`
	StartTime  string `json:"startTime"`
}

// GetStatus returns a JSON snapshot {status, config, version}.
func (c *Core) GetStatus() string {
	c.mu.Lock()
	status := "stopped"
	switch {
	case c.listener != nil:
		status = "running"
	case c.created != nil:
		status = "created"
	}
	c.mu.Unlock()

	configPath := "default"
	if Loaded() {
		configPath = constant.Path.Config()
	}

	data, err := json.Marshal(statusEncoding{
		Status:  status,
		Config:  configPath,
		Version: Version(),
	})
	if err != nil {
		return ""
	}
	return string(data)
}

// GetStats returns a JSON snapshot of interface counters. Byte counters
// include the traffic accounted by mihomo connections.
func (c *Core) GetStats() string {
	c.mu.Lock()
	var name string
	if c.created != nil {
		name = c.created.params.Name
	}
	active := c.listener != nil
	c.mu.Unlock()

	snapshot := statistic.DefaultManager.Snapshot()
	startedAt := time.Unix(c.startedAt.Load(), 0)

	data, err := json.Marshal(statsEncoding{
		Interface:  name,
		Active:     active,
		PacketsIn:  c.packetsIn.Load(),
		PacketsOut: c.packetsOut.Load(),
		BytesIn:    c.bytesIn.Load() + nonNegative(snapshot.DownloadTotal),
		BytesOut:   c.bytesOut.Load() + nonNegative(snapshot.UploadTotal),
		Uptime:     int64(time.Since(startedAt).Seconds()),
		StartTime:  startedAt.Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return ""
	}
	return string(data)
}

// ResetStats zeroes the local counters and mihomo's traffic statistics.
func (c *Core) ResetStats() error {
	c.resetCounters()
	statistic.DefaultManager.ResetStatistic()
	return nil
}

func (c *Core) resetCounters() {
	c.packetsIn.Store(0)
	c.packetsOut.Store(0)
	c.bytesIn.Store(0)
	c.bytesOut.Store(0)
	c.startedAt.Store(time.Now().Unix())
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// StartStats starts periodic stats reporting to the host.
func (c *Core) StartStats(interval time.Duration) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	if c.statsTick != nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	stopChan := make(chan struct{})
	c.statsTick = ticker
	c.statsStop = stopChan

	go func() {
		c.emitStats()
		for {
			select {
			case <-ticker.C:
				c.emitStats()
			case <-stopChan:
				return
			}
		}
	}()
}

// StopStats stops periodic stats reporting.
func (c *Core) StopStats() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	if c.statsTick == nil {
		return
	}

	c.statsTick.Stop()
	close(c.statsStop)
	c.statsTick = nil
	c.statsStop = nil
}

func (c *Core) emitStats() {
	data := c.GetStats()
	if data == "" {
		return
	}
	c.emitMessage(contract.Message{
		Type: contract.StatsMessage,
		Data: json.RawMessage(data),
	})
}
