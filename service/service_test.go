package service

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mihomo_vpn_binding/contract"
	"mihomo_vpn_binding/options"
	"mihomo_vpn_binding/vpn"

	"github.com/google/go-cmp/cmp"
)

type fakeCore struct {
	mu       sync.Mutex
	calls    []string
	params   []contract.TunnelParams
	startErr error
	packet   []byte
	readSize int
	written  [][]byte
	interval time.Duration
	logged   []string
}

func (c *fakeCore) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *fakeCore) CreateTunnel(params contract.TunnelParams) error {
	c.record("create")
	c.mu.Lock()
	c.params = append(c.params, params)
	c.mu.Unlock()
	return nil
}

func (c *fakeCore) StartTunnel() error {
	c.record("start")
	return c.startErr
}

func (c *fakeCore) StopTunnel() error {
	c.record("stop")
	return nil
}

func (c *fakeCore) ReadPacket(buf []byte) (int, error) {
	c.readSize = len(buf)
	if c.packet == nil {
		return -1, errors.New("no packet")
	}
	return copy(buf, c.packet), nil
}

func (c *fakeCore) WritePacket(buf []byte) (int, error) {
	c.written = append(c.written, append([]byte(nil), buf...))
	return len(buf), nil
}

func (c *fakeCore) GetStatus() string {
	return `{"status":"running","config":"/data/config.yaml","version":"v1.19.20"}`
}

func (c *fakeCore) GetStats() string { return `{"interface":"MihomoVPN","active":true}` }

func (c *fakeCore) ResetStats() error { return nil }

func (c *fakeCore) LogMessage(level, message string) {
	c.logged = append(c.logged, level+": "+message)
}

func (c *fakeCore) StartLog() { c.record("startLog") }

func (c *fakeCore) StopLog() { c.record("stopLog") }

func (c *fakeCore) StartStats(interval time.Duration) {
	c.interval = interval
	c.record("startStats")
}

func (c *fakeCore) StopStats() { c.record("stopStats") }

func (c *fakeCore) Shutdown() bool {
	c.record("shutdown")
	return true
}

type fakePlatform struct {
	prepared  bool
	consent   int
	nextFD    int
	closed    []int
	establish []contract.InterfaceConfig
}

func (p *fakePlatform) Prepared() (bool, error) { return p.prepared, nil }

func (p *fakePlatform) RequestConsent() error {
	p.consent++
	return nil
}

func (p *fakePlatform) Establish(cfg contract.InterfaceConfig) (int, error) {
	p.establish = append(p.establish, cfg)
	p.nextFD++
	return 100 + p.nextFD, nil
}

func (p *fakePlatform) Close(fd int) error {
	p.closed = append(p.closed, fd)
	return nil
}

type fakeRuntime struct {
	loadedFrom string
	loadErr    error
	level      string
	configs    []string
	gc         int
}

func (r *fakeRuntime) runtime() Runtime {
	return Runtime{
		EnsureLoaded: func(dir string) error {
			r.loadedFrom = dir
			return r.loadErr
		},
		SetupConfig: func(payload []byte) string {
			r.configs = append(r.configs, string(payload))
			return ""
		},
		SetLogLevel: func(level string) bool {
			r.level = level
			return level != "bogus"
		},
		Version: func() string { return "v1.19.20" },
		ForceGC: func() { r.gc++ },
	}
}

type nopEmitter struct{}

func (nopEmitter) Emit(contract.Message) {}

type fixture struct {
	core     *fakeCore
	platform *fakePlatform
	runtime  *fakeRuntime
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		core:     &fakeCore{},
		platform: &fakePlatform{prepared: true},
		runtime:  &fakeRuntime{},
	}
	f.svc = New(Options{
		Core:     f.core,
		Platform: f.platform,
		Emitter:  nopEmitter{},
		Runtime:  f.runtime.runtime(),
	})
	return f
}

func TestInitAppliesOptions(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	yaml := "log-level: debug\nstack: gvisor\ninterface:\n  name: Work\n  mtu: 1400\n"
	if err := os.WriteFile(filepath.Join(dir, options.FileName), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := f.svc.Init(contract.InitParams{HomeDir: dir}); got != "" {
		t.Fatalf("init = %q", got)
	}
	if f.runtime.loadedFrom != dir || f.runtime.level != "debug" {
		t.Fatalf("runtime = %+v", f.runtime)
	}

	if got := f.svc.RequestPermission(); got.Status != "granted" {
		t.Fatalf("permission = %+v", got)
	}
	if got := f.svc.EstablishInterface(nil); got != "" {
		t.Fatalf("establish = %q", got)
	}
	if got := f.svc.Start(); got != "" {
		t.Fatalf("start = %q", got)
	}

	want := contract.TunnelParams{
		Name:      "Work",
		FD:        101,
		Addresses: []string{"10.0.0.2/32"},
		DNS:       []string{"8.8.8.8", "1.1.1.1"},
		MTU:       1400,
		Stack:     "gvisor",
	}
	if diff := cmp.Diff(want, f.core.params[0]); diff != "" {
		t.Fatalf("tunnel params (-want +got):\n%s", diff)
	}
	if f.svc.GetState() != contract.StateRunning {
		t.Fatalf("state = %s", f.svc.GetState())
	}
}

func TestInitFailure(t *testing.T) {
	f := newFixture(t)
	f.runtime.loadErr = errors.New("home-dir is empty")

	if got := f.svc.Init(contract.InitParams{}); got != "home-dir is empty" {
		t.Fatalf("init = %q", got)
	}
	if got := f.svc.Start(); got != ErrNotInitialized.Error() {
		t.Fatalf("start = %q, want %q", got, ErrNotInitialized.Error())
	}
	if got := f.svc.SetupConfig(`{"payload":"mode: rule"}`); got != ErrNotInitialized.Error() {
		t.Fatalf("setupConfig = %q", got)
	}
}

func TestPermissionFlow(t *testing.T) {
	f := newFixture(t)
	f.platform.prepared = false

	if got := f.svc.RequestPermission(); got.Status != "pending" {
		t.Fatalf("permission = %+v, want pending", got)
	}
	if got := f.svc.EstablishInterface(nil); got == "" {
		t.Fatal("establish before consent succeeded")
	}

	f.svc.ConsentResult(true)
	if got := f.svc.EstablishInterface(&contract.InterfaceConfig{Name: "Consented"}); got != "" {
		t.Fatalf("establish = %q", got)
	}
	if f.platform.establish[0].Name != "Consented" {
		t.Fatalf("established %+v", f.platform.establish[0])
	}
}

func TestEstablishWhileRunningReleasesNewInterface(t *testing.T) {
	f := newFixture(t)
	f.svc.Init(contract.InitParams{HomeDir: t.TempDir()})
	f.svc.RequestPermission()
	f.svc.EstablishInterface(nil)
	if got := f.svc.Start(); got != "" {
		t.Fatal(got)
	}

	if got := f.svc.EstablishInterface(nil); got == "" {
		t.Fatal("establish while running succeeded")
	}
	if diff := cmp.Diff([]int{102}, f.platform.closed); diff != "" {
		t.Fatalf("closed fds (-want +got):\n%s", diff)
	}
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)
	f.svc.Init(contract.InitParams{HomeDir: t.TempDir()})
	f.svc.RequestPermission()
	f.svc.EstablishInterface(nil)
	f.svc.Start()

	if !f.svc.Shutdown() {
		t.Fatal("shutdown returned false")
	}
	if f.svc.GetState() != contract.StateIdle {
		t.Fatalf("state = %s", f.svc.GetState())
	}
	if diff := cmp.Diff([]int{101}, f.platform.closed); diff != "" {
		t.Fatalf("closed fds (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"create", "start", "stop", "stopStats", "shutdown"}, f.core.calls); diff != "" {
		t.Fatalf("core calls (-want +got):\n%s", diff)
	}
}

func TestPassthroughs(t *testing.T) {
	f := newFixture(t)
	f.core.packet = []byte{0x45, 0x00}

	got, err := f.svc.ReadPacket(0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x45, 0x00}, got); diff != "" {
		t.Fatalf("packet (-want +got):\n%s", diff)
	}
	if n, err := f.svc.WritePacket([]byte{1, 2, 3}); n != 3 || err != nil {
		t.Fatalf("write = %d, %v", n, err)
	}

	f.svc.StartStats(250)
	if f.core.interval != 250*time.Millisecond {
		t.Fatalf("stats interval = %s", f.core.interval)
	}
	f.svc.LogMessage("warn", "host says hi")
	if diff := cmp.Diff([]string{"warn: host says hi"}, f.core.logged); diff != "" {
		t.Fatalf("logged (-want +got):\n%s", diff)
	}

	status := f.svc.GetStatus()
	if status.Status != "running" || status.Version != "v1.19.20" || len(status.Missing) != 0 {
		t.Fatalf("status = %+v", status)
	}
	stats := f.svc.GetStats()
	if stats.InterfaceName != "MihomoVPN" || !stats.Active || len(stats.Missing) == 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if f.svc.GetVersion() != "v1.19.20" || !f.svc.ResetStats() || f.svc.SetLogLevel("bogus") {
		t.Fatal("passthrough results differ")
	}
	f.svc.ForceGC()
	if f.runtime.gc != 1 {
		t.Fatalf("gc = %d", f.runtime.gc)
	}
}

func TestReadPacketLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "default", limit: 0, want: vpn.DefaultMTU},
		{name: "negative", limit: -5, want: vpn.DefaultMTU},
		{name: "small", limit: 64, want: 64},
		{name: "max", limit: vpn.MaxMTU, want: vpn.MaxMTU},
		{name: "huge", limit: 1 << 40, want: vpn.MaxMTU},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.core.packet = []byte{0x45}
			if _, err := f.svc.ReadPacket(tt.limit); err != nil {
				t.Fatal(err)
			}
			if f.core.readSize != tt.want {
				t.Fatalf("buffer = %d bytes, want %d", f.core.readSize, tt.want)
			}
		})
	}
}
