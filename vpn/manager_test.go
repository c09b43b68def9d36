package vpn

import (
	"errors"
	"testing"

	"mihomo_vpn_binding/contract"

	"github.com/google/go-cmp/cmp"
)

type fakePlatform struct {
	prepared     bool
	preparedErr  error
	consentErr   error
	establishFD  int
	establishErr error

	consentCalls int
	established  []contract.InterfaceConfig
	closed       []int
	closeErr     error
}

func (p *fakePlatform) Prepared() (bool, error) { return p.prepared, p.preparedErr }

func (p *fakePlatform) RequestConsent() error {
	p.consentCalls++
	return p.consentErr
}

func (p *fakePlatform) Establish(cfg contract.InterfaceConfig) (int, error) {
	p.established = append(p.established, cfg)
	return p.establishFD, p.establishErr
}

func (p *fakePlatform) Close(fd int) error {
	p.closed = append(p.closed, fd)
	return p.closeErr
}

func TestRequestPermission(t *testing.T) {
	tests := []struct {
		name        string
		platform    *fakePlatform
		want        Permission
		wantErr     error
		wantConsent int
		wantGranted bool
	}{
		{name: "already prepared", platform: &fakePlatform{prepared: true}, want: PermissionGranted, wantGranted: true},
		{name: "needs consent", platform: &fakePlatform{}, want: PermissionPending, wantConsent: 1},
		{name: "prepare fails", platform: &fakePlatform{preparedErr: errors.New("boom")}, want: PermissionFailed, wantErr: ErrPermissionDenied},
		{name: "consent launch fails", platform: &fakePlatform{consentErr: errors.New("no activity")}, want: PermissionFailed, wantErr: ErrPermissionDenied, wantConsent: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.platform)
			got, err := m.RequestPermission()
			if got != tt.want {
				t.Fatalf("permission = %s, want %s", got, tt.want)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.platform.consentCalls != tt.wantConsent {
				t.Fatalf("consent calls = %d, want %d", tt.platform.consentCalls, tt.wantConsent)
			}
			_, err = m.EstablishInterface(nil)
			if granted := !errors.Is(err, ErrNotPermitted); granted != tt.wantGranted {
				t.Fatalf("establish permitted = %v (%v), want %v", granted, err, tt.wantGranted)
			}
		})
	}
}

func TestEstablishRequiresPermission(t *testing.T) {
	p := &fakePlatform{establishFD: 7}
	m := NewManager(p)

	if _, err := m.EstablishInterface(nil); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("err = %v, want ErrNotPermitted", err)
	}
	if len(p.established) != 0 {
		t.Fatal("platform must not be asked to establish without permission")
	}

	m.OnConsentResult(true)
	h, err := m.EstablishInterface(nil)
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	if h.FD() != 7 {
		t.Fatalf("fd = %d, want 7", h.FD())
	}
}

func TestEstablishDefaults(t *testing.T) {
	p := &fakePlatform{prepared: true, establishFD: 3}
	m := NewManager(p)
	if _, err := m.RequestPermission(); err != nil {
		t.Fatal(err)
	}

	h, err := m.EstablishInterface(nil)
	if err != nil {
		t.Fatalf("establish: %v", err)
	}

	want := contract.InterfaceConfig{
		Name:         "MihomoVPN",
		LocalAddress: "10.0.0.2/32",
		Routes:       []string{"0.0.0.0/0"},
		DNSServers:   []string{"8.8.8.8", "1.1.1.1"},
		MTU:          1500,
	}
	if diff := cmp.Diff(want, h.Config(), cmp.Comparer(equalStrings)); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, p.established[0], cmp.Comparer(equalStrings)); diff != "" {
		t.Fatalf("platform config mismatch (-want +got):\n%s", diff)
	}
}

func TestEstablishCopiesConfig(t *testing.T) {
	p := &fakePlatform{prepared: true, establishFD: 3}
	m := NewManager(p)
	m.OnConsentResult(true)

	cfg := &contract.InterfaceConfig{Name: "custom", Routes: []string{"10.0.0.0/8"}}
	h, err := m.EstablishInterface(cfg)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Routes[0] = "192.168.0.0/16"

	if got := h.Config().Routes[0]; got != "10.0.0.0/8" {
		t.Fatalf("handle config changed with caller's slice: %s", got)
	}
}

func TestEstablishRejected(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *contract.InterfaceConfig
		platform *fakePlatform
	}{
		{name: "bad address", cfg: &contract.InterfaceConfig{LocalAddress: "10.0.0.2"}, platform: &fakePlatform{}},
		{name: "bad route", cfg: &contract.InterfaceConfig{Routes: []string{"0.0.0.0/33"}}, platform: &fakePlatform{}},
		{name: "bad dns", cfg: &contract.InterfaceConfig{DNSServers: []string{"dns.google"}}, platform: &fakePlatform{}},
		{name: "mtu too small", cfg: &contract.InterfaceConfig{MTU: 100}, platform: &fakePlatform{}},
		{name: "mtu too large", cfg: &contract.InterfaceConfig{MTU: 70000}, platform: &fakePlatform{}},
		{name: "platform refuses", platform: &fakePlatform{establishErr: errors.New("establish returned null")}},
		{name: "negative fd", platform: &fakePlatform{establishFD: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.platform)
			m.OnConsentResult(true)
			h, err := m.EstablishInterface(tt.cfg)
			if !errors.Is(err, ErrSystemRejected) {
				t.Fatalf("err = %v, want ErrSystemRejected", err)
			}
			if h != nil {
				t.Fatal("handle must be nil on failure")
			}
		})
	}
}

func TestConsentRefusedRevokesPermission(t *testing.T) {
	m := NewManager(&fakePlatform{prepared: true})
	if _, err := m.RequestPermission(); err != nil {
		t.Fatal(err)
	}
	m.OnConsentResult(false)
	if _, err := m.EstablishInterface(nil); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("err = %v, want ErrNotPermitted", err)
	}
}

func TestReleaseInterfaceIdempotent(t *testing.T) {
	p := &fakePlatform{establishFD: 9, closeErr: errors.New("already closed")}
	m := NewManager(p)
	m.OnConsentResult(true)

	h, err := m.EstablishInterface(nil)
	if err != nil {
		t.Fatal(err)
	}

	m.ReleaseInterface(h)
	m.ReleaseInterface(h)
	m.ReleaseInterface(nil)

	if diff := cmp.Diff([]int{9}, p.closed); diff != "" {
		t.Fatalf("close calls (-want +got):\n%s", diff)
	}
	if !h.Released() || h.FD() != -1 {
		t.Fatalf("handle not marked released: released=%v fd=%d", h.Released(), h.FD())
	}
}

func TestWithDefaultsKeepsCallerValues(t *testing.T) {
	got := WithDefaults(&contract.InterfaceConfig{
		Name:                "work",
		MTU:                 9000,
		AllowedApplications: []string{"org.example.browser"},
	})
	want := contract.InterfaceConfig{
		Name:                "work",
		LocalAddress:        DefaultLocalAddress,
		Routes:              []string{DefaultRoute},
		DNSServers:          DefaultDNSServers,
		MTU:                 9000,
		AllowedApplications: []string{"org.example.browser"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

// equalStrings treats nil and empty slices alike.
func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
