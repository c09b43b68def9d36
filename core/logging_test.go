package core

import (
	"testing"

	"github.com/metacubex/mihomo/log"
)

func TestSetLogLevel(t *testing.T) {
	prev := log.Level()
	t.Cleanup(func() { log.SetLevel(prev) })

	tests := []struct {
		level string
		ok    bool
		want  log.LogLevel
	}{
		{level: "debug", ok: true, want: log.DEBUG},
		{level: " WARN ", ok: true, want: log.WARNING},
		{level: "error", ok: true, want: log.ERROR},
		{level: "silent", ok: true, want: log.SILENT},
		{level: "verbose", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log.SetLevel(log.INFO)
			if got := SetLogLevel(tt.level); got != tt.ok {
				t.Fatalf("SetLogLevel(%q) = %v, want %v", tt.level, got, tt.ok)
			}
			want := tt.want
			if !tt.ok {
				want = log.INFO
			}
			if log.Level() != want {
				t.Fatalf("level = %v, want %v", log.Level(), want)
			}
		})
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if got := parseLevel("chatty"); got != log.INFO {
		t.Fatalf("parseLevel = %v, want info", got)
	}
	if got := parseLevel("Warning"); got != log.WARNING {
		t.Fatalf("parseLevel = %v, want warning", got)
	}
}

func TestEnsureLoadedRejectsEmptyDir(t *testing.T) {
	if err := EnsureLoaded("  "); err != ErrEmptyHomeDir {
		t.Fatalf("err = %v, want ErrEmptyHomeDir", err)
	}
}

func TestSetupConfigRequiresLoad(t *testing.T) {
	if Loaded() {
		t.Skip("core already loaded in this process")
	}
	if got := SetupConfig([]byte(`{"payload":"mode: rule"}`)); got != ErrNotLoaded.Error() {
		t.Fatalf("SetupConfig = %q, want %q", got, ErrNotLoaded.Error())
	}
}
