package core

import (
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfigOverridesDefaults(t *testing.T) {
	data := []byte(`
[application]
name = "demo"
log_level = "debug"

[renderer]
max_fence_timeouts = 5
fence_timeout = "250ms"

[pipelines]
reload_interval = "500ms"

[[pipelines.graphics]]
name = "mesh"
vertex = "assets/shaders/mesh.vert"
fragment = "assets/shaders/mesh.frag"
cull = "none"
`)
	cfg := DefaultConfig()
	if err := ParseConfig(data, cfg); err != nil {
		t.Fatalf("ParseConfig() = %v", err)
	}
	if cfg.Application.Name != "demo" {
		t.Errorf("Name = %q, want demo", cfg.Application.Name)
	}
	if cfg.Application.Width != 1280 {
		t.Errorf("Width = %d, want the 1280 default", cfg.Application.Width)
	}
	if cfg.Renderer.MaxFenceTimeouts != 5 {
		t.Errorf("MaxFenceTimeouts = %d, want 5", cfg.Renderer.MaxFenceTimeouts)
	}
	if cfg.Renderer.FenceTimeout.Duration != 250*time.Millisecond {
		t.Errorf("FenceTimeout = %v, want 250ms", cfg.Renderer.FenceTimeout)
	}
	if cfg.Pipelines.ReloadInterval.Duration != 500*time.Millisecond {
		t.Errorf("ReloadInterval = %v, want 500ms", cfg.Pipelines.ReloadInterval)
	}
	if len(cfg.Pipelines.Graphics) != 1 || cfg.Pipelines.Graphics[0].Cull != "none" {
		t.Errorf("Graphics = %+v", cfg.Pipelines.Graphics)
	}
	if ParseLogLevel(cfg.Application.LogLevel) != DebugLevel {
		t.Errorf("log level %q did not parse as debug", cfg.Application.LogLevel)
	}
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no fence timeouts allowed", "[renderer]\nmax_fence_timeouts = 0\n"},
		{"empty draw target", "[renderer]\ndraw_width = 0\n"},
		{"bad duration", "[renderer]\nfence_timeout = \"soon\"\n"},
		{"unknown field", "[renderer]\nbogus = true\n"},
		{"pipeline without shaders", "[[pipelines.graphics]]\nname = \"x\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ParseConfig([]byte(tt.data), DefaultConfig()); err == nil {
				t.Fatal("ParseConfig() = nil, want an error")
			}
		})
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() = %v", err)
	}
	if cfg.Renderer.FenceTimeout.Duration != time.Second {
		t.Errorf("FenceTimeout = %v, want 1s", cfg.Renderer.FenceTimeout)
	}
}
