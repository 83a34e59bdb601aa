package core

import (
	"bytes"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// Duration decodes TOML strings such as "1s" or "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type ApplicationConfig struct {
	// The application name used in windowing.
	Name string `toml:"name"`
	// Window starting position x axis.
	PosX uint32 `toml:"pos_x"`
	// Window starting position y axis.
	PosY uint32 `toml:"pos_y"`
	// Window starting width.
	Width uint32 `toml:"width"`
	// Window starting height.
	Height   uint32 `toml:"height"`
	LogLevel string `toml:"log_level"`
}

type RendererConfig struct {
	Validation       bool     `toml:"validation"`
	DrawWidth        uint32   `toml:"draw_width"`
	DrawHeight       uint32   `toml:"draw_height"`
	FenceTimeout     Duration `toml:"fence_timeout"`
	MaxFenceTimeouts int      `toml:"max_fence_timeouts"`
	VSync            bool     `toml:"vsync"`
	Overlay          bool     `toml:"overlay"`
	// OverlayFont is an optional BMFont descriptor, the built-in face is used when empty.
	OverlayFont string `toml:"overlay_font"`
}

type GraphicsPipelineConfig struct {
	Name      string `toml:"name"`
	Vertex    string `toml:"vertex"`
	Fragment  string `toml:"fragment"`
	Topology  string `toml:"topology"`
	Polygon   string `toml:"polygon"`
	Cull      string `toml:"cull"`
	FrontFace string `toml:"front_face"`
	DepthTest bool   `toml:"depth_test"`
	Blend     string `toml:"blend"`
}

type PipelinesConfig struct {
	ReloadInterval Duration                 `toml:"reload_interval"`
	Watch          bool                     `toml:"watch"`
	Compiler       string                   `toml:"compiler"`
	CompileTimeout Duration                 `toml:"compile_timeout"`
	Graphics       []GraphicsPipelineConfig `toml:"graphics"`
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Pipelines   PipelinesConfig   `toml:"pipelines"`
}

func DefaultConfig() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:     "Prism",
			PosX:     100,
			PosY:     100,
			Width:    1280,
			Height:   720,
			LogLevel: "info",
		},
		Renderer: RendererConfig{
			Validation:       true,
			DrawWidth:        1920,
			DrawHeight:       1080,
			FenceTimeout:     Duration{time.Second},
			MaxFenceTimeouts: 3,
			VSync:            true,
			Overlay:          true,
		},
		Pipelines: PipelinesConfig{
			ReloadInterval: Duration{time.Second},
			Watch:          true,
			Compiler:       "glslc",
			CompileTimeout: Duration{30 * time.Second},
		},
	}
}

// LoadConfig reads a TOML file on top of the defaults. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			LogWarn("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := ParseConfig(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

// ParseConfig decodes data into cfg and validates the result.
func ParseConfig(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return errors.Newf("window size %dx%d must be non zero", c.Application.Width, c.Application.Height)
	}
	if c.Renderer.DrawWidth == 0 || c.Renderer.DrawHeight == 0 {
		return errors.Newf("draw target size %dx%d must be non zero", c.Renderer.DrawWidth, c.Renderer.DrawHeight)
	}
	if c.Renderer.FenceTimeout.Duration <= 0 {
		return errors.New("fence_timeout must be positive")
	}
	if c.Renderer.MaxFenceTimeouts < 1 {
		return errors.Newf("max_fence_timeouts must be at least 1, got %d", c.Renderer.MaxFenceTimeouts)
	}
	if c.Pipelines.ReloadInterval.Duration <= 0 {
		return errors.New("reload_interval must be positive")
	}
	for i, g := range c.Pipelines.Graphics {
		if g.Name == "" || g.Vertex == "" || g.Fragment == "" {
			return errors.Newf("pipelines.graphics[%d] needs name, vertex and fragment", i)
		}
	}
	return nil
}
