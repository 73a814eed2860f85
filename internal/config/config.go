package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/neboloop/texbridge/internal/bridge"
	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/surface"
)

type Config struct {
	Engine engine.Config `yaml:"engine"`
	Bridge BridgeConfig  `yaml:"bridge"`
	Server ServerConfig  `yaml:"server"`
	Log    struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// BridgeConfig holds the defaults for newly created bridges.
type BridgeConfig struct {
	Width         uint32  `yaml:"width"`
	Height        uint32  `yaml:"height"`
	Transparent   bool    `yaml:"transparent"`
	XOffset       float64 `yaml:"xoffset"`
	YOffset       float64 `yaml:"yoffset"`
	EventHandler  bool    `yaml:"eventHandler"`
	ZoomLevel     int     `yaml:"zoomLevel"`
	KeyboardInput bool    `yaml:"keyboardInput"`
	MouseInput    bool    `yaml:"mouseInput"`
	Scrollbars    bool    `yaml:"scrollbars"`
	Volume        float64 `yaml:"volume"`
	PixelFormat   string  `yaml:"pixelFormat"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	FrameRate   int    `yaml:"frameRate"`
	JPEGQuality int    `yaml:"jpegQuality"`
}

// Default returns the configuration used when no file sets a key.
func Default() Config {
	var c Config
	c.Engine = engine.Config{
		Backend:   "chromedp",
		Headless:  true,
		FrameRate: engine.DefaultFrameRate,
	}
	c.Bridge = BridgeConfig{
		Width:         1280,
		Height:        720,
		EventHandler:  true,
		KeyboardInput: true,
		MouseInput:    true,
		Scrollbars:    true,
		Volume:        1,
		PixelFormat:   "bgra",
	}
	c.Server = ServerConfig{
		Addr:        "127.0.0.1:27460",
		FrameRate:   30,
		JPEGQuality: 80,
	}
	c.Log.Level = "info"
	return c
}

// LoadFromBytes loads configuration from YAML bytes with environment variable
// expansion, on top of Default.
func LoadFromBytes(data []byte) (Config, error) {
	return Merge(Default(), data)
}

// Merge overlays YAML bytes onto base. Keys missing from data keep their base
// value.
func Merge(base Config, data []byte) (Config, error) {
	c := base
	c.Engine.ExtraArgs = append([]string(nil), base.Engine.ExtraArgs...)
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return base, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return base, err
	}
	return c, nil
}

// Load reads path and overlays it onto base.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config %s: %w", path, err)
	}
	return Merge(base, data)
}

// Validate reports every invalid key at once.
func (c Config) Validate() error {
	var errs []error
	if c.Engine.Backend == "" {
		errs = append(errs, errors.New("engine.backend is required"))
	}
	if c.Engine.FrameRate < 0 {
		errs = append(errs, fmt.Errorf("engine.frameRate must not be negative, got %d", c.Engine.FrameRate))
	}
	if c.Bridge.Volume < 0 || c.Bridge.Volume > 1 {
		errs = append(errs, fmt.Errorf("bridge.volume must be within [0,1], got %g", c.Bridge.Volume))
	}
	if c.Bridge.XOffset < 0 || c.Bridge.YOffset < 0 {
		errs = append(errs, errors.New("bridge.xoffset and bridge.yoffset must not be negative"))
	}
	if _, err := surface.ParseFormat(c.Bridge.PixelFormat); err != nil {
		errs = append(errs, fmt.Errorf("bridge.pixelFormat: %w", err))
	}
	if c.Server.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("server.frameRate must be positive, got %d", c.Server.FrameRate))
	}
	if c.Server.JPEGQuality < 1 || c.Server.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("server.jpegQuality must be within [1,100], got %d", c.Server.JPEGQuality))
	}
	return errors.Join(errs...)
}

// Options converts the bridge defaults into bridge options. The pixel format
// was checked by Validate.
func (b BridgeConfig) Options() bridge.Options {
	opts := bridge.DefaultOptions()
	opts.Viewport = surface.Viewport{Width: b.Width, Height: b.Height}
	opts.Transparent = b.Transparent
	opts.XOffset = b.XOffset
	opts.YOffset = b.YOffset
	opts.EventHandler = b.EventHandler
	opts.ZoomLevel = b.ZoomLevel
	opts.KeyboardInput = b.KeyboardInput
	opts.MouseInput = b.MouseInput
	opts.Scrollbars = b.Scrollbars
	opts.Volume = b.Volume
	if f, err := surface.ParseFormat(b.PixelFormat); err == nil {
		opts.PixelFormat = f
	}
	return opts
}
