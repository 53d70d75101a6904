// Package config handles client configuration loading and management.
package config

// Config holds all client settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	Culling  CullingConfig  `yaml:"culling"`
	Data     DataConfig     `yaml:"data"`
	Audio    AudioConfig    `yaml:"audio"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GraphicsConfig holds display settings.
type GraphicsConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
	FPSLimit   int  `yaml:"fps_limit"`
}

// CullingConfig holds the runtime-mutable culling flags. The renderers read
// these once per frame; flipping them between frames is safe.
type CullingConfig struct {
	Enabled           bool `yaml:"enabled"`
	OcclusionEnabled  bool `yaml:"occlusion_enabled"`
	LockFrustum       bool `yaml:"lock_frustum"`
	DrawBoundingBoxes bool `yaml:"draw_bounding_boxes"`
}

// DataConfig holds extracted asset locations.
type DataConfig struct {
	AssetDir        string   `yaml:"asset_dir"`        // root of extracted model/chunk files
	TextureManifest string   `yaml:"texture_manifest"` // hash→path table emitted by the extractor
	Chunks          []string `yaml:"chunks"`           // chunk files to stream on startup
}

// AudioConfig holds playback settings. Music is a WAV path relative to the
// asset directory; empty disables the background track.
type AudioConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Music        string  `yaml:"music"`
	MasterVolume float64 `yaml:"master_volume"`
	MusicVolume  float64 `yaml:"music_volume"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			FPSLimit:   0,
		},
		Culling: CullingConfig{
			Enabled:           true,
			OcclusionEnabled:  true,
			LockFrustum:       false,
			DrawBoundingBoxes: false,
		},
		Data: DataConfig{
			AssetDir:        "data/extracted",
			TextureManifest: "data/extracted/textures.manifest",
		},
		Audio: AudioConfig{
			Enabled:      true,
			MasterVolume: 1,
			MusicVolume:  0.7,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
