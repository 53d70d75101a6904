// Package game owns the client main loop: window and device setup, asset
// streaming, input handling and per-frame rendering.
package game

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/config"
	"github.com/Faultbox/frostgard/internal/engine/audio"
	"github.com/Faultbox/frostgard/internal/engine/camera"
	"github.com/Faultbox/frostgard/internal/engine/debug"
	"github.com/Faultbox/frostgard/internal/engine/graphics/gldev"
	"github.com/Faultbox/frostgard/internal/engine/input"
	"github.com/Faultbox/frostgard/internal/engine/renderer"
	"github.com/Faultbox/frostgard/internal/engine/texture"
	"github.com/Faultbox/frostgard/internal/engine/window"
	"github.com/Faultbox/frostgard/internal/logger"
)

// Game is the running client instance.
type Game struct {
	cfg     *config.Config
	running bool

	window   *window.Window
	device   *gldev.Device
	renderer *renderer.Renderer
	audio    *audio.Manager
	input    *input.Input
	camera   *camera.FreeLook

	screenshots   *debug.ScreenshotCapture
	mouseCaptured bool
}

// New creates the window, device and renderer and streams the configured
// chunks. The GL context must exist before the device, so order matters.
func New(cfg *config.Config) (*Game, error) {
	g := &Game{cfg: cfg}

	var err error
	g.window, err = window.New(window.Config{
		Title:      "Frostgard",
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
	})
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}

	g.device, err = gldev.New(cfg.Graphics.Width, cfg.Graphics.Height)
	if err != nil {
		g.window.Close()
		return nil, fmt.Errorf("create device: %w", err)
	}

	g.renderer, err = renderer.New(g.device, cfg)
	if err != nil {
		g.window.Close()
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	if cfg.Data.TextureManifest != "" {
		if _, err := g.renderer.Textures().LoadManifest(cfg.Data.TextureManifest); err != nil {
			logger.Log.Warn("texture manifest unavailable, materials resolve to the placeholder slot",
				zap.Error(err))
		} else {
			g.verifyTextures()
		}
	}

	for _, chunk := range cfg.Data.Chunks {
		path := chunk
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Data.AssetDir, path)
		}
		if err := g.renderer.LoadChunk(path); err != nil {
			logger.Log.Error("chunk load failed", zap.String("path", path), zap.Error(err))
		}
	}
	if err := g.renderer.ExecuteLoads(); err != nil {
		g.Close()
		return nil, fmt.Errorf("execute loads: %w", err)
	}

	g.input = input.New()
	aspect := float32(cfg.Graphics.Width) / float32(cfg.Graphics.Height)
	g.camera = camera.NewFreeLook(aspect)
	g.screenshots = debug.NewScreenshotCapture("screenshots", "frostgard")
	g.startAudio()

	return g, nil
}

// startAudio opens the speaker and starts the configured background track.
// Audio failures are logged, never fatal, a viewer without sound still works.
func (g *Game) startAudio() {
	cfg := g.cfg.Audio
	if !cfg.Enabled {
		return
	}
	g.audio = audio.New()
	if err := g.audio.Init(); err != nil {
		logger.Log.Warn("audio unavailable", zap.Error(err))
		g.audio = nil
		return
	}
	g.audio.SetMasterVolume(cfg.MasterVolume)
	g.audio.SetMusicVolume(cfg.MusicVolume)
	if cfg.Music != "" {
		path := filepath.Join(g.cfg.Data.AssetDir, filepath.FromSlash(cfg.Music))
		if err := g.audio.PlayMusic(path, true); err != nil {
			logger.Log.Warn("background music failed", zap.Error(err))
		}
	}
}

// verifyTextures decodes every registered texture once so broken extractor
// output shows up at startup instead of as a mid-session load failure.
func (g *Game) verifyTextures() {
	reg := g.renderer.Textures()
	bad := 0
	reg.Walk(func(hash uint32, path string) {
		if _, err := texture.LoadImage(filepath.Join(g.cfg.Data.AssetDir, filepath.FromSlash(path))); err != nil {
			logger.Log.Warn("texture unreadable", zap.String("path", path), zap.Error(err))
			bad++
		}
	})
	if bad > 0 {
		logger.Log.Warn("texture preflight found unreadable files", zap.Int("count", bad))
	}
}

// Run drives the main loop until quit.
func (g *Game) Run() error {
	g.running = true

	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()

	logger.Log.Info("entering main loop")

	for g.running {
		now := time.Now()
		dt := float32(now.Sub(lastTime).Seconds())
		lastTime = now

		if g.input.Update() {
			g.running = false
			break
		}
		g.handleEvents()
		g.moveCamera(dt)

		g.renderer.Update(dt)
		if err := g.renderer.RenderFrame(g.camera); err != nil {
			return fmt.Errorf("render frame: %w", err)
		}
		g.device.BlitToScreen()
		g.window.SwapBuffers()

		if limit := g.cfg.Graphics.FPSLimit; limit > 0 {
			frameBudget := time.Second / time.Duration(limit)
			if elapsed := time.Since(now); elapsed < frameBudget {
				time.Sleep(frameBudget - elapsed)
			}
		}

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			stats := g.renderer.FrameStats()
			logger.Log.Debug("frame",
				zap.Int("fps", frameCount),
				zap.Uint32("draws", stats.DrawCalls),
				zap.Uint32("survivingDraws", stats.SurvivingDrawCalls),
				zap.Uint32("survivingTriangles", stats.SurvivingTriangles))
			frameCount = 0
			fpsTimer = time.Now()
		}
	}

	return nil
}

func (g *Game) handleEvents() {
	for _, event := range g.input.Events() {
		switch event.Type {
		case input.EventKeyDown:
			g.handleKey(event.Key)
		case input.EventMouseDown:
			if event.Button == sdl.BUTTON_RIGHT {
				g.setMouseCaptured(true)
			}
		case input.EventMouseUp:
			if event.Button == sdl.BUTTON_RIGHT {
				g.setMouseCaptured(false)
			}
		}
	}
}

func (g *Game) handleKey(key sdl.Scancode) {
	culling := &g.cfg.Culling
	switch key {
	case sdl.SCANCODE_ESCAPE:
		g.running = false
	case sdl.SCANCODE_F1:
		culling.Enabled = !culling.Enabled
		logger.Log.Info("culling toggled", zap.Bool("enabled", culling.Enabled))
	case sdl.SCANCODE_F2:
		culling.OcclusionEnabled = !culling.OcclusionEnabled
		logger.Log.Info("occlusion culling toggled", zap.Bool("enabled", culling.OcclusionEnabled))
	case sdl.SCANCODE_F3:
		culling.LockFrustum = !culling.LockFrustum
		logger.Log.Info("frustum lock toggled", zap.Bool("locked", culling.LockFrustum))
	case sdl.SCANCODE_F4:
		culling.DrawBoundingBoxes = !culling.DrawBoundingBoxes
		logger.Log.Info("bounding boxes toggled", zap.Bool("enabled", culling.DrawBoundingBoxes))
	case sdl.SCANCODE_F12:
		pixels, w, h := g.device.ReadColorPixels()
		path, err := g.screenshots.Capture(pixels, w, h)
		if err != nil {
			logger.Log.Error("screenshot failed", zap.Error(err))
		} else {
			logger.Log.Info("screenshot saved", zap.String("path", path))
		}
	}
}

func (g *Game) setMouseCaptured(captured bool) {
	if g.mouseCaptured == captured {
		return
	}
	g.mouseCaptured = captured
	g.window.CaptureMouse(captured)
}

func (g *Game) moveCamera(dt float32) {
	var forward, right, up float32
	if g.input.IsKeyHeld(sdl.SCANCODE_W) {
		forward += dt
	}
	if g.input.IsKeyHeld(sdl.SCANCODE_S) {
		forward -= dt
	}
	if g.input.IsKeyHeld(sdl.SCANCODE_D) {
		right += dt
	}
	if g.input.IsKeyHeld(sdl.SCANCODE_A) {
		right -= dt
	}
	if g.input.IsKeyHeld(sdl.SCANCODE_E) {
		up += dt
	}
	if g.input.IsKeyHeld(sdl.SCANCODE_Q) {
		up -= dt
	}
	if g.input.IsKeyHeld(sdl.SCANCODE_LSHIFT) {
		forward *= 4
		right *= 4
		up *= 4
	}
	if forward != 0 || right != 0 || up != 0 {
		g.camera.Move(forward, right, up)
	}

	if g.mouseCaptured {
		dx, dy := g.input.MouseDelta()
		if dx != 0 || dy != 0 {
			g.camera.Look(float32(dx), float32(dy))
		}
	}
}

// Close releases renderer and window resources.
func (g *Game) Close() {
	if g.audio != nil {
		g.audio.Close()
	}
	if g.renderer != nil {
		g.renderer.Close()
	}
	if g.window != nil {
		g.window.Close()
	}
}
