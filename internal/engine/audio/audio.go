// Package audio plays ambient music and one-shot effects through the
// system mixer.
package audio

import (
	"fmt"
	gomath "math"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// mixerSampleRate is the fixed output rate; sources at other rates are
// resampled on the fly.
const mixerSampleRate = beep.SampleRate(44100)

// Manager owns the speaker and the currently playing music track.
type Manager struct {
	mu sync.RWMutex

	initialized bool

	music       beep.StreamSeekCloser
	musicCtrl   *beep.Ctrl
	musicVolume *effects.Volume
	musicPath   string

	// volumes in 0..1
	masterVolume float64
	musicLevel   float64
	effectLevel  float64

	effects *beep.Mixer
}

// New creates an uninitialized manager with full volume.
func New() *Manager {
	return &Manager{
		masterVolume: 1,
		musicLevel:   0.7,
		effectLevel:  1,
		effects:      &beep.Mixer{},
	}
}

// Init opens the speaker. Safe to call more than once.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}
	if err := speaker.Init(mixerSampleRate, mixerSampleRate.N(time.Second/30)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(m.effects)
	m.initialized = true
	return nil
}

// Close stops playback and releases the speaker.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopMusicLocked()
	speaker.Clear()
	m.initialized = false
}

// SetMasterVolume scales both music and effects, 0 to 1.
func (m *Manager) SetMasterVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masterVolume = clamp01(vol)
	m.applyMusicVolumeLocked()
}

// SetMusicVolume sets the music level, 0 to 1.
func (m *Manager) SetMusicVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.musicLevel = clamp01(vol)
	m.applyMusicVolumeLocked()
}

// SetEffectVolume sets the effect level, 0 to 1.
func (m *Manager) SetEffectVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.effectLevel = clamp01(vol)
}

// PlayMusic starts a WAV file as the music track, replacing the current one.
func (m *Manager) PlayMusic(path string, loop bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return fmt.Errorf("audio not initialized")
	}
	m.stopMusicLocked()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open music: %w", err)
	}
	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", path, err)
	}

	var source beep.Streamer = streamer
	if format.SampleRate != mixerSampleRate {
		source = beep.Resample(4, format.SampleRate, mixerSampleRate, streamer)
	}
	if loop {
		source = &loopStreamer{seeker: streamer, source: source}
	}

	m.musicCtrl = &beep.Ctrl{Streamer: source}
	m.musicVolume = &effects.Volume{Streamer: m.musicCtrl, Base: 2}
	m.applyMusicVolumeLocked()

	m.music = streamer
	m.musicPath = path
	speaker.Play(m.musicVolume)
	return nil
}

// StopMusic stops and forgets the music track.
func (m *Manager) StopMusic() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopMusicLocked()
}

// MusicPath returns the path of the active track, or "".
func (m *Manager) MusicPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.musicPath
}

// PlayEffect mixes a one-shot WAV effect over the music.
func (m *Manager) PlayEffect(path string) error {
	m.mu.RLock()
	initialized := m.initialized
	vol := m.masterVolume * m.effectLevel
	m.mu.RUnlock()

	if !initialized {
		return fmt.Errorf("audio not initialized")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open effect: %w", err)
	}
	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", path, err)
	}

	var source beep.Streamer = streamer
	if format.SampleRate != mixerSampleRate {
		source = beep.Resample(4, format.SampleRate, mixerSampleRate, streamer)
	}
	m.effects.Add(&effects.Volume{
		Streamer: source,
		Base:     2,
		Volume:   volumeExponent(vol),
		Silent:   vol <= 0,
	})
	return nil
}

func (m *Manager) stopMusicLocked() {
	if m.musicCtrl != nil {
		m.musicCtrl.Paused = true
	}
	speaker.Clear()
	if m.initialized {
		speaker.Play(m.effects)
	}
	if m.music != nil {
		m.music.Close()
		m.music = nil
	}
	m.musicCtrl = nil
	m.musicVolume = nil
	m.musicPath = ""
}

func (m *Manager) applyMusicVolumeLocked() {
	if m.musicVolume == nil {
		return
	}
	vol := m.masterVolume * m.musicLevel
	m.musicVolume.Silent = vol <= 0
	if vol > 0 {
		m.musicVolume.Volume = volumeExponent(vol)
	}
}

// volumeExponent maps a linear 0..1 volume to the exponent the Volume
// effect applies with Base 2, so the resulting gain equals vol.
func volumeExponent(vol float64) float64 {
	if vol <= 0 {
		return -100
	}
	return gomath.Log2(vol)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// loopStreamer restarts its seeker when the source drains.
type loopStreamer struct {
	seeker beep.StreamSeekCloser
	source beep.Streamer
}

func (l *loopStreamer) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		n, ok := l.source.Stream(samples[filled:])
		filled += n
		if !ok {
			if err := l.seeker.Seek(0); err != nil {
				return filled, false
			}
		}
	}
	return filled, true
}

func (l *loopStreamer) Err() error { return l.seeker.Err() }
