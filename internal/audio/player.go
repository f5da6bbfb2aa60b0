// Package audio plays alarm sounds through the system audio device.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var defaultFormat = wavFormat{SampleRate: 44100, Channels: 2, BitDepth: 16}

// beep mirrors the three rising tones used when a sound file is unavailable.
var beepFreqs = []float64{1000, 1500, 2000}

// Player plays one sound reference at a time per call. All calls share a
// single oto context, whose format is fixed by the first clip played.
type Player struct {
	dir    string
	volume float64

	once    sync.Once
	ctx     *oto.Context
	format  wavFormat
	initErr error

	mu    sync.Mutex
	cache map[string]*clip
}

// New returns a player resolving relative references against dir, with volume 0-100.
func New(dir string, volume int) *Player {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	return &Player{dir: dir, volume: float64(volume) / 100, cache: make(map[string]*clip)}
}

func (p *Player) path(ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(p.dir, ref)
}

// load reads and caches a WAV clip. A missing or unreadable file falls
// back to the synthesized beep.
func (p *Player) load(ref string) (*clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.cache[ref]; ok {
		return c, nil
	}
	var c *clip
	data, err := os.ReadFile(p.path(ref))
	switch {
	case ref == "" || errors.Is(err, os.ErrNotExist):
		c = tone(defaultFormat, beepFreqs, 0.5)
	case err != nil:
		return nil, fmt.Errorf("read sound %s: %w", ref, err)
	default:
		if c, err = parseWAV(data); err != nil {
			return nil, fmt.Errorf("sound %s: %w", ref, err)
		}
	}
	p.cache[ref] = c
	return c, nil
}

func (p *Player) init(format wavFormat) error {
	p.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			p.initErr = fmt.Errorf("init audio context: %w", err)
			return
		}
		<-ready
		p.ctx = ctx
		p.format = format
	})
	return p.initErr
}

// Play plays ref once, returning when playback finishes or ctx is done.
func (p *Player) Play(ctx context.Context, ref string) error {
	c, err := p.load(ref)
	if err != nil {
		return err
	}
	if err := p.init(c.format); err != nil {
		return err
	}
	if c.format.SampleRate != p.format.SampleRate || c.format.Channels != p.format.Channels {
		c = tone(p.format, beepFreqs, 0.5)
	}

	pl := p.ctx.NewPlayer(bytes.NewReader(c.pcm))
	defer func() { _ = pl.Close() }()
	pl.SetVolume(p.volume)
	pl.Play()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for pl.IsPlaying() {
		select {
		case <-ctx.Done():
			pl.Pause()
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}
