package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// Sink renders PCM16 audio and blocks until playback ends or ctx is cancelled.
type Sink interface {
	Play(ctx context.Context, pcm []byte) error
}

// CommandSink pipes audio into an external player's stdin, e.g.
// aplay -q -t raw -f S16_LE -r 24000 -c 1.
type CommandSink struct {
	Command []string
}

func (c CommandSink) Play(ctx context.Context, pcm []byte) error {
	if len(c.Command) == 0 {
		return errors.New("no player command configured")
	}
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Stdin = bytes.NewReader(pcm)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run %s: %w", c.Command[0], err)
	}
	return nil
}

// Player keeps at most one playback alive. Starting a new one stops the current one.
type Player struct {
	Sink   Sink
	Logger *zap.Logger

	op      sync.Mutex // serializes Play and Stop
	mu      sync.Mutex
	index   int
	playing bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewPlayer(sink Sink, logger *zap.Logger) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{Sink: sink, Logger: logger}
}

// Play starts pcm as message index in the background.
func (p *Player) Play(index int, pcm []byte) {
	p.op.Lock()
	defer p.op.Unlock()
	p.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.mu.Lock()
	p.index, p.playing, p.cancel, p.done = index, true, cancel, done
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if err := p.Sink.Play(ctx, pcm); err != nil {
			p.Logger.Warn("playback failed", zap.Int("message", index), zap.Error(err))
		}
		p.mu.Lock()
		if p.done == done {
			p.playing = false
		}
		p.mu.Unlock()
	}()
}

// Toggle stops index if it is the one playing, otherwise plays pcm as index.
// It reports whether playback started.
func (p *Player) Toggle(index int, pcm []byte) bool {
	if cur, ok := p.Playing(); ok && cur == index {
		p.Stop()
		return false
	}
	p.Play(index, pcm)
	return true
}

func (p *Player) Stop() {
	p.op.Lock()
	defer p.op.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.playing, p.cancel = false, nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the current playback, if any, has ended.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Playing returns the index of the message being played.
func (p *Player) Playing() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index, p.playing
}
