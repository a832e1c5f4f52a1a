package narration

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrUnavailable means no speech synthesizer is present or narration is disabled.
var ErrUnavailable = errors.New("no speech synthesizer available")

// ErrInterrupted is reported to OnError when an utterance is cancelled.
var ErrInterrupted = errors.New("speech interrupted")

// Callbacks observe one utterance. Each is optional and fires at most once;
// exactly one of OnEnd and OnError fires after OnStart.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(err error)
}

// Speaker is a text-to-speech capability.
type Speaker interface {
	// Speak starts narrating text and returns once the utterance has started.
	// Any utterance already in progress is cancelled first.
	Speak(ctx context.Context, text string, cb Callbacks) error

	// Cancel stops the current utterance and returns after it has exited.
	// Safe to call when nothing is speaking.
	Cancel()

	// Speaking reports whether an utterance is in progress.
	Speaking() bool
}

// synthesizers are tried in order when no binary is configured.
var synthesizers = []string{"espeak-ng", "espeak", "say", "spd-say"}

// ExecSpeaker speaks by running a host speech binary with the text as its
// final argument.
type ExecSpeaker struct {
	Path string
	Args []string

	mu      sync.Mutex
	current *utterance
}

type utterance struct {
	cmd         *exec.Cmd
	done        chan struct{}
	interrupted atomic.Bool
}

// NewExecSpeaker creates a speaker for the binary at path.
func NewExecSpeaker(path string) *ExecSpeaker {
	s := &ExecSpeaker{Path: path}
	// spd-say returns immediately unless told to wait for the speech to finish.
	if filepath.Base(path) == "spd-say" {
		s.Args = []string{"--wait"}
	}
	return s
}

// DetectSpeaker resolves the narration setting: "off" disables narration,
// a name or path selects that binary, and empty picks the first known
// synthesizer on PATH.
func DetectSpeaker(setting string) (*ExecSpeaker, error) {
	setting = strings.TrimSpace(setting)
	switch strings.ToLower(setting) {
	case "off", "none", "false", "0":
		return nil, ErrUnavailable
	case "":
		for _, name := range synthesizers {
			if path, err := exec.LookPath(name); err == nil {
				return NewExecSpeaker(path), nil
			}
		}
		return nil, ErrUnavailable
	}

	path, err := exec.LookPath(setting)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, setting, err)
	}
	return NewExecSpeaker(path), nil
}

// Speak implements Speaker.
func (s *ExecSpeaker) Speak(ctx context.Context, text string, cb Callbacks) error {
	s.Cancel()

	args := append(append([]string{}, s.Args...), text)
	cmd := exec.CommandContext(ctx, s.Path, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", filepath.Base(s.Path), err)
	}

	u := &utterance{cmd: cmd, done: make(chan struct{})}
	s.mu.Lock()
	s.current = u
	s.mu.Unlock()

	if cb.OnStart != nil {
		cb.OnStart()
	}

	go func() {
		defer close(u.done)
		err := cmd.Wait()

		s.mu.Lock()
		if s.current == u {
			s.current = nil
		}
		s.mu.Unlock()

		switch {
		case u.interrupted.Load() || ctx.Err() != nil:
			if cb.OnError != nil {
				cb.OnError(ErrInterrupted)
			}
		case err != nil:
			if cb.OnError != nil {
				msg := strings.TrimSpace(stderr.String())
				cb.OnError(fmt.Errorf("%s failed: %w: %s", filepath.Base(s.Path), err, msg))
			}
		default:
			if cb.OnEnd != nil {
				cb.OnEnd()
			}
		}
	}()
	return nil
}

// Cancel implements Speaker.
func (s *ExecSpeaker) Cancel() {
	s.mu.Lock()
	u := s.current
	s.current = nil
	s.mu.Unlock()
	if u == nil {
		return
	}

	u.interrupted.Store(true)
	if u.cmd.Process != nil {
		_ = u.cmd.Process.Kill()
	}
	<-u.done
}

// Speaking implements Speaker.
func (s *ExecSpeaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}
