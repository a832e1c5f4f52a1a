// Package narration reads the current story aloud through a host speech
// synthesizer and reports whether it is speaking.
package narration

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Status is the narration subsystem's state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusSpeaking Status = "speaking"
)

// State is a point-in-time view of the narrator for presentation.
type State struct {
	Status    Status `json:"status"`
	Available bool   `json:"available"`
	HasStory  bool   `json:"hasStory"`
	Version   uint64 `json:"version"`
}

// Narrator owns narration of the single current story. Any story change
// halts in-progress narration before anything else happens.
type Narrator struct {
	speaker Speaker

	// opMu serialises SetStory, Toggle and Stop. It is never held by speaker
	// callbacks, so Speaker.Cancel may wait for them.
	opMu sync.Mutex

	// pubMu orders delivery to subscribers. Lock order: pubMu, then mu.
	pubMu sync.Mutex

	mu        sync.Mutex
	story     string
	status    Status
	utterance uint64
	version   uint64
	subs      map[int]func(State)
	nextSubID int
}

// New creates an idle narrator. A nil speaker makes narration unavailable:
// the narrator stays Idle and Toggle does nothing.
func New(speaker Speaker) *Narrator {
	return &Narrator{
		speaker: speaker,
		status:  StatusIdle,
		subs:    make(map[int]func(State)),
	}
}

// Available reports whether a speech capability is present.
func (n *Narrator) Available() bool {
	return n.speaker != nil
}

// State returns the current narration state.
func (n *Narrator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stateLocked()
}

func (n *Narrator) stateLocked() State {
	return State{
		Status:    n.status,
		Available: n.speaker != nil,
		HasStory:  n.story != "",
		Version:   n.version,
	}
}

// Subscribe registers fn to receive every published state, in order.
func (n *Narrator) Subscribe(fn func(State)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextSubID
	n.nextSubID++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// update applies fn and publishes when it reports a change.
func (n *Narrator) update(fn func() bool) bool {
	n.pubMu.Lock()
	defer n.pubMu.Unlock()

	n.mu.Lock()
	if !fn() {
		n.mu.Unlock()
		return false
	}
	n.version++
	st := n.stateLocked()
	subs := make([]func(State), 0, len(n.subs))
	for _, sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		sub(st)
	}
	return true
}

// SetStory replaces the story. A changed story halts narration and, when
// the new story is non-empty, starts narrating it. An unchanged story is a no-op.
func (n *Narrator) SetStory(story string) {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.mu.Lock()
	same := n.story == story
	n.mu.Unlock()
	if same {
		return
	}

	n.halt()
	n.update(func() bool {
		n.story = story
		return true
	})
	if story != "" {
		n.start(story)
	}
}

// Toggle stops narration when speaking and plays the current story when
// idle. Without a speaker or a story it does nothing.
func (n *Narrator) Toggle() {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	if n.speaker == nil {
		log.Debug().Msg("Narration toggle ignored: no speech synthesizer")
		return
	}

	n.mu.Lock()
	story, status := n.story, n.status
	n.mu.Unlock()
	if story == "" {
		return
	}

	n.halt()
	if status != StatusSpeaking {
		n.start(story)
	}
}

// Stop halts narration. Safe to call when nothing is speaking.
func (n *Narrator) Stop() {
	n.opMu.Lock()
	defer n.opMu.Unlock()
	n.halt()
}

// halt invalidates the current utterance and cancels the speaker. Callbacks
// of the cancelled utterance are ignored from here on. Caller holds opMu.
func (n *Narrator) halt() {
	n.update(func() bool {
		n.utterance++
		if n.status == StatusIdle {
			return false
		}
		n.status = StatusIdle
		return true
	})
	if n.speaker != nil {
		n.speaker.Cancel()
	}
}

// start begins a new utterance of story. Caller holds opMu.
func (n *Narrator) start(story string) {
	if n.speaker == nil {
		return
	}

	var id uint64
	n.update(func() bool {
		n.utterance++
		id = n.utterance
		n.status = StatusSpeaking
		return true
	})

	err := n.speaker.Speak(context.Background(), story, Callbacks{
		OnStart: func() { n.onStart(id) },
		OnEnd:   func() { n.onEnd(id) },
		OnError: func(err error) { n.onError(id, err) },
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to start narration")
		n.finish(id)
	}
}

func (n *Narrator) onStart(id uint64) {
	n.mu.Lock()
	current := n.utterance == id
	n.mu.Unlock()
	if current {
		log.Debug().Uint64("utterance", id).Msg("Narration started")
	}
}

func (n *Narrator) onEnd(id uint64) {
	if n.finish(id) {
		log.Debug().Uint64("utterance", id).Msg("Narration finished")
	}
}

func (n *Narrator) onError(id uint64, err error) {
	if !n.finish(id) {
		return
	}
	if isCancellation(err) {
		return
	}
	log.Error().Err(err).Uint64("utterance", id).Msg("Narration failed")
}

// finish returns the narrator to Idle if id is still the current utterance.
func (n *Narrator) finish(id uint64) bool {
	return n.update(func() bool {
		if n.utterance != id || n.status == StatusIdle {
			return false
		}
		n.status = StatusIdle
		return true
	})
}

// isCancellation reports whether err only means the utterance was stopped.
func isCancellation(err error) bool {
	if errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "canceled") || strings.Contains(msg, "interrupted")
}
