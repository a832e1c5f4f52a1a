package narration

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeSpeaker records utterances; tests end them with finish.
type fakeSpeaker struct {
	mu       sync.Mutex
	spoken   []string
	cancels  int
	speaking bool
	cb       Callbacks
	startErr error
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string, cb Callbacks) error {
	f.Cancel()
	f.mu.Lock()
	if f.startErr != nil {
		f.mu.Unlock()
		return f.startErr
	}
	f.spoken = append(f.spoken, text)
	f.speaking = true
	f.cb = cb
	f.mu.Unlock()
	if cb.OnStart != nil {
		cb.OnStart()
	}
	return nil
}

func (f *fakeSpeaker) Cancel() {
	f.mu.Lock()
	f.cancels++
	wasSpeaking := f.speaking
	f.speaking = false
	cb := f.cb
	f.mu.Unlock()
	if wasSpeaking && cb.OnError != nil {
		cb.OnError(ErrInterrupted)
	}
}

func (f *fakeSpeaker) Speaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speaking
}

// finish ends the current utterance normally.
func (f *fakeSpeaker) finish() {
	f.mu.Lock()
	f.speaking = false
	cb := f.cb
	f.mu.Unlock()
	if cb.OnEnd != nil {
		cb.OnEnd()
	}
}

func (f *fakeSpeaker) utterances() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func TestSetStoryAutoPlays(t *testing.T) {
	sp := &fakeSpeaker{}
	n := New(sp)

	n.SetStory("Once upon a time")
	if st := n.State(); st.Status != StatusSpeaking || !st.HasStory || !st.Available {
		t.Fatalf("state = %+v, want speaking with story", st)
	}
	if got := sp.utterances(); len(got) != 1 || got[0] != "Once upon a time" {
		t.Fatalf("spoken = %q", got)
	}

	sp.finish()
	if st := n.State(); st.Status != StatusIdle {
		t.Errorf("status after end = %s, want idle", st.Status)
	}
}

func TestSetStorySameStoryDoesNotRestart(t *testing.T) {
	sp := &fakeSpeaker{}
	n := New(sp)
	n.SetStory("a story")
	n.SetStory("a story")
	if got := sp.utterances(); len(got) != 1 {
		t.Fatalf("expected one utterance, got %q", got)
	}
}

func TestStoryChangeHaltsThenRestarts(t *testing.T) {
	sp := &fakeSpeaker{}
	n := New(sp)

	n.SetStory("first")
	n.SetStory("second")

	got := sp.utterances()
	if len(got) != 2 || got[1] != "second" {
		t.Fatalf("spoken = %q, want first then second", got)
	}
	if sp.cancels == 0 {
		t.Error("changing the story must cancel the previous utterance")
	}
	if st := n.State(); st.Status != StatusSpeaking {
		t.Errorf("status = %s, want speaking", st.Status)
	}
}

func TestClearingStoryHalts(t *testing.T) {
	sp := &fakeSpeaker{}
	n := New(sp)

	n.SetStory("a story")
	n.SetStory("")

	if sp.Speaking() {
		t.Error("speaker still speaking after story cleared")
	}
	st := n.State()
	if st.Status != StatusIdle || st.HasStory {
		t.Errorf("state = %+v, want idle without story", st)
	}
	if got := sp.utterances(); len(got) != 1 {
		t.Errorf("clearing must not start a new utterance, spoken = %q", got)
	}
}

func TestToggle(t *testing.T) {
	sp := &fakeSpeaker{}
	n := New(sp)
	n.SetStory("a story")

	n.Toggle()
	if st := n.State(); st.Status != StatusIdle {
		t.Fatalf("toggle while speaking: status = %s, want idle", st.Status)
	}
	if sp.Speaking() {
		t.Fatal("speaker should be cancelled")
	}

	n.Toggle()
	if st := n.State(); st.Status != StatusSpeaking {
		t.Fatalf("toggle while idle: status = %s, want speaking", st.Status)
	}
	if got := sp.utterances(); len(got) != 2 || got[1] != "a story" {
		t.Errorf("spoken = %q, want story replayed", got)
	}
}

func TestToggleWithoutStory(t *testing.T) {
	sp := &fakeSpeaker{}
	n := New(sp)
	n.Toggle()
	if len(sp.utterances()) != 0 {
		t.Error("toggle without a story must not speak")
	}
	if st := n.State(); st.Status != StatusIdle {
		t.Errorf("status = %s, want idle", st.Status)
	}
}

func TestNoSpeakerIsInert(t *testing.T) {
	n := New(nil)
	if n.Available() {
		t.Fatal("narrator without speaker should be unavailable")
	}

	n.SetStory("a story")
	n.Toggle()
	n.Toggle()
	n.Stop()

	st := n.State()
	if st.Status != StatusIdle || st.Available || !st.HasStory {
		t.Errorf("state = %+v, want idle, unavailable, with story", st)
	}
}

func TestStopWhenIdle(t *testing.T) {
	sp := &fakeSpeaker{}
	n := New(sp)
	n.Stop()
	n.Stop()
	if st := n.State(); st.Status != StatusIdle {
		t.Errorf("status = %s, want idle", st.Status)
	}
}

func TestSupersededCallbacksIgnored(t *testing.T) {
	sp := &fakeSpeaker{}
	n := New(sp)

	n.SetStory("first")
	sp.mu.Lock()
	stale := sp.cb
	sp.mu.Unlock()

	n.SetStory("second")
	stale.OnEnd()
	stale.OnError(errors.New("device lost"))

	if st := n.State(); st.Status != StatusSpeaking {
		t.Errorf("stale callback changed status to %s", st.Status)
	}
}

func TestSpeakStartFailure(t *testing.T) {
	sp := &fakeSpeaker{startErr: errors.New("exec: not found")}
	n := New(sp)
	n.SetStory("a story")
	if st := n.State(); st.Status != StatusIdle {
		t.Errorf("status = %s, want idle after start failure", st.Status)
	}
}

func TestSubscribeReceivesOrderedStates(t *testing.T) {
	sp := &fakeSpeaker{}
	n := New(sp)

	var mu sync.Mutex
	var got []State
	unsubscribe := n.Subscribe(func(st State) {
		mu.Lock()
		got = append(got, st)
		mu.Unlock()
	})

	n.SetStory("a story")
	n.Stop()
	unsubscribe()
	n.SetStory("another")

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 {
		t.Fatal("no states published")
	}
	for i := 1; i < len(got); i++ {
		if got[i].Version <= got[i-1].Version {
			t.Fatalf("versions not increasing: %d then %d", got[i-1].Version, got[i].Version)
		}
	}
	last := got[len(got)-1]
	if last.Status != StatusIdle || !last.HasStory {
		t.Errorf("last state = %+v, want idle with story", last)
	}
}

func TestIsCancellation(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrInterrupted, true},
		{context.Canceled, true},
		{errors.New("synthesis-failed: interrupted"), true},
		{errors.New("request canceled by user"), true},
		{errors.New("audio device busy"), false},
	}
	for _, tt := range tests {
		if got := isCancellation(tt.err); got != tt.want {
			t.Errorf("isCancellation(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
