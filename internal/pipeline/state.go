package pipeline

import (
	"time"

	"github.com/fpang/vision-weaver/internal/scene"
)

// Phase is the controller's position in the capture → describe → weave run.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseDescribing     Phase = "describing"
	PhaseDescribeFailed Phase = "describe_failed"
	PhaseWeaving        Phase = "weaving"
	PhaseWeaveFailed    Phase = "weave_failed"
	PhaseReady          Phase = "ready"
)

// Busy reports whether a remote call is in flight for the current run.
func (p Phase) Busy() bool {
	return p == PhaseDescribing || p == PhaseWeaving
}

// Failed reports whether the current run stopped on an error.
func (p Phase) Failed() bool {
	return p == PhaseDescribeFailed || p == PhaseWeaveFailed
}

// isValidTransition enforces the allowed phase edges. Any phase may return to
// Idle because a new capture resets the run.
func isValidTransition(from, to Phase) bool {
	if to == PhaseIdle {
		return true
	}
	switch from {
	case PhaseIdle:
		return to == PhaseDescribing || to == PhaseDescribeFailed
	case PhaseDescribing:
		return to == PhaseWeaving || to == PhaseDescribeFailed
	case PhaseWeaving:
		return to == PhaseReady || to == PhaseWeaveFailed
	default:
		return false
	}
}

// State is the single pipeline instance owned by a Controller.
type State struct {
	Phase      Phase  `json:"phase"`
	Generation uint64 `json:"generation"`
	RunID      string `json:"runId,omitempty"`

	Capture    *scene.Capture `json:"-"`
	CapturedAt *time.Time     `json:"capturedAt,omitempty"`

	Description string `json:"description,omitempty"`
	Story       string `json:"story,omitempty"`

	// Error is the dismissable message of the last failed remote call.
	Error     string          `json:"error,omitempty"`
	ErrorKind scene.ErrorKind `json:"errorKind,omitempty"`

	// CameraError is set when sampling the camera failed; the capture view is
	// replaced with a retry affordance instead of a banner.
	CameraError string `json:"cameraError,omitempty"`

	// NotConfigured is the persistent missing-credential condition.
	NotConfigured bool `json:"notConfigured"`
}

// Snapshot is an immutable copy of State published after a transition.
// Version increases by one per published transition.
type Snapshot struct {
	State
	Version uint64 `json:"version"`
}

// HasCapture reports whether the snapshot carries a captured still.
func (s Snapshot) HasCapture() bool {
	return !s.Capture.Empty()
}
