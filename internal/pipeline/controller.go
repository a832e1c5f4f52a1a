// Package pipeline sequences one capture through describe and weave,
// owning the single pipeline state and publishing a snapshot after every
// transition.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/fpang/vision-weaver/internal/metrics"
	"github.com/fpang/vision-weaver/internal/scene"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Camera samples a still from a live stream. capture.Source satisfies it.
type Camera interface {
	Capture() (*scene.Capture, error)
}

// Describer turns a capture into a scene description.
type Describer interface {
	Describe(ctx context.Context, c *scene.Capture) (string, error)
}

// Weaver turns a scene description into a story.
type Weaver interface {
	Weave(ctx context.Context, description string) (string, error)
}

// Config wires a Controller to its stages.
type Config struct {
	Camera    Camera
	Describer Describer
	Weaver    Weaver

	// Configured is false when no API credential was found at startup.
	// CaptureNow is then rejected without touching the camera or network.
	Configured bool
}

// Controller is the pipeline orchestrator. A CaptureNow while a run is in
// flight supersedes that run: its context is cancelled and any result it
// still produces is dropped.
type Controller struct {
	camera     Camera
	describer  Describer
	weaver     Weaver
	configured bool

	baseCtx context.Context
	stop    context.CancelFunc

	// runMu serialises camera sampling so Capture is never called concurrently.
	runMu sync.Mutex

	// pubMu is held across mutate+deliver so observers see snapshots in
	// transition order. Lock order: pubMu, then mu.
	pubMu sync.Mutex

	mu         sync.Mutex
	state      State
	version    uint64
	cancelRun  context.CancelFunc
	subs       map[int]func(Snapshot)
	nextSubID  int

	wg sync.WaitGroup
}

// New creates an idle controller.
func New(cfg Config) *Controller {
	ctx, stop := context.WithCancel(context.Background())
	return &Controller{
		camera:     cfg.Camera,
		describer:  cfg.Describer,
		weaver:     cfg.Weaver,
		configured: cfg.Configured,
		baseCtx:    ctx,
		stop:       stop,
		state: State{
			Phase:         PhaseIdle,
			NotConfigured: !cfg.Configured,
		},
		subs: make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{State: c.state, Version: c.version}
}

// Subscribe registers fn to receive every published snapshot, in order.
// fn runs on the goroutine that made the transition and must not call
// CaptureNow or DismissError. The returned func unregisters fn.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// update applies fn to the state and publishes the result. fn returns false
// to leave the state untouched (stale generation, nothing to change).
func (c *Controller) update(fn func(s *State) bool) bool {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	before := c.state.Phase
	next := c.state
	if !fn(&next) {
		c.mu.Unlock()
		return false
	}
	if next.Phase != before && !isValidTransition(before, next.Phase) {
		c.mu.Unlock()
		log.Warn().
			Str("from", string(before)).
			Str("to", string(next.Phase)).
			Uint64("generation", next.Generation).
			Msg("Rejected invalid pipeline transition")
		return false
	}
	c.state = next
	c.version++
	snap := c.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	return true
}

// updateRun is update restricted to the given generation.
func (c *Controller) updateRun(gen uint64, fn func(s *State)) bool {
	return c.update(func(s *State) bool {
		if s.Generation != gen {
			return false
		}
		fn(s)
		return true
	})
}

// CaptureNow starts a new run: it resets the pipeline, samples the camera and
// hands the still to describe → weave in the background. It returns the new
// run's generation. A camera failure ends the run in DescribeFailed and is
// returned; describe and weave failures are reported through snapshots only.
func (c *Controller) CaptureNow(ctx context.Context) (uint64, error) {
	if !c.configured {
		log.Warn().Msg("Capture rejected: Gemini API key is not configured")
		return 0, scene.NewError(scene.KindConfiguration, "capture", scene.ErrNotConfigured.Message, nil)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.runMu.Lock()
	defer c.runMu.Unlock()

	runCtx, cancel := context.WithCancel(c.baseCtx)
	runID := uuid.NewString()
	var gen uint64
	c.update(func(s *State) bool {
		if c.cancelRun != nil {
			c.cancelRun()
		}
		c.cancelRun = cancel
		gen = s.Generation + 1
		*s = State{Phase: PhaseIdle, Generation: gen, RunID: runID}
		return true
	})

	logger := log.With().Str("run_id", runID).Uint64("generation", gen).Logger()
	logger.Info().Msg("Capture requested, starting new pipeline run")

	capture, err := c.camera.Capture()
	if err != nil {
		cancel()
		msg := err.Error()
		kind := scene.KindOf(err)
		if kind == "" {
			kind = scene.KindDevice
		}
		c.updateRun(gen, func(s *State) {
			s.Phase = PhaseDescribeFailed
			s.CameraError = msg
			s.ErrorKind = kind
		})
		logger.Error().Err(err).Str("kind", string(kind)).Msg("Camera capture failed")
		recordRun(PhaseDescribeFailed, 0)
		return gen, err
	}

	takenAt := capture.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}
	c.updateRun(gen, func(s *State) {
		s.Phase = PhaseDescribing
		s.Capture = capture
		s.CapturedAt = &takenAt
	})
	logger.Info().Str("capture", capture.String()).Msg("Capture taken, describing scene")

	c.wg.Add(1)
	go c.run(runCtx, cancel, gen, capture)
	return gen, nil
}

// run performs describe then weave for one generation. Every write is
// conditional on the generation still being current.
func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, gen uint64, capture *scene.Capture) {
	defer c.wg.Done()
	defer cancel()

	start := time.Now()
	logger := log.With().Uint64("generation", gen).Logger()

	description, err := c.describer.Describe(ctx, capture)
	if err != nil {
		if c.fail(gen, PhaseDescribeFailed, err) {
			logger.Error().Err(err).Msg("Scene description failed")
			recordRun(PhaseDescribeFailed, time.Since(start))
		} else {
			logger.Debug().Err(err).Msg("Dropped describe failure from superseded run")
		}
		return
	}

	if !c.updateRun(gen, func(s *State) {
		s.Description = description
		s.Phase = PhaseWeaving
	}) {
		logger.Debug().Msg("Dropped description from superseded run")
		return
	}

	story, err := c.weaver.Weave(ctx, description)
	if err != nil {
		if c.fail(gen, PhaseWeaveFailed, err) {
			logger.Error().Err(err).Msg("Story weaving failed")
			recordRun(PhaseWeaveFailed, time.Since(start))
		} else {
			logger.Debug().Err(err).Msg("Dropped weave failure from superseded run")
		}
		return
	}

	if !c.updateRun(gen, func(s *State) {
		s.Story = story
		s.Error = ""
		s.ErrorKind = ""
		s.Phase = PhaseReady
	}) {
		logger.Debug().Msg("Dropped story from superseded run")
		return
	}

	logger.Info().Dur("duration", time.Since(start)).Msg("Pipeline run complete")
	recordRun(PhaseReady, time.Since(start))
}

// fail moves the run into a failed phase. A describe failure clears the
// description; a weave failure keeps it and clears the story.
func (c *Controller) fail(gen uint64, phase Phase, err error) bool {
	kind := scene.KindOf(err)
	if kind == "" {
		kind = scene.KindRequest
	}
	msg := err.Error()
	return c.updateRun(gen, func(s *State) {
		s.Phase = phase
		s.Story = ""
		if phase == PhaseDescribeFailed {
			s.Description = ""
		}
		s.Error = msg
		s.ErrorKind = kind
	})
}

// DismissError clears the current run's error banner. The missing-credential
// condition and camera errors are not dismissable.
func (c *Controller) DismissError() {
	c.update(func(s *State) bool {
		if s.Error == "" {
			return false
		}
		s.Error = ""
		s.ErrorKind = ""
		return true
	})
}

// Wait blocks until every in-flight run has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// WaitContext is Wait bounded by ctx. If ctx ends first the in-flight run
// is cancelled and waited for, and ctx's error is returned.
func (c *Controller) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	c.mu.Lock()
	if c.cancelRun != nil {
		c.cancelRun()
	}
	c.mu.Unlock()
	<-done
	return ctx.Err()
}

// Close cancels any in-flight run and waits for it to exit.
func (c *Controller) Close() {
	c.stop()
	c.wg.Wait()
}

func recordRun(phase Phase, d time.Duration) {
	metrics.New(metrics.Namespace).
		Dimension("Result", string(phase)).
		Duration("PipelineRunMs", d).
		Count("PipelineRuns").
		Flush()
}
