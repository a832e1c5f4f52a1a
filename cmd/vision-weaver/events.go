package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/fpang/vision-weaver/internal/capture"
	"github.com/fpang/vision-weaver/internal/narration"
	"github.com/fpang/vision-weaver/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// maxFrameBytes bounds one browser frame (a 1280x720 JPEG is ~100-300 KB,
// a data URL a third larger).
const maxFrameBytes = 8 << 20

const writeTimeout = 5 * time.Second

// GET /api/events
//
// Pushes the combined state after every pipeline or narration transition and
// whenever the camera status changes. Bursts of transitions are coalesced;
// every message is a complete state, so the latest one is always correct.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Events websocket upgrade failed")
		return
	}
	defer c.CloseNow()

	// Clients never send on this socket; CloseRead handles control frames
	// and cancels ctx when the client goes away.
	ctx := c.CloseRead(r.Context())

	notify := make(chan struct{}, 1)
	signal := func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
	defer s.ctrl.Subscribe(func(pipeline.Snapshot) { signal() })()
	defer s.narrator.Subscribe(func(narration.State) { signal() })()

	var lastCamera capture.Status
	send := func() error {
		st := s.state()
		lastCamera = st.Camera
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return wsjson.Write(writeCtx, c, st)
	}

	if err := send(); err != nil {
		return
	}

	ticker := time.NewTicker(s.cameraPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case <-notify:
			if err := send(); err != nil {
				log.Debug().Err(err).Msg("Events client gone")
				return
			}
		case <-ticker.C:
			if capture.StatusOf(s.source) == lastCamera {
				continue
			}
			if err := send(); err != nil {
				log.Debug().Err(err).Msg("Events client gone")
				return
			}
		}
	}
}

// cameraReport is a text message from the page reporting a getUserMedia failure.
type cameraReport struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// GET /api/camera/stream
//
// Receives webcam frames from the page: binary messages are encoded images,
// text messages are data URLs or a cameraReport.
func (s *server) handleCameraStream(w http.ResponseWriter, r *http.Request) {
	push, ok := s.source.(*capture.PushSource)
	if !ok {
		httpError(w, http.StatusNotFound, "camera is not browser-driven")
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Camera websocket upgrade failed")
		return
	}
	defer c.CloseNow()
	c.SetReadLimit(maxFrameBytes)

	ctx := r.Context()
	if err := push.Start(ctx); err != nil {
		c.Close(websocket.StatusInternalError, "camera unavailable")
		return
	}
	log.Info().Msg("Browser camera connected")

	frames := 0
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				log.Info().Int("frames", frames).Msg("Browser camera disconnected")
			} else {
				log.Warn().Err(err).Int("frames", frames).Msg("Browser camera stream ended")
			}
			return
		}

		if err := ingestFrame(push, typ, data); err != nil {
			log.Debug().Err(err).Msg("Dropped camera message")
			continue
		}
		frames++
	}
}

// ingestFrame applies one camera stream message to the push source.
func ingestFrame(push *capture.PushSource, typ websocket.MessageType, data []byte) error {
	if typ == websocket.MessageBinary {
		return push.Push(data, http.DetectContentType(data))
	}

	if bytes.HasPrefix(data, []byte("data:")) {
		return push.PushDataURL(string(data))
	}

	var report cameraReport
	if err := json.Unmarshal(data, &report); err != nil {
		return err
	}
	if report.Error == "" {
		return errors.New("camera report without error name")
	}
	push.Fail(report.Error, report.Message)
	return nil
}
