package main

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/fpang/vision-weaver/internal/capture"
	"github.com/fpang/vision-weaver/internal/narration"
	"github.com/fpang/vision-weaver/internal/pipeline"
	"github.com/fpang/vision-weaver/internal/scene"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
)

//go:embed all:frontend_dist
var frontendFS embed.FS

// server exposes one pipeline, its narrator and its camera over HTTP.
type server struct {
	ctrl     *pipeline.Controller
	narrator *narration.Narrator
	source   capture.Source
	frontend fs.FS

	// cameraPoll is how often /api/events re-checks the camera status,
	// which changes without a pipeline transition.
	cameraPoll time.Duration
}

func newServer(ctrl *pipeline.Controller, narrator *narration.Narrator, source capture.Source) (*server, error) {
	frontend, err := fs.Sub(frontendFS, "frontend_dist")
	if err != nil {
		return nil, err
	}
	return &server{
		ctrl:       ctrl,
		narrator:   narrator,
		source:     source,
		frontend:   frontend,
		cameraPoll: time.Second,
	}, nil
}

// statePayload is the combined view rendered by the UI.
type statePayload struct {
	Pipeline  pipeline.Snapshot `json:"pipeline"`
	Narration narration.State   `json:"narration"`
	Camera    capture.Status    `json:"camera"`
}

func (s *server) state() statePayload {
	return statePayload{
		Pipeline:  s.ctrl.Snapshot(),
		Narration: s.narrator.State(),
		Camera:    capture.StatusOf(s.source),
	}
}

// routes builds the full handler. Websocket endpoints sit outside the gzip
// wrapper because the upgrade needs the raw connection.
func (s *server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/api/state", s.handleState)
	api.HandleFunc("/api/capture", s.handleCapture)
	api.HandleFunc("/api/capture/image", s.handleCaptureImage)
	api.HandleFunc("/api/narration/toggle", s.handleNarrationToggle)
	api.HandleFunc("/api/error/dismiss", s.handleErrorDismiss)
	api.HandleFunc("/api/camera/start", s.handleCameraStart)
	api.HandleFunc("/api/camera/stop", s.handleCameraStop)
	api.Handle("/", s.frontendHandler())

	root := http.NewServeMux()
	root.HandleFunc("/api/events", s.handleEvents)
	root.HandleFunc("/api/camera/stream", s.handleCameraStream)
	root.Handle("/", gzhttp.GzipHandler(api))

	return withLogging(withCORS(root))
}

// GET /api/state
func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	respondJSON(w, http.StatusOK, s.state())
}

// POST /api/capture
func (s *server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	gen, err := s.ctrl.CaptureNow(r.Context())
	if err != nil {
		var se *scene.Error
		switch {
		case scene.IsKind(err, scene.KindConfiguration):
			httpError(w, http.StatusServiceUnavailable, err.Error())
		case errors.As(err, &se) && se.Camera():
			respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error": se.Message,
				"state": s.state(),
			})
		default:
			log.Error().Err(err).Msg("Capture failed")
			httpError(w, http.StatusInternalServerError, "capture failed")
		}
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"generation": gen,
		"state":      s.state(),
	})
}

// GET /api/capture/image
func (s *server) handleCaptureImage(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	snap := s.ctrl.Snapshot()
	if !snap.HasCapture() {
		httpError(w, http.StatusNotFound, "no capture")
		return
	}
	w.Header().Set("Content-Type", snap.Capture.MIMEType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(snap.Capture.Data)
}

// POST /api/narration/toggle
func (s *server) handleNarrationToggle(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.narrator.Toggle()
	respondJSON(w, http.StatusOK, s.state())
}

// POST /api/error/dismiss
func (s *server) handleErrorDismiss(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.ctrl.DismissError()
	respondJSON(w, http.StatusOK, s.state())
}

// POST /api/camera/start
func (s *server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.source.Start(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Camera start failed")
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error": cameraMessage(err),
			"state": s.state(),
		})
		return
	}
	respondJSON(w, http.StatusOK, s.state())
}

// POST /api/camera/stop
func (s *server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.source.Stop(); err != nil {
		log.Warn().Err(err).Msg("Camera stop failed")
	}
	respondJSON(w, http.StatusOK, s.state())
}

// cameraMessage is the user-facing text of a camera error.
func cameraMessage(err error) string {
	var se *scene.Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}

// frontendHandler serves the embedded UI with an index.html fallback.
func (s *server) frontendHandler() http.Handler {
	fileServer := http.FileServer(http.FS(s.frontend))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Security headers
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' blob: data:; media-src 'self' blob:; style-src 'self' 'unsafe-inline'; connect-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		path := r.URL.Path
		if strings.HasPrefix(path, "/api/") {
			httpError(w, http.StatusNotFound, "not found")
			return
		}
		if path != "/" {
			f, err := s.frontend.Open(strings.TrimPrefix(path, "/"))
			if err != nil {
				r.URL.Path = "/"
			} else {
				f.Close()
			}
		}
		fileServer.ServeHTTP(w, r)
	})
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only allow localhost origins
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
