package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fpang/vision-weaver/internal/capture"
	"github.com/fpang/vision-weaver/internal/cli"
	"github.com/fpang/vision-weaver/internal/logging"
	"github.com/fpang/vision-weaver/internal/metrics"
	"github.com/fpang/vision-weaver/internal/narration"
	"github.com/fpang/vision-weaver/internal/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	portFlag int
	ttsFlag  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI",
	Long: `Serve starts a local web server with the capture view, the scene
description, the story and narration controls.

With the default "browser" camera the page streams webcam frames to the
server. A device path reads a local camera through ffmpeg, and an image file
acts as a still camera.`,
	Run: runServe,
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	cmd.Flags().StringVar(&ttsFlag, "tts", "", `Speech binary for narration, or "off" (default $VISION_WEAVER_TTS or the first of espeak-ng, espeak, say, spd-say)`)
}

func init() {
	addServeFlags(serveCmd)
}

// openSpeaker resolves the narration capability. Narration is optional: a
// missing synthesizer leaves the narrator unavailable.
func openSpeaker() (narration.Speaker, string) {
	setting := ttsFlag
	if setting == "" {
		setting = os.Getenv("VISION_WEAVER_TTS")
	}
	sp, err := narration.DetectSpeaker(setting)
	if err != nil {
		log.Warn().Err(err).Msg("Narration unavailable")
		return nil, "none"
	}
	return sp, sp.Path
}

func runServe(cmd *cobra.Command, args []string) {
	startedAt := time.Now()
	setup("serve", os.Stdout)

	ctx := context.Background()
	stages := cli.InitStages(ctx, resolveModel(), validateKeyFlag)

	cameraSetting := resolveCamera("browser")
	source, err := capture.Open(cameraSetting)
	if err != nil {
		log.Fatal().Err(err).Str("camera", cameraSetting).Msg("Invalid camera setting")
	}

	speaker, speakerName := openSpeaker()
	narrator := narration.New(speaker)

	ctrl := pipeline.New(pipeline.Config{
		Camera:     source,
		Describer:  stages.Describer,
		Weaver:     stages.Weaver,
		Configured: stages.Configured,
	})
	unfollow := ctrl.Subscribe(func(snap pipeline.Snapshot) {
		narrator.SetStory(snap.Story)
	})

	srv, err := newServer(ctrl, narrator, source)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to access embedded frontend")
	}

	addr := fmt.Sprintf(":%d", portFlag)
	ln, err := bindThenOpen(ctx, addr, source)
	if err != nil {
		log.Fatal().Err(err).Str("addr", addr).Msg("Failed to listen")
	}
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logging.NewStartupLogger("serve").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Resource("model", stages.Model).
		Resource("camera", capture.StatusOf(source).Mode).
		Resource("speech", speakerName).
		Feature("configured", stages.Configured).
		Feature("narration", narrator.Available()).
		Feature("metrics", metrics.Enabled()).
		Config("port", strconv.Itoa(portFlag)).
		InitDuration(time.Since(startedAt)).
		Log()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}()

	log.Info().Int("port", portFlag).Msg("Starting web server")
	fmt.Printf("\n  Vision Weaver UI: http://localhost:%d\n\n", portFlag)

	err = serveThenRelease(httpSrv, ln, func() {
		unfollow()
		narrator.Stop()
		ctrl.Close()
		if err := source.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to release camera")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Stopped")
}

// bindThenOpen binds addr, then starts a local camera. A bind failure leaves
// the camera closed. The browser source opens when the page connects, and a
// local camera that fails to open can be retried from the UI.
func bindThenOpen(ctx context.Context, addr string, source capture.Source) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if _, browser := source.(*capture.PushSource); !browser {
		if err := source.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("Camera not available; use the retry button to try again")
		}
	}
	return ln, nil
}

// serveThenRelease serves on ln until the server stops, then runs release
// whether or not serving failed.
func serveThenRelease(srv *http.Server, ln net.Listener, release func()) error {
	err := srv.Serve(ln)
	release()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
