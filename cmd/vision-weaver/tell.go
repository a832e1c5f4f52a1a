package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpang/vision-weaver/internal/capture"
	"github.com/fpang/vision-weaver/internal/cli"
	"github.com/fpang/vision-weaver/internal/logging"
	"github.com/fpang/vision-weaver/internal/narration"
	"github.com/fpang/vision-weaver/internal/pipeline"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	imageFlag       string
	pickFlag        bool
	speakFlag       bool
	interactiveFlag bool
	wrapFlag        int
)

var tellCmd = &cobra.Command{
	Use:   "tell",
	Short: "Capture once and print the scene description and story",
	Long: `Tell runs one capture → describe → weave pass in the terminal.

The still comes from --image, a file chosen with --pick, or a local camera
given with --camera. With --interactive, each Enter captures again.

Examples:
  vision-weaver tell --image ./desk.jpg
  vision-weaver tell --pick --speak
  vision-weaver tell --camera /dev/video0 --interactive`,
	Run: runTell,
}

func init() {
	tellCmd.Flags().StringVarP(&imageFlag, "image", "i", "", "Image file to use as the capture")
	tellCmd.Flags().BoolVar(&pickFlag, "pick", false, "Choose the image with a native file dialog")
	tellCmd.Flags().BoolVar(&speakFlag, "speak", false, "Read the story aloud")
	tellCmd.Flags().BoolVar(&interactiveFlag, "interactive", false, "Capture again each time Enter is pressed")
	tellCmd.Flags().IntVar(&wrapFlag, "wrap", 80, "Wrap printed text at this width (0 = no wrapping)")
	tellCmd.Flags().StringVar(&ttsFlag, "tts", "", `Speech binary for --speak (default $VISION_WEAVER_TTS or the first synthesizer found)`)
}

// pickImage opens a native file dialog for a still image.
func pickImage() (string, error) {
	return zenity.SelectFile(
		zenity.Title("Select an image to tell a story about"),
		zenity.FileFilters{
			{
				Name:     "Images",
				Patterns: []string{"*.jpg", "*.jpeg", "*.png", "*.webp"},
			},
		},
	)
}

// tellSource resolves where tell takes its still from.
func tellSource() (capture.Source, error) {
	switch {
	case pickFlag:
		path, err := pickImage()
		if err != nil {
			return nil, err
		}
		return capture.NewStillSource(cli.ValidateAndResolveImage(path)), nil
	case imageFlag != "":
		return capture.NewStillSource(cli.ValidateAndResolveImage(imageFlag)), nil
	}

	setting := resolveCamera("")
	if setting == "" || setting == "browser" {
		return nil, errors.New("tell needs --image, --pick or a local --camera; the browser camera is only available in serve")
	}
	return capture.Open(setting)
}

func runTell(cmd *cobra.Command, args []string) {
	startedAt := time.Now()
	setup("tell", os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stages := cli.InitStages(ctx, resolveModel(), validateKeyFlag)
	cli.RequireConfigured(stages)

	source, err := tellSource()
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			log.Info().Msg("No image selected")
			return
		}
		log.Fatal().Err(err).Msg("No camera to capture from")
	}
	if err := source.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to open camera")
	}
	defer source.Stop()

	var speaker narration.Speaker
	speakerName := "none"
	if speakFlag {
		speaker, speakerName = openSpeaker()
	}
	narrator := narration.New(speaker)
	defer narrator.Stop()

	ctrl := pipeline.New(pipeline.Config{
		Camera:     source,
		Describer:  stages.Describer,
		Weaver:     stages.Weaver,
		Configured: stages.Configured,
	})
	defer ctrl.Close()
	defer ctrl.Subscribe(func(snap pipeline.Snapshot) { narrator.SetStory(snap.Story) })()

	logging.NewStartupLogger("tell").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Resource("model", stages.Model).
		Resource("camera", capture.StatusOf(source).Mode).
		Resource("speech", speakerName).
		Feature("narration", narrator.Available()).
		Feature("interactive", interactiveFlag).
		InitDuration(time.Since(startedAt)).
		Log()

	in := bufio.NewReader(os.Stdin)
	for {
		if err := tellOnce(ctx, ctrl, narrator); err != nil {
			log.Error().Err(err).Msg("Capture failed")
		}
		if !interactiveFlag || ctx.Err() != nil || !cli.PromptForCapture(in, os.Stdout) {
			return
		}
	}
}

// tellOnce runs one capture to completion, prints the result and waits for
// narration to finish.
func tellOnce(ctx context.Context, ctrl *pipeline.Controller, narrator *narration.Narrator) error {
	start := time.Now()
	if _, err := ctrl.CaptureNow(ctx); err != nil {
		return err
	}
	if err := ctrl.WaitContext(ctx); err != nil {
		return err
	}

	snap := ctrl.Snapshot()
	fmt.Printf("\nCaptured %s\n", snap.Capture)
	if snap.Description != "" {
		fmt.Printf("\nScene:\n%s\n", cli.WrapText(snap.Description, wrapFlag))
	}
	switch snap.Phase {
	case pipeline.PhaseDescribeFailed, pipeline.PhaseWeaveFailed:
		return errors.New(snap.Error)
	}
	fmt.Printf("\nStory:\n%s\n\n(woven in %s)\n", cli.WrapText(snap.Story, wrapFlag), cli.FormatDurationShort(time.Since(start)))

	waitForNarration(ctx, narrator)
	return nil
}

// waitForNarration blocks while the narrator is speaking. Cancelling ctx
// stops narration.
func waitForNarration(ctx context.Context, narrator *narration.Narrator) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for narrator.State().Status == narration.StatusSpeaking {
		select {
		case <-ctx.Done():
			narrator.Stop()
			return
		case <-ticker.C:
		}
	}
}
