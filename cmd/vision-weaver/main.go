package main

import (
	"io"
	"os"

	"github.com/fpang/vision-weaver/internal/chat"
	"github.com/fpang/vision-weaver/internal/logging"
	"github.com/fpang/vision-weaver/internal/metrics"
	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X main.commitHash=... -X main.buildTime=...".
var (
	commitHash string
	buildTime  string
)

// CLI flags
var (
	modelFlag       string
	cameraFlag      string
	validateKeyFlag bool
)

// rootCmd is the main Cobra command. With no subcommand it runs serve.
var rootCmd = &cobra.Command{
	Use:   "vision-weaver",
	Short: "Turn webcam snapshots into narrated stories",
	Long: `Vision Weaver captures a still from a camera, asks Gemini to describe the
scene, weaves a short whimsical story from the description and reads it
aloud.

The default command starts a local web UI that uses the browser's webcam.

Examples:
  vision-weaver
  vision-weaver serve --port 9090
  vision-weaver serve --camera /dev/video0
  vision-weaver tell --image ./desk.jpg
  vision-weaver mcp`,
	Run: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Gemini model to use (default $GEMINI_MODEL or "+chat.DefaultModelName+")")
	rootCmd.PersistentFlags().StringVar(&cameraFlag, "camera", "", `Camera: "browser", a device such as /dev/video0, or an image file (default $VISION_WEAVER_CAMERA)`)
	rootCmd.PersistentFlags().BoolVar(&validateKeyFlag, "validate-key", false, "Probe the API key with a minimal request at startup")

	addServeFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, tellCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup initializes logging and, when VISION_WEAVER_METRICS=1, EMF metrics
// written to metricsOut.
func setup(service string, metricsOut io.Writer) {
	logging.Init()
	if os.Getenv("VISION_WEAVER_METRICS") == "1" {
		metrics.Init(service, metricsOut)
	}
}

// resolveModel returns the --model flag or the environment default.
func resolveModel() string {
	if modelFlag != "" {
		return modelFlag
	}
	return chat.GetModelName()
}

// resolveCamera returns the --camera flag or $VISION_WEAVER_CAMERA, falling
// back to def.
func resolveCamera(def string) string {
	if cameraFlag != "" {
		return cameraFlag
	}
	return logging.EnvOrDefault("VISION_WEAVER_CAMERA", def)
}
