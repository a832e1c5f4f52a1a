package main

import (
	"context"
	"os"

	"github.com/fpang/vision-weaver/internal/capture"
	"github.com/fpang/vision-weaver/internal/cli"
	"github.com/fpang/vision-weaver/internal/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the describe and weave stages as MCP tools over stdio",
	Long: `MCP starts a Model Context Protocol server on stdin/stdout exposing two tools:

  describe_scene  describe the objects in an image file
  weave_story     write a short whimsical story from a scene description`,
	Run: runMCP,
}

type describeSceneInput struct {
	Path string `json:"path" jsonschema:"path to a JPEG, PNG or WebP image file"`
}

type describeSceneOutput struct {
	Description string `json:"description"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

type weaveStoryInput struct {
	Description string `json:"description" jsonschema:"scene description to base the story on; may be vague or empty"`
}

type weaveStoryOutput struct {
	Story string `json:"story"`
}

// newMCPServer registers the two tools on a new MCP server.
func newMCPServer(describer pipeline.Describer, weaver pipeline.Weaver) *mcp.Server {
	version := commitHash
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "vision-weaver", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "describe_scene",
		Description: "List the main objects visible in an image file, as a short description.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in describeSceneInput) (*mcp.CallToolResult, describeSceneOutput, error) {
		path, err := cli.ResolveImage(in.Path)
		if err != nil {
			return nil, describeSceneOutput{}, err
		}
		src := capture.NewStillSource(path)
		if err := src.Start(ctx); err != nil {
			return nil, describeSceneOutput{}, err
		}
		defer src.Stop()

		still, err := src.Capture()
		if err != nil {
			return nil, describeSceneOutput{}, err
		}
		description, err := describer.Describe(ctx, still)
		if err != nil {
			return nil, describeSceneOutput{}, err
		}
		return nil, describeSceneOutput{Description: description, Width: still.Width, Height: still.Height}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "weave_story",
		Description: "Write a short, whimsical, all-ages story (2-3 paragraphs) from a scene description.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in weaveStoryInput) (*mcp.CallToolResult, weaveStoryOutput, error) {
		story, err := weaver.Weave(ctx, in.Description)
		if err != nil {
			return nil, weaveStoryOutput{}, err
		}
		return nil, weaveStoryOutput{Story: story}, nil
	})

	return server
}

func runMCP(cmd *cobra.Command, args []string) {
	// stdout carries the protocol, so metrics go to stderr with the logs.
	setup("mcp", os.Stderr)

	ctx := context.Background()
	stages := cli.InitStages(ctx, resolveModel(), validateKeyFlag)
	cli.RequireConfigured(stages)

	log.Info().Str("model", stages.Model).Msg("Starting MCP server on stdio")
	server := newMCPServer(stages.Describer, stages.Weaver)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}
