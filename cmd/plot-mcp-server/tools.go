package main

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/plot"
)

type renderInput struct {
	Code string `json:"code" jsonschema:"matplotlib code; plt and np are already imported"`
}

type extractInput struct {
	Text string `json:"text" jsonschema:"text that may contain plotting code"`
}

type plotBlock struct {
	Code  string `json:"code"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Kind  string `json:"kind"`
}

type extractOutput struct {
	Blocks []plotBlock `json:"blocks"`
}

func newServer(executor plot.Executor) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "nexmath-plot", Version: "v1.0.0"},
		nil,
	)
	sanitizer := plot.NewSanitizer()

	mcp.AddTool(server, &mcp.Tool{
		Name:        "render_plot",
		Description: "Renders matplotlib code to a PNG image",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in renderInput) (*mcp.CallToolResult, any, error) {
		return renderPlot(ctx, executor, sanitizer, in.Code), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "extract_plots",
		Description: "Finds the plotting code blocks in a text, fenced or not",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in extractInput) (*mcp.CallToolResult, extractOutput, error) {
		out := extractOutput{Blocks: []plotBlock{}}
		for b := range plot.Extract(in.Text) {
			out.Blocks = append(out.Blocks, plotBlock{Code: b.Code, Start: b.Start, End: b.End, Kind: b.Kind.String()})
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("found %d plotting block(s)", len(out.Blocks))},
			},
		}, out, nil
	})

	return server
}

func renderPlot(ctx context.Context, executor plot.Executor, sanitizer plot.Sanitizer, code string) *mcp.CallToolResult {
	if code == "" {
		return toolError("code is required")
	}
	res := executor.Execute(ctx, sanitizer.Sanitize(code))
	if !res.OK() {
		msg := "no image was produced"
		if res.TimedOut {
			msg = "execution timed out"
		}
		if res.Stderr != "" {
			msg += ": " + debug.Truncate(res.Stderr, 2000)
		}
		return toolError(msg)
	}

	data, err := base64.StdEncoding.DecodeString(res.Image)
	if err != nil {
		return toolError("invalid image data: " + err.Error())
	}
	content := []mcp.Content{&mcp.ImageContent{Data: data, MIMEType: "image/png"}}
	if res.Stdout != "" {
		content = append(content, &mcp.TextContent{Text: res.Stdout})
	}
	return &mcp.CallToolResult{Content: content}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
