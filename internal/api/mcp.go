package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/tweaker/internal/store"
)

const parametersURI = "tweaker://parameters"

// NewMCPServer creates an MCP server exposing the parameter store.
func NewMCPServer(st *store.Store) *server.MCPServer {
	s := server.NewMCPServer(
		"tweaker",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("tweaker holds live tuning parameters. Changes are pushed to the connected consumer immediately."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_parameters",
			mcp.WithDescription("List every parameter with its kind, value and step increment, in registration order."),
		),
		mcpListParameters(st),
	)

	s.AddTool(
		mcp.NewTool("get_parameter",
			mcp.WithDescription("Read one parameter."),
			mcp.WithString("name", mcp.Description("Parameter name"), mcp.Required()),
		),
		mcpGetParameter(st),
	)

	s.AddTool(
		mcp.NewTool("set_parameter",
			mcp.WithDescription("Set a parameter. The value is coerced into the parameter's kind; booleans are true only for the literal True."),
			mcp.WithString("name", mcp.Description("Parameter name"), mcp.Required()),
			mcp.WithString("value", mcp.Description("New value as text"), mcp.Required()),
		),
		mcpSetParameter(st),
	)

	s.AddResource(
		mcp.NewResource(
			parametersURI,
			"Parameters",
			mcp.WithResourceDescription("Current parameter values as a JSON object in registration order"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceParameters(st),
	)

	return s
}

func mcpListParameters(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		views := make([]FieldView, 0, st.Len())
		for f := range st.Fields() {
			views = append(views, viewOf(f))
		}
		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal parameters: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetParameter(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		f, ok := st.Field(name)
		if !ok {
			return mcpError(fmt.Sprintf("unknown parameter %q", name)), nil
		}
		b, err := json.Marshal(viewOf(f))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal parameter: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetParameter(st *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		raw, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		v, err := st.Set(name, raw)
		if err != nil {
			if errors.Is(err, store.ErrUnknownName) {
				return mcpError(fmt.Sprintf("unknown parameter %q", name)), nil
			}
			return mcpError(fmt.Sprintf("failed to set parameter: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", name, v)), nil
	}
}

func mcpResourceParameters(st *store.Store) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(st.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parameters: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
