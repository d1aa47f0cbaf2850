// Package mcpsurface exposes the status server's read and trigger
// operations as MCP tools, the way domkeeper and vecbridge expose their
// stores: one small endpoint/decode pair registered per tool on a shared
// *mcp.Server, so an agent can drive webwatch the same way the HTTP API
// does instead of only scraping it.
package mcpsurface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/webwatch/internal/scheduler"
)

// inputSchema builds a minimal JSON Schema object, matching the shape every
// tool in the pack declares its arguments with.
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type endpoint func(ctx context.Context, req any) (any, error)

// registerTool wires one endpoint/decode pair onto srv, matching the
// teacher's kit.RegisterMCPTool contract: decode errors and endpoint errors
// both surface as a tool-call error, success marshals the response as the
// tool's text content.
func registerTool(srv *mcp.Server, tool *mcp.Tool, ep endpoint, decode func(*mcp.CallToolRequest) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		resp, err := ep(ctx, decoded)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil
	})
}

// Register adds webwatch_trigger and webwatch_status to srv, backed by the
// same scheduler.Engine the HTTP status surface uses.
func Register(srv *mcp.Server, engine *scheduler.Engine) {
	registerTriggerTool(srv, engine)
	registerStatusTool(srv, engine)
}

type triggerRequest struct {
	WatchID string `json:"watch_id"`
}

func registerTriggerTool(srv *mcp.Server, engine *scheduler.Engine) {
	tool := &mcp.Tool{
		Name:        "webwatch_trigger",
		Description: "Fire an out-of-band run of one watch, bypassing its schedule. Fails if the watch is unknown or already running.",
		InputSchema: inputSchema(map[string]any{
			"watch_id": map[string]any{"type": "string", "description": "The watch id to run"},
		}, []string{"watch_id"}),
	}

	ep := func(ctx context.Context, req any) (any, error) {
		r := req.(*triggerRequest)
		res, err := engine.Trigger(ctx, r.WatchID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"watchId": res.WatchID,
			"success": res.Success,
			"changes": len(res.Changes),
			"ranAt":   res.RanAt,
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r triggerRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.WatchID == "" {
			return nil, errors.New("watch_id is required")
		}
		return &r, nil
	}

	registerTool(srv, tool, ep, decode)
}

func registerStatusTool(srv *mcp.Server, engine *scheduler.Engine) {
	tool := &mcp.Tool{
		Name:        "webwatch_status",
		Description: "List every configured watch with its enabled/busy state and next scheduled run.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	ep := func(ctx context.Context, _ any) (any, error) {
		return engine.List(), nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) { return nil, nil }

	registerTool(srv, tool, ep, decode)
}
