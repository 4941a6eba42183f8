package desk

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/copydesk/kit"
)

// RegisterMCP registers the editorial tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerListSubmissions(srv)
	s.registerGetDraft(srv)
	s.registerUpdateDraft(srv)
	s.registerRestoreVersion(srv)
	s.registerPublishDraft(srv)
	s.registerRunLog(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// --- submissions ---

func (s *Service) registerListSubmissions(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit,omitempty"`
	}

	tool := &mcp.Tool{
		Name:        "copydesk_list_submissions",
		Description: "List recent submissions. Superseded duplicates are excluded.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.ListSubmissions(ctx, p.Limit)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- drafts ---

func (s *Service) registerGetDraft(srv *mcp.Server) {
	type req struct {
		DraftID string `json:"draft_id"`
	}

	tool := &mcp.Tool{
		Name:        "copydesk_get_draft",
		Description: "Get a draft with its rich content and version history.",
		InputSchema: inputSchema(map[string]any{
			"draft_id": map[string]any{"type": "string", "description": "Draft ID"},
		}, []string{"draft_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.DraftDetail(ctx, p.DraftID)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Service) registerUpdateDraft(srv *mcp.Server) {
	type req struct {
		DraftID     string `json:"draft_id"`
		RichContent string `json:"rich_content"`
		EditorID    string `json:"editor_id,omitempty"`
	}

	tool := &mcp.Tool{
		Name:        "copydesk_update_draft",
		Description: "Apply an edit to a draft. Identical content is a no-op and mints no version.",
		InputSchema: inputSchema(map[string]any{
			"draft_id":     map[string]any{"type": "string", "description": "Draft ID"},
			"rich_content": map[string]any{"type": "string", "description": "Editor HTML with data-placeholder images"},
			"editor_id":    map[string]any{"type": "string", "description": "Acting editor, recorded on the snapshot"},
		}, []string{"draft_id", "rich_content"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		version, changed, err := s.ApplyEdit(ctx, p.DraftID, p.RichContent)
		if err != nil {
			return nil, err
		}
		return map[string]any{"version": version, "changed": changed}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		res := &kit.MCPDecodeResult{Request: &p}
		if p.EditorID != "" {
			res.EnrichCtx = func(ctx context.Context) context.Context {
				return kit.WithEditorID(ctx, p.EditorID)
			}
		}
		return res, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Service) registerRestoreVersion(srv *mcp.Server) {
	type req struct {
		DraftID string `json:"draft_id"`
		Version int    `json:"version"`
	}

	tool := &mcp.Tool{
		Name:        "copydesk_restore_version",
		Description: "Restore an old snapshot as a new version. History is kept, nothing is rewound.",
		InputSchema: inputSchema(map[string]any{
			"draft_id": map[string]any{"type": "string", "description": "Draft ID"},
			"version":  map[string]any{"type": "integer", "description": "Version number to restore"},
		}, []string{"draft_id", "version"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		version, err := s.Restore(ctx, p.DraftID, p.Version)
		if err != nil {
			return nil, err
		}
		return map[string]any{"version": version}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Service) registerPublishDraft(srv *mcp.Server) {
	type req struct {
		DraftID string `json:"draft_id"`
	}

	tool := &mcp.Tool{
		Name:        "copydesk_publish_draft",
		Description: "Render a draft to final HTML and publish it to the configured site.",
		InputSchema: inputSchema(map[string]any{
			"draft_id": map[string]any{"type": "string", "description": "Draft ID"},
		}, []string{"draft_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		postID, err := s.Publish(ctx, p.DraftID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"post_id": postID}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- runs ---

func (s *Service) registerRunLog(srv *mcp.Server) {
	type req struct {
		RunID string `json:"run_id"`
	}

	tool := &mcp.Tool{
		Name:        "copydesk_run_log",
		Description: "Get the task log of one ingest run.",
		InputSchema: inputSchema(map[string]any{
			"run_id": map[string]any{"type": "string", "description": "Run ID minted at batch start"},
		}, []string{"run_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.RunLog(ctx, p.RunID)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
