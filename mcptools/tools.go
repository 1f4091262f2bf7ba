// Package mcptools exposes folio's dictionary, scrubber, word counter and
// save state as MCP tools and chapter contents as MCP resources.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/odvcencio/folio/assist"
	"github.com/odvcencio/folio/autosave"
	"github.com/odvcencio/folio/prose"
	"github.com/odvcencio/folio/store"
	"github.com/odvcencio/folio/suggest"
)

// Access is what the tools read from the running application.
type Access interface {
	// SaveState returns the autosave state of an open chapter.
	SaveState(chapterID string) (autosave.State, bool)
	// Chapter returns a stored chapter.
	Chapter(ctx context.Context, id string) (store.Chapter, error)
}

// RevisionReader is implemented by stores that keep revisions.
type RevisionReader interface {
	Revisions(ctx context.Context, id string) ([]store.Revision, error)
}

// ToolDef describes an MCP tool.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Handler     func(ctx context.Context, params json.RawMessage) (any, error)
}

// ResourceDef describes an MCP resource template.
type ResourceDef struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
	Handler     func(ctx context.Context, uri string) (string, error)
}

// Registry holds all folio tools and resources.
type Registry struct {
	access    Access
	dict      *suggest.Dictionary
	tools     []ToolDef
	resources []ResourceDef
}

// NewRegistry creates a registry. access may be nil, which leaves out the
// tools that need a running application.
func NewRegistry(dict *suggest.Dictionary, access Access) *Registry {
	if dict == nil {
		dict = suggest.DefaultDictionary()
	}
	r := &Registry{access: access, dict: dict}
	r.registerTools()
	r.registerResources()
	return r
}

// Tools returns all registered tools.
func (r *Registry) Tools() []ToolDef { return r.tools }

// Resources returns all registered resources.
func (r *Registry) Resources() []ResourceDef { return r.resources }

// HandleTool dispatches a tool call by name.
func (r *Registry) HandleTool(ctx context.Context, name string, params json.RawMessage) (any, error) {
	for _, t := range r.tools {
		if t.Name == name {
			return t.Handler(ctx, params)
		}
	}
	return nil, fmt.Errorf("unknown tool: %s", name)
}

// HandleResource dispatches a resource read by URI.
func (r *Registry) HandleResource(ctx context.Context, uri string) (string, error) {
	for _, res := range r.resources {
		if matchResourceURI(res.URI, uri) {
			return res.Handler(ctx, uri)
		}
	}
	return "", fmt.Errorf("unknown resource: %s", uri)
}

// Register adds every tool and resource to an MCP server.
func (r *Registry) Register(srv *mcp.Server) {
	for _, t := range r.tools {
		var schema map[string]any
		_ = json.Unmarshal(t.InputSchema, &schema)
		srv.AddTool(&mcp.Tool{Name: t.Name, Description: t.Description, InputSchema: schema},
			func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				out, err := t.Handler(ctx, req.Params.Arguments)
				if err != nil {
					var res mcp.CallToolResult
					res.SetError(err)
					return &res, nil
				}
				data, err := json.Marshal(out)
				if err != nil {
					var res mcp.CallToolResult
					res.SetError(fmt.Errorf("marshal: %w", err))
					return &res, nil
				}
				return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil
			})
	}
	for _, res := range r.resources {
		srv.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: res.URI,
			Name:        res.Name,
			Description: res.Description,
			MIMEType:    res.MimeType,
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			text, err := res.Handler(ctx, req.Params.URI)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
				{URI: req.Params.URI, MIMEType: res.MimeType, Text: text},
			}}, nil
		})
	}
}

// matchResourceURI checks whether a concrete URI matches a template with a
// trailing {param} placeholder.
func matchResourceURI(template, uri string) bool {
	idx := strings.Index(template, "{")
	if idx < 0 {
		return template == uri
	}
	return strings.HasPrefix(uri, template[:idx]) && len(uri) > idx
}

func (r *Registry) registerTools() {
	r.tools = []ToolDef{
		r.toolLookup(),
		r.toolScrub(),
		r.toolWordCount(),
	}
	if r.access != nil {
		r.tools = append(r.tools, r.toolSaveStatus())
		if _, ok := r.access.(RevisionReader); ok {
			r.tools = append(r.tools, r.toolRevisions())
		}
	}
}

func (r *Registry) registerResources() {
	if r.access != nil {
		r.resources = []ResourceDef{r.resourceChapter()}
	}
}

// --- Tool definitions ---

func (r *Registry) toolLookup() ToolDef {
	return ToolDef{
		Name:        "folio_lookup",
		Description: "Returns dictionary suggestions for a partial word, as the editor's local suggestion list would show them.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"token": {"type": "string", "description": "Word or word prefix"}
			},
			"required": ["token"]
		}`),
		Handler: func(_ context.Context, params json.RawMessage) (any, error) {
			var p struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			if strings.TrimSpace(p.Token) == "" {
				return nil, errors.New("token is required")
			}
			list := r.dict.Lookup(p.Token)
			if list == nil {
				list = []string{}
			}
			return map[string]any{
				"token":       p.Token,
				"suggestions": list,
				"replaceable": r.dict.Replaceable(p.Token),
			}, nil
		},
	}
}

func (r *Registry) toolScrub() ToolDef {
	return ToolDef{
		Name:        "folio_scrub",
		Description: "Strips headings, delimiters and commentary an assistant wrapped around rewritten text.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"text": {"type": "string", "description": "Raw assistant reply"}
			},
			"required": ["text"]
		}`),
		Handler: func(_ context.Context, params json.RawMessage) (any, error) {
			var p struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			text, filtered := assist.Scrub(p.Text)
			return map[string]any{"text": text, "filtered": filtered}, nil
		},
	}
}

func (r *Registry) toolWordCount() ToolDef {
	return ToolDef{
		Name:        "folio_word_count",
		Description: "Counts the words of serialized chapter content after projecting it to plain text.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {"type": "string", "description": "Serialized content"},
				"format": {"type": "string", "enum": ["text", "markdown", "html", "json"], "description": "Content format (default text)"}
			},
			"required": ["content"]
		}`),
		Handler: func(_ context.Context, params json.RawMessage) (any, error) {
			var p struct {
				Content string `json:"content"`
				Format  string `json:"format"`
			}
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			if p.Format == "" {
				p.Format = prose.FormatText
			}
			if !prose.KnownFormat(p.Format) {
				return nil, fmt.Errorf("unknown format %q", p.Format)
			}
			plain := prose.Plain(p.Content, p.Format)
			return map[string]any{
				"words":      prose.WordCount(plain),
				"degenerate": autosave.Degenerate(p.Content, p.Format),
			}, nil
		},
	}
}

func (r *Registry) toolSaveStatus() ToolDef {
	return ToolDef{
		Name:        "folio_save_status",
		Description: "Reports whether a chapter has unsaved changes, falling back to the stored copy when it is not open.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"chapterId": {"type": "string", "description": "Chapter id"}
			},
			"required": ["chapterId"]
		}`),
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			var p struct {
				ChapterID string `json:"chapterId"`
			}
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			if p.ChapterID == "" {
				return nil, errors.New("chapterId is required")
			}
			if st, ok := r.access.SaveState(p.ChapterID); ok {
				return map[string]any{"chapterId": p.ChapterID, "open": true, "state": st}, nil
			}
			ch, err := r.access.Chapter(ctx, p.ChapterID)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"chapterId": p.ChapterID,
				"open":      false,
				"wordCount": ch.WordCount,
				"updatedAt": ch.UpdatedAt,
			}, nil
		},
	}
}

func (r *Registry) toolRevisions() ToolDef {
	return ToolDef{
		Name:        "folio_revisions",
		Description: "Lists the stored revisions of a chapter, newest first.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"chapterId": {"type": "string", "description": "Chapter id"}
			},
			"required": ["chapterId"]
		}`),
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			var p struct {
				ChapterID string `json:"chapterId"`
			}
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
			revs, err := r.access.(RevisionReader).Revisions(ctx, p.ChapterID)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, len(revs))
			for i, rev := range revs {
				out[i] = map[string]any{"id": rev.ID, "wordCount": rev.WordCount, "createdAt": rev.CreatedAt}
			}
			return map[string]any{"chapterId": p.ChapterID, "revisions": out}, nil
		},
	}
}

// --- Resource definitions ---

func (r *Registry) resourceChapter() ResourceDef {
	const prefix = "folio://chapters/"
	return ResourceDef{
		URI:         prefix + "{id}",
		Name:        "Chapter",
		Description: "Stored content of a chapter.",
		MimeType:    "text/plain",
		Handler: func(ctx context.Context, uri string) (string, error) {
			id := strings.TrimPrefix(uri, prefix)
			if id == "" {
				return "", errors.New("chapter id is required in URI")
			}
			ch, err := r.access.Chapter(ctx, id)
			if err != nil {
				return "", err
			}
			return ch.Content, nil
		},
	}
}
