package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/askweb/internal/apperr"
	"github.com/kalambet/askweb/internal/storage"
)

const mcpRecentLimit = 10

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Searches Searches
	Version  string
}

// NewMCPServer creates an MCP server exposing web search and search history.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"askweb",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("askweb searches the web and answers questions from the results, citing its sources."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("web_search",
			mcp.WithDescription("Search the web and return an AI-generated answer with numbered sources."),
			mcp.WithString("query", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpWebSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("get_search",
			mcp.WithDescription("Fetch a previous search by id, including its answer and sources, as JSON."),
			mcp.WithNumber("id", mcp.Description("Search id"), mcp.Required()),
		),
		mcpGetSearch(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"searches://recent",
			"Recent Searches",
			mcp.WithResourceDescription("Last 10 searches (id, query, createdAt)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpWebSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		rec, err := deps.Searches.Run(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %s", apperr.PublicMessage(err))), nil
		}

		return mcpText(formatAnswer(rec)), nil
	}
}

// formatAnswer renders a record as the answer followed by a numbered list
// of sources.
func formatAnswer(rec storage.Record) string {
	var sb strings.Builder
	if rec.Answer != nil {
		sb.WriteString(*rec.Answer)
	}
	if len(rec.Results) > 0 {
		sb.WriteString("\n\nSources:\n")
		for i, r := range rec.Results {
			fmt.Fprintf(&sb, "[%d] %s - %s\n", i+1, r.Title, r.URL)
		}
	}
	fmt.Fprintf(&sb, "\n(search id %d)", rec.ID)
	return sb.String()
}

func mcpGetSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		rec, err := deps.Searches.Get(ctx, int64(id))
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("search %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get search: %s", apperr.PublicMessage(err))), nil
		}

		b, err := json.Marshal(rec)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal search: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		recs, err := deps.Searches.Recent(ctx, mcpRecentLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to list recent searches: %w", err)
		}

		type searchSummary struct {
			ID        int64  `json:"id"`
			Query     string `json:"query"`
			CreatedAt string `json:"createdAt"`
			Pending   bool   `json:"pending,omitempty"`
		}

		summaries := make([]searchSummary, len(recs))
		for i, rec := range recs {
			query := rec.Query
			if utf8.RuneCountInString(query) > 200 {
				runes := []rune(query)
				query = string(runes[:200]) + "..."
			}
			summaries[i] = searchSummary{
				ID:        rec.ID,
				Query:     query,
				CreatedAt: rec.CreatedAt.Format(time.RFC3339),
				Pending:   rec.Pending(),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal searches: %w", err)
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
