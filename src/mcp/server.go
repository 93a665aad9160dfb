// Package mcp exposes build search and triage records as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"buildtriage/src/contracts"
	"buildtriage/src/provider"
	"buildtriage/src/query"
	"buildtriage/src/store"
	"buildtriage/src/triage"
)

// Deps are the capabilities the tools are served from.
type Deps struct {
	Builds  triage.BuildSource
	Records store.TriageStore
	Matcher *triage.Matcher
	Version string
}

// Server is the MCP server for buildtriage.
type Server struct {
	mcpServer *server.MCPServer
	deps      Deps
}

// NewServer creates a new MCP server with every tool registered.
func NewServer(deps Deps) *Server {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := server.NewMCPServer(
		"buildtriage",
		deps.Version,
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		deps:      deps,
	}
	srv.registerTools()

	return srv
}

func (s *Server) registerTools() {
	buildsTool := mcp.NewTool("search_builds",
		mcp.WithDescription("Search recent builds. Keys: definition, count, repository, started, finished, kind, result, targetbranch. Dates accept YYYY-MM-DD, >YYYY-MM-DD, <YYYY-MM-DD and ~N (last N days)."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Build query, e.g. \"definition:runtime count:20 started:~3\""),
		),
	)

	timelinesTool := mcp.NewTool("search_timelines",
		mcp.WithDescription("Search the timelines of the selected builds for failed records whose issues match a pattern. Builds whose timeline cannot be fetched are listed as skipped."),
		mcp.WithString("builds",
			mcp.Required(),
			mcp.Description("Build query selecting the builds to search"),
		),
		mcp.WithString("timeline",
			mcp.Required(),
			mcp.Description("Timeline query, e.g. \"text:\\\"No space left\\\" jobname:Linux\""),
		),
	)

	recordsTool := mcp.NewTool("triage_records",
		mcp.WithDescription("List the triage records attached to a GitHub tracking issue, newest build first."),
		mcp.WithString("issue",
			mcp.Required(),
			mcp.Description("GitHub issue URL, e.g. https://github.com/dotnet/runtime/issues/1"),
		),
	)

	s.mcpServer.AddTool(buildsTool, s.handleSearchBuilds)
	s.mcpServer.AddTool(timelinesTool, s.handleSearchTimelines)
	s.mcpServer.AddTool(recordsTool, s.handleTriageRecords)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

type buildsResponse struct {
	Query  string            `json:"query"`
	Builds []contracts.Build `json:"builds"`
}

func (s *Server) handleSearchBuilds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := request.GetString("query", "")
	req, err := query.ParseBuildsRequest(q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid build query: %v", err)), nil
	}

	builds, err := s.deps.Builds.SearchBuilds(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(userMessage("build search failed", err)), nil
	}
	if builds == nil {
		builds = []contracts.Build{}
	}
	return jsonResult(buildsResponse{Query: req.String(), Builds: builds})
}

type timelineMatch struct {
	Build      contracts.BuildKey `json:"build"`
	Definition string             `json:"definition"`
	Attempt    int                `json:"attempt"`
	RecordID   string             `json:"record_id"`
	RecordName string             `json:"record_name"`
	RecordType string             `json:"record_type"`
	JobName    string             `json:"job_name,omitempty"`
	Message    string             `json:"message"`
}

type skippedBuild struct {
	Build contracts.BuildKey `json:"build"`
	Error string             `json:"error"`
}

type timelinesResponse struct {
	Builds        string          `json:"builds"`
	Timeline      string          `json:"timeline"`
	BuildsScanned int             `json:"builds_scanned"`
	Matches       []timelineMatch `json:"matches"`
	Skipped       []skippedBuild  `json:"skipped,omitempty"`
}

func (s *Server) handleSearchTimelines(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Matcher == nil {
		return mcp.NewToolResultError("timeline search needs a build provider; set BUILD_PROVIDER and its token"), nil
	}

	buildsReq, err := query.ParseBuildsRequest(request.GetString("builds", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid build query: %v", err)), nil
	}
	timelineReq, err := query.ParseTimelinesRequest(request.GetString("timeline", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid timeline query: %v", err)), nil
	}
	filter, err := timelineReq.Filter()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid timeline query: %v", err)), nil
	}

	builds, err := s.deps.Builds.SearchBuilds(ctx, buildsReq)
	if err != nil {
		return mcp.NewToolResultError(userMessage("build search failed", err)), nil
	}

	res := s.deps.Matcher.Match(ctx, builds, filter)
	resp := timelinesResponse{
		Builds:        buildsReq.String(),
		Timeline:      timelineReq.String(),
		BuildsScanned: res.BuildsScanned,
		Matches:       make([]timelineMatch, 0, len(res.Matches)),
	}
	for _, m := range res.Matches {
		resp.Matches = append(resp.Matches, timelineMatch{
			Build:      m.Build.Key,
			Definition: m.Build.DefinitionName,
			Attempt:    m.Attempt,
			RecordID:   m.RecordID,
			RecordName: m.RecordName,
			RecordType: m.RecordType,
			JobName:    m.JobName,
			Message:    m.Message,
		})
	}
	for _, sk := range res.Skipped {
		resp.Skipped = append(resp.Skipped, skippedBuild{Build: sk.Build, Error: sk.Err.Error()})
	}
	return jsonResult(resp)
}

type recordsResponse struct {
	Issue   string                   `json:"issue"`
	Records []contracts.TriageRecord `json:"records"`
}

func (s *Server) handleTriageRecords(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := contracts.ParseGitHubIssueKey(request.GetString("issue", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	records, err := s.deps.Records.RecordsForIssue(ctx, key.URL())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load records: %v", err)), nil
	}
	if records == nil {
		records = []contracts.TriageRecord{}
	}
	return jsonResult(recordsResponse{Issue: key.URL(), Records: records})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// userMessage prefers the operator-facing hint of provider errors.
func userMessage(prefix string, err error) string {
	return fmt.Sprintf("%s: %v", prefix, provider.WrapError(err))
}
