package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"converge/pkg/logging"
)

// MCPServer exposes scenario listing, validation and runs as MCP tools over
// stdio, so an assistant can drive the suite and read structured results.
type MCPServer struct {
	framework    *Framework
	reporter     *StructuredReporter
	scenarioPath string
	mcpServer    *server.MCPServer

	runMu sync.Mutex
}

// NewMCPServer creates the server. The framework must have been created in
// ExecutionModeMCPServer.
func NewMCPServer(fw *Framework, scenarioPath, version string) (*MCPServer, error) {
	reporter, ok := fw.Reporter.(*StructuredReporter)
	if !ok {
		return nil, fmt.Errorf("MCP server mode requires a structured reporter, got %T", fw.Reporter)
	}
	s := &MCPServer{
		framework:    fw,
		reporter:     reporter,
		scenarioPath: scenarioPath,
		mcpServer: server.NewMCPServer(
			"converge",
			version,
			server.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s, nil
}

// Serve blocks serving MCP over stdin and stdout.
func (s *MCPServer) Serve() error {
	logging.Info("Scenario", "Serving MCP tools over stdio")
	return server.ServeStdio(s.mcpServer)
}

// Server returns the underlying MCP server.
func (s *MCPServer) Server() *server.MCPServer {
	return s.mcpServer
}

func (s *MCPServer) registerTools() {
	pathOption := mcp.WithString("path",
		mcp.Description("Scenario file or directory (default: the configured scenario path)"),
	)

	s.mcpServer.AddTool(mcp.NewTool("converge_list_scenarios",
		mcp.WithDescription("List the available convergence scenarios"),
		pathOption,
		mcp.WithArray("tags",
			mcp.Description("Only list scenarios carrying any of these tags"),
			mcp.WithStringItems(),
		),
	), s.handleListScenarios)

	s.mcpServer.AddTool(mcp.NewTool("converge_validate_scenarios",
		mcp.WithDescription("Validate scenario files without touching the cluster"),
		pathOption,
	), s.handleValidateScenarios)

	s.mcpServer.AddTool(mcp.NewTool("converge_run_scenarios",
		mcp.WithDescription("Run scenarios against the configured service and return the results"),
		pathOption,
		mcp.WithString("scenario",
			mcp.Description("Run only the scenario with this name"),
		),
		mcp.WithArray("tags",
			mcp.Description("Run only scenarios carrying any of these tags"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("fail_fast",
			mcp.Description("Stop after the first failing scenario (default: false)"),
		),
		mcp.WithBoolean("install",
			mcp.Description("Install the service before and uninstall it after the run (default: false)"),
		),
		mcp.WithBoolean("pre_check",
			mcp.Description("Check service health before each scenario (default: true)"),
		),
	), s.handleRunScenarios)

	s.mcpServer.AddTool(mcp.NewTool("converge_get_results",
		mcp.WithDescription("Return the results of the last or current run"),
	), s.handleGetResults)

	s.mcpServer.AddTool(mcp.NewTool("converge_list_tasks",
		mcp.WithDescription("List the service's task instances, optionally restricted to a group prefix"),
		mcp.WithString("group",
			mcp.Description("Task name prefix, e.g. journal or name-0"),
		),
	), s.handleListTasks)
}

type scenarioSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Steps       int      `json:"steps"`
	Skip        bool     `json:"skip,omitempty"`
	File        string   `json:"file,omitempty"`
}

func (s *MCPServer) path(request mcp.CallToolRequest) string {
	return request.GetString("path", s.scenarioPath)
}

func (s *MCPServer) handleListScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scenarios, err := s.framework.Loader.LoadScenarios(s.path(request))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load scenarios: %v", err)), nil
	}
	scenarios = s.framework.Loader.FilterScenarios(scenarios, Configuration{
		Tags: request.GetStringSlice("tags", nil),
	})

	out := make([]scenarioSummary, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, scenarioSummary{
			Name:        sc.Name,
			Description: sc.Description,
			Tags:        sc.Tags,
			Steps:       len(sc.Steps),
			Skip:        sc.Skip,
			File:        sc.File,
		})
	}
	return jsonResult(out)
}

func (s *MCPServer) handleValidateScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scenarios, err := s.framework.Loader.LoadScenarios(s.path(request))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load scenarios: %v", err)), nil
	}
	return jsonResult(ValidateScenarios(scenarios))
}

func (s *MCPServer) handleRunScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.runMu.TryLock() {
		return mcp.NewToolResultError("A run is already in progress; use converge_get_results to follow it"), nil
	}
	defer s.runMu.Unlock()

	path := s.path(request)
	scenarios, err := s.framework.Loader.LoadScenarios(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load scenarios: %v", err)), nil
	}
	if results := ValidateScenarios(scenarios); !results.Valid() {
		return mcp.NewToolResultError(FormatValidationResults(results, false)), nil
	}

	config := Configuration{
		Scenario:     request.GetString("scenario", ""),
		Tags:         request.GetStringSlice("tags", nil),
		ScenarioPath: path,
		FailFast:     request.GetBool("fail_fast", false),
		Install:      request.GetBool("install", false),
		PreCheck:     request.GetBool("pre_check", true),
	}
	result, err := s.framework.Runner.Run(ctx, config, scenarios)
	if result == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Run failed: %v", err)), nil
	}
	return jsonResult(result)
}

func (s *MCPServer) handleGetResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.reporter.Running() {
		return jsonResult(map[string]interface{}{
			"status":    "running",
			"scenarios": s.reporter.GetScenarioStates(),
		})
	}
	text, err := s.reporter.GetResultsAsJSON()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.framework.Cluster.ListTaskInstances(ctx, s.framework.Settings.Service, request.GetString("group", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tasks: %v", err)), nil
	}
	return jsonResult(tasks)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
