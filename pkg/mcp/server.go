// Package mcp exposes the automation core to LLM agents over the Model
// Context Protocol. Every tool call flows through the same execution
// coordinator as HTTP traffic, with source set to agent.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/pipeline"
	"github.com/autoflow-hq/core/pkg/services"
)

// Server bridges MCP tool calls to the pipeline services.
type Server struct {
	registry *pipeline.Registry
	executor *services.Executor
	tasks    *services.ScheduledTaskService
	runs     *services.RunService
	logger   *logger.Logger
}

// NewServer creates the agent bridge.
func NewServer(registry *pipeline.Registry, executor *services.Executor, tasks *services.ScheduledTaskService, runService *services.RunService, log *logger.Logger) *Server {
	return &Server{
		registry: registry,
		executor: executor,
		tasks:    tasks,
		runs:     runService,
		logger:   log,
	}
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	mcpServer := server.NewMCPServer(
		"autoflow-core",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.logger.Info().Msg("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("pipeline_list",
		mcp.WithDescription("List registered automation pipelines, optionally filtered by area or comma-separated tags (AND semantics)"),
		mcp.WithString("area",
			mcp.Description("Exact area filter"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags; pipelines must carry all of them"),
		),
	), s.handlePipelineList)

	mcpServer.AddTool(mcp.NewTool("pipeline_execute",
		mcp.WithDescription("Execute a pipeline immediately with a JSON object as input"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Registered pipeline name"),
		),
		mcp.WithString("input",
			mcp.Description("Pipeline input as a JSON object string"),
		),
		mcp.WithString("user_id",
			mcp.Description("Acting user's UUID"),
		),
	), s.handlePipelineExecute)

	mcpServer.AddTool(mcp.NewTool("schedule_create",
		mcp.WithDescription("Create a recurring schedule for a pipeline using a standard 5-field cron expression and an IANA timezone"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Human-readable schedule name"),
		),
		mcp.WithString("pipeline_name",
			mcp.Required(),
			mcp.Description("Registered pipeline name"),
		),
		mcp.WithString("cron_expression",
			mcp.Required(),
			mcp.Description("5-field cron expression, e.g. '0 9 * * 1-5' for weekdays at 09:00"),
		),
		mcp.WithString("timezone",
			mcp.Description("IANA timezone name, default UTC"),
		),
		mcp.WithString("input_params",
			mcp.Description("Pipeline input parameters as a JSON object string"),
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Owner's UUID"),
		),
	), s.handleScheduleCreate)

	mcpServer.AddTool(mcp.NewTool("schedule_list",
		mcp.WithDescription("List scheduled tasks"),
		mcp.WithString("enabled",
			mcp.Description("Filter: 'true' or 'false'"),
			mcp.Enum("true", "false"),
		),
	), s.handleScheduleList)

	mcpServer.AddTool(mcp.NewTool("schedule_toggle",
		mcp.WithDescription("Enable or disable a scheduled task; re-enabling recomputes its next run from now"),
		mcp.WithString("schedule_id",
			mcp.Required(),
			mcp.Description("Schedule UUID"),
		),
		mcp.WithBoolean("enabled",
			mcp.Description("Target state; omitted flips the current state"),
		),
	), s.handleScheduleToggle)

	mcpServer.AddTool(mcp.NewTool("run_list",
		mcp.WithDescription("List recent pipeline runs"),
		mcp.WithString("pipeline_name",
			mcp.Description("Filter by pipeline"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of runs to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleRunList)

	mcpServer.AddTool(mcp.NewTool("run_stats",
		mcp.WithDescription("Aggregate run outcomes: totals, success rate, average duration"),
		mcp.WithString("pipeline_name",
			mcp.Description("Filter by pipeline"),
		),
		mcp.WithNumber("since_hours",
			mcp.Description("Trailing window in hours"),
			mcp.Min(0),
		),
	), s.handleRunStats)

	s.logger.Info().Int("count", 7).Msg("MCP tools registered")
}

func (s *Server) handlePipelineList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := pipeline.Filter{
		Area: mcp.ParseString(request, "area", ""),
	}
	if tags := mcp.ParseString(request, "tags", ""); tags != "" {
		filter.Tags = splitTags(tags)
	}
	return jsonResult(s.registry.List(filter))
}

func (s *Server) handlePipelineExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "name", "")

	input, err := parseJSONObject(mcp.ParseString(request, "input", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("input must be a JSON object: %v", err)), nil
	}

	ec := pipeline.NewExecutionContext(pipeline.SourceAgent)
	if userID := mcp.ParseString(request, "user_id", ""); userID != "" {
		uid, err := uuid.Parse(userID)
		if err != nil {
			return mcp.NewToolResultError("user_id must be a UUID"), nil
		}
		ec = ec.WithUser(uid)
	}

	result := s.executor.Execute(ctx, name, input, ec)
	return jsonResult(result)
}

func (s *Server) handleScheduleCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID, err := uuid.Parse(mcp.ParseString(request, "user_id", ""))
	if err != nil {
		return mcp.NewToolResultError("user_id must be a UUID"), nil
	}

	inputParams, err := parseJSONObject(mcp.ParseString(request, "input_params", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("input_params must be a JSON object: %v", err)), nil
	}

	task, err := s.tasks.Create(ctx, services.CreateTaskParams{
		OwnerID:        ownerID,
		Name:           mcp.ParseString(request, "name", ""),
		PipelineName:   mcp.ParseString(request, "pipeline_name", ""),
		CronExpression: mcp.ParseString(request, "cron_expression", ""),
		Timezone:       mcp.ParseString(request, "timezone", "UTC"),
		Enabled:        true,
		InputParams:    inputParams,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("MCP schedule create failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to create schedule: %v", err)), nil
	}
	return jsonResult(task)
}

func (s *Server) handleScheduleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := services.ListTasksParams{PageSize: 100}
	switch mcp.ParseString(request, "enabled", "") {
	case "true":
		enabled := true
		params.Enabled = &enabled
	case "false":
		enabled := false
		params.Enabled = &enabled
	}

	tasks, _, err := s.tasks.List(ctx, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list schedules: %v", err)), nil
	}
	return jsonResult(tasks)
}

func (s *Server) handleScheduleToggle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := uuid.Parse(mcp.ParseString(request, "schedule_id", ""))
	if err != nil {
		return mcp.NewToolResultError("schedule_id must be a UUID"), nil
	}

	var enabled *bool
	if args := request.GetArguments(); args != nil {
		if raw, ok := args["enabled"].(bool); ok {
			enabled = &raw
		}
	}

	task, err := s.tasks.Toggle(ctx, id, enabled)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to toggle schedule: %v", err)), nil
	}
	return jsonResult(task)
}

func (s *Server) handleRunList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := services.ListRunsParams{
		PageSize: int(mcp.ParseFloat64(request, "limit", 20)),
	}
	if name := mcp.ParseString(request, "pipeline_name", ""); name != "" {
		params.PipelineName = &name
	}

	runs, _, err := s.runs.List(ctx, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	return jsonResult(runs)
}

func (s *Server) handleRunStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var pipelineName *string
	if name := mcp.ParseString(request, "pipeline_name", ""); name != "" {
		pipelineName = &name
	}
	var sinceHours *int
	if hours := int(mcp.ParseFloat64(request, "since_hours", 0)); hours > 0 {
		sinceHours = &hours
	}

	stats, err := s.runs.Stats(ctx, pipelineName, sinceHours)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to compute stats: %v", err)), nil
	}
	return jsonResult(stats)
}

func jsonResult(data any) (*mcp.CallToolResult, error) {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

func parseJSONObject(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
