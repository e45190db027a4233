package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"docforge/internal/alerting"
	"docforge/internal/services"
	"docforge/pkg/models"
)

// Server exposes workflow coordination read operations as MCP tools so agent
// tooling can inspect runs without the REST surface. The endpoints are
// mounted behind the auth middleware; tool handlers resolve the caller's
// tenant from the request context and workflow reads are tenant-asserted.
type Server struct {
	mcpServer         *server.MCPServer
	orchestrator      *services.Orchestrator
	alerts            *alerting.System
	tenantFromContext func(context.Context) (string, bool)
}

func NewServer(orchestrator *services.Orchestrator, alerts *alerting.System, tenantFromContext func(context.Context) (string, bool)) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Docforge Coordinator",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		orchestrator:      orchestrator,
		alerts:            alerts,
		tenantFromContext: tenantFromContext,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"workflow_status",
			mcp.WithDescription("Get the current status and progress of a workflow"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The workflow to inspect")),
		),
		s.handleWorkflowStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"recovery_info",
			mcp.WithDescription("Get the checkpoints and recoverability of a workflow"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The workflow to inspect")),
		),
		s.handleRecoveryInfo,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"system_health",
			mcp.WithDescription("Get the aggregated alert-derived system health"),
		),
		s.handleSystemHealth,
	)
}

func (s *Server) handleWorkflowStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := stringArg(request, "workflow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	exec, err := s.assertTenant(ctx, workflowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get status: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(exec)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRecoveryInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := stringArg(request, "workflow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := s.assertTenant(ctx, workflowID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get recovery info: %v", err)), nil
	}

	info, err := s.orchestrator.GetRecoveryInfo(ctx, workflowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get recovery info: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(info)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleSystemHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jsonBytes, _ := json.Marshal(s.alerts.SystemHealth())
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// assertTenant resolves the caller's tenant and verifies workflow ownership.
func (s *Server) assertTenant(ctx context.Context, workflowID string) (*models.WorkflowExecution, error) {
	tenantID, ok := s.tenantFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("tenant not resolved")
	}
	return s.orchestrator.AssertTenant(ctx, workflowID, tenantID)
}

func stringArg(request mcp.CallToolRequest, name string) (string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid arguments type")
	}
	value, ok := args[name].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("missing required parameter: %s", name)
	}
	return value, nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// SSE server backs both the stream and message endpoints.
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
