package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/pomo/internal/focus"
	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/pomodoro"
)

// TimerControl is the foreground timer the tools drive.
type TimerControl interface {
	Sync(ctx context.Context)
	Display(ctx context.Context) models.TimerDisplay
	Start(ctx context.Context) pomodoro.Result
	Pause(ctx context.Context) pomodoro.Result
	Resume(ctx context.Context) pomodoro.Result
	Reset(ctx context.Context) pomodoro.Result
}

// FocusControl is the focus tracker the tools drive.
type FocusControl interface {
	Load(ctx context.Context)
	Display() models.FocusDisplay
	Start(ctx context.Context) (*models.FocusSession, error)
	End(ctx context.Context) (*models.FocusSession, error)
	Stats(ctx context.Context) (models.FocusStats, error)
	History(ctx context.Context, limit int) ([]*models.FocusSession, error)
}

// Server exposes the timer and focus tracker as MCP tools.
type Server struct {
	timer   TimerControl
	focus   FocusControl
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(t TimerControl, f FocusControl, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{timer: t, focus: f, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("pomo", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.timerStatusTool())
	srv.AddTool(s.timerCommandTool("pomo_timer_start", "Start a work phase. Only valid when the timer is idle.", s.timer.Start))
	srv.AddTool(s.timerCommandTool("pomo_timer_pause", "Pause the running work or rest phase.", s.timer.Pause))
	srv.AddTool(s.timerCommandTool("pomo_timer_resume", "Resume a paused phase.", s.timer.Resume))
	srv.AddTool(s.timerCommandTool("pomo_timer_reset", "Discard the current cycle and return to idle.", s.timer.Reset))
	srv.AddTool(s.focusStatusTool())
	srv.AddTool(s.focusStartTool())
	srv.AddTool(s.focusEndTool())
	srv.AddTool(s.focusStatsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Timer tools
// ---------------------------------------------------------------------------

// pomo_timer_status
func (s *Server) timerStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pomo_timer_status",
		mcp.WithDescription("Get the Pomodoro timer: mode (idle, work, rest), remaining seconds, paused flag and completed session count. Overdue phases are completed first."),
	)
	return tool, s.handleTimerStatus
}

func (s *Server) handleTimerStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.timer.Sync(ctx)
	return jsonResult(s.timer.Display(ctx))
}

func (s *Server) timerCommandTool(name, desc string, cmd func(context.Context) pomodoro.Result) (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool(name,
		mcp.WithDescription(desc+" Returns applied=false without changing anything when the command is not valid in the current state."),
	)
	return tool, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.timer.Sync(ctx)
		return jsonResult(cmd(ctx))
	}
}

// ---------------------------------------------------------------------------
// Focus tools
// ---------------------------------------------------------------------------

// pomo_focus_status
func (s *Server) focusStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pomo_focus_status",
		mcp.WithDescription("Get the active focus session: net focus seconds, time away and interruptions."),
	)
	return tool, s.handleFocusStatus
}

func (s *Server) handleFocusStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.focus.Load(ctx)
	return jsonResult(s.focus.Display())
}

// pomo_focus_start
func (s *Server) focusStartTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pomo_focus_start",
		mcp.WithDescription("Start a focus session. Fails if one is already active."),
	)
	return tool, s.handleFocusStart
}

func (s *Server) handleFocusStart(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.focus.Load(ctx)
	fs, err := s.focus.Start(ctx)
	if errors.Is(err, focus.ErrSessionActive) {
		return mcp.NewToolResultError("a focus session is already active"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start focus session: %v", err)), nil
	}
	return jsonResult(fs)
}

// pomo_focus_end
func (s *Server) focusEndTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pomo_focus_end",
		mcp.WithDescription("End the active focus session and return its final net focus time."),
	)
	return tool, s.handleFocusEnd
}

func (s *Server) handleFocusEnd(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.focus.Load(ctx)
	fs, err := s.focus.End(ctx)
	if errors.Is(err, focus.ErrNoActiveSession) {
		return mcp.NewToolResultError("no active focus session"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to end focus session: %v", err)), nil
	}
	return jsonResult(fs)
}

// pomo_focus_stats
func (s *Server) focusStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pomo_focus_stats",
		mcp.WithDescription("Get aggregate focus statistics and recent completed sessions."),
		mcp.WithString("limit", mcp.Description("Number of recent sessions to include (default 5)")),
	)
	return tool, s.handleFocusStats
}

func (s *Server) handleFocusStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 5
	if v := request.GetString("limit", ""); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit < 0 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid limit: %s", v)), nil
		}
	}

	stats, err := s.focus.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load stats: %v", err)), nil
	}
	recent, err := s.focus.History(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load history: %v", err)), nil
	}
	if recent == nil {
		recent = []*models.FocusSession{}
	}
	return jsonResult(struct {
		Stats  models.FocusStats      `json:"stats"`
		Recent []*models.FocusSession `json:"recent"`
	}{stats, recent})
}
