// Package mcp exposes bulb control as MCP tools so agents can drive
// the same engine the CLI and REST API use.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/paularlott/mcp"

	"github.com/martinsuchenak/bulbs/internal/engine"
	"github.com/martinsuchenak/bulbs/internal/log"
	"github.com/martinsuchenak/bulbs/internal/model"
)

// Server wraps the MCP server with the control engine.
type Server struct {
	mcpServer *mcp.Server
	engine    *engine.Engine
}

// NewServer creates an MCP server exposing the bulb tools.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{
		mcpServer: mcp.NewServer("bulbs", "1.0.0"),
		engine:    eng,
	}
	s.registerTools()
	return s
}

// GetHTTPHandler returns the handler for the /mcp endpoint.
func (s *Server) GetHTTPHandler() http.HandlerFunc {
	return s.mcpServer.HandleRequest
}

// LogStartup logs the registered tool surface.
func (s *Server) LogStartup() {
	log.Info("MCP tools registered",
		"tools", "bulb_list, bulb_status, bulb_set_power, bulb_set_brightness, bulb_set_color, bulb_toggle, bulb_discover, bulb_forget")
}

func (s *Server) registerTools() {
	s.mcpServer.RegisterTool(
		mcp.NewTool("bulb_list", "List all known bulbs with their last observed state and health"),
		s.handleList,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("bulb_status", "Query the live status of bulbs. Targets every known bulb when no addresses are given.",
			mcp.StringArray("addresses", "Device addresses (host or host:port)"),
		),
		s.handleStatus,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("bulb_set_power", "Turn bulbs on or off",
			mcp.String("state", "Desired power state: on or off", mcp.Required()),
			mcp.StringArray("addresses", "Device addresses (host or host:port)"),
		),
		s.handleSetPower,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("bulb_set_brightness", "Set bulb brightness",
			mcp.String("brightness", "Brightness percent, 0-100", mcp.Required()),
			mcp.StringArray("addresses", "Device addresses (host or host:port)"),
		),
		s.handleSetBrightness,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("bulb_set_color", "Set bulb color",
			mcp.String("color", "Color as #RRGGBB", mcp.Required()),
			mcp.StringArray("addresses", "Device addresses (host or host:port)"),
		),
		s.handleSetColor,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("bulb_toggle", "Toggle bulb power, each bulb relative to its own current state",
			mcp.StringArray("addresses", "Device addresses (host or host:port)"),
		),
		s.handleToggle,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("bulb_discover", "Probe the local network for bulbs and add new ones to the inventory"),
		s.handleDiscover,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("bulb_forget", "Remove a bulb from the inventory",
			mcp.String("address", "Device address (host or host:port)", mcp.Required()),
		),
		s.handleForget,
	)
}

func (s *Server) handleList(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	devices := s.engine.Registry().Snapshot()
	if len(devices) == 0 {
		return mcp.NewToolResponseText("No bulbs known. Run bulb_discover or add one explicitly."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d bulb(s):\n", len(devices))
	for _, d := range devices {
		fmt.Fprintf(&b, "- %s", d.Address)
		if d.Name != "" {
			fmt.Fprintf(&b, " (%s)", d.Name)
		}
		fmt.Fprintf(&b, ": power=%s brightness=%d%% color=%s health=%s\n",
			onOff(d.State.Power), d.State.Brightness, d.State.Color, d.Health)
	}
	return mcp.NewToolResponseText(b.String()), nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	return s.run(ctx, req, model.Command{Kind: model.CmdQueryStatus})
}

func (s *Server) handleSetPower(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	state, err := req.String("state")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("state is required: " + err.Error())
	}

	var on bool
	switch strings.ToLower(state) {
	case "on":
		on = true
	case "off":
		on = false
	default:
		return nil, mcp.NewToolErrorInvalidParams("state must be on or off")
	}
	return s.run(ctx, req, model.Command{Kind: model.CmdSetPower, Power: on})
}

func (s *Server) handleSetBrightness(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	raw, err := req.String("brightness")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("brightness is required: " + err.Error())
	}
	value, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("brightness must be an integer percent")
	}
	return s.run(ctx, req, model.Command{Kind: model.CmdSetBrightness, Brightness: value})
}

func (s *Server) handleSetColor(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	raw, err := req.String("color")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("color is required: " + err.Error())
	}
	c, err := model.ParseRGB(raw)
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams(err.Error())
	}
	return s.run(ctx, req, model.Command{Kind: model.CmdSetColor, Color: c})
}

func (s *Server) handleToggle(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	return s.run(ctx, req, model.Command{Kind: model.CmdToggle})
}

func (s *Server) handleDiscover(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	addrs, err := s.engine.Discover(ctx)
	if err != nil {
		log.Error("MCP discovery failed", "error", err)
		return nil, mcp.NewToolErrorInternal("discovery failed: " + err.Error())
	}
	if len(addrs) == 0 {
		return mcp.NewToolResponseText("No bulbs responded."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d bulb(s):\n", len(addrs))
	for _, a := range addrs {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	return mcp.NewToolResponseText(b.String()), nil
}

func (s *Server) handleForget(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	raw, err := req.String("address")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("address is required: " + err.Error())
	}
	addr, err := model.ParseAddress(raw)
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams(err.Error())
	}
	if err := s.engine.Remove(addr); err != nil {
		return nil, mcp.NewToolErrorInternal("removing device: " + err.Error())
	}
	return mcp.NewToolResponseText(fmt.Sprintf("Removed %s from the inventory", addr)), nil
}

// run resolves the request's target addresses, dispatches cmd and
// renders the report.
func (s *Server) run(ctx context.Context, req *mcp.ToolRequest, cmd model.Command) (*mcp.ToolResponse, error) {
	explicit, _ := req.StringSlice("addresses")
	targets, err := s.engine.Targets(ctx, explicit, false)
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams(err.Error())
	}
	cmd.Targets = targets

	report, err := s.engine.Run(ctx, cmd)
	if err != nil {
		if len(targets) == 0 {
			return nil, mcp.NewToolErrorInvalidParams("no target bulbs; run bulb_discover first or pass addresses")
		}
		log.Error("MCP dispatch failed", "kind", cmd.Kind, "error", err)
		return nil, mcp.NewToolErrorInternal(err.Error())
	}

	return mcp.NewToolResponseText(formatReport(report)), nil
}

func formatReport(report model.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (%d/%d succeeded)\n",
		report.Kind, report.Outcome, report.Succeeded(), len(report.Results))
	for _, r := range report.Results {
		if r.OK() {
			fmt.Fprintf(&b, "- %s: ok, power=%s brightness=%d%% color=%s\n",
				r.Address, onOff(r.State.Power), r.State.Brightness, r.State.Color)
		} else {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", r.Address, r.Failure, r.Error)
		}
	}
	return b.String()
}

func onOff(power bool) string {
	if power {
		return "on"
	}
	return "off"
}
