// Package resources implements MCP resource handlers for the task hierarchy.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (strata://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/strata/internal/migrate"
	"github.com/HendryAvila/strata/internal/phase"
)

// StatusURI addresses the hierarchy status resource.
const StatusURI = "strata://hierarchy/status"

// Handler manages resource endpoints.
type Handler struct {
	machine *phase.Machine
	orch    *migrate.Orchestrator
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(machine *phase.Machine, orch *migrate.Orchestrator) *Handler {
	return &Handler{machine: machine, orch: orch}
}

// Status is the document served at StatusURI.
type Status struct {
	Migration *migrate.Status `json:"migration"`
	Phases    []phase.Report  `json:"phases"`
}

// StatusResource returns the MCP resource definition for hierarchy status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		StatusURI,
		"Task Hierarchy Status",
		mcp.WithResourceDescription("Schema version, migration state and per-phase completion"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStatus returns the current hierarchy status as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	check, err := h.orch.Check()
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	reports, err := h.machine.Status("")
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	data, err := json.MarshalIndent(Status{Migration: check, Phases: reports}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
