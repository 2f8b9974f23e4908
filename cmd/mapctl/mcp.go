package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/joseph-ayodele/control-mapper/internal/catalog"
	"github.com/joseph-ayodele/control-mapper/internal/client"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
)

type SearchChecksInput struct {
	Provider string `json:"provider"`
	Search   string `json:"search,omitempty"`
	Service  string `json:"service,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

type StartMappingInput struct {
	FilePath           string               `json:"file_path"`
	FrameworkName      string               `json:"framework_name"`
	Providers          []string             `json:"providers"`
	FrameworkVersion   string               `json:"framework_version,omitempty"`
	FrameworkFullName  string               `json:"framework_full_name,omitempty"`
	Description        string               `json:"framework_description,omitempty"`
	EnableSubgroup     *bool                `json:"enable_subgroup,omitempty"`
	FieldMappings      entity.FieldMappings `json:"field_mappings,omitempty"`
	CustomInstructions string               `json:"custom_instructions,omitempty"`
}

type IDInput struct {
	ID string `json:"id"`
}

func runMCP(ctx context.Context, c *client.Client, _ []string) int {
	server := newMCPServer(c)
	session, err := server.Connect(ctx, mcp.NewStdioTransport(), nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	if err := session.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

func newMCPServer(c *client.Client) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "control-mapper",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_providers",
		Description: "List cloud providers in the check catalog with their check counts.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, map[string]any, error) {
		ps, err := c.ListProviders(ctx)
		if err != nil {
			return nil, nil, err
		}
		return structured(map[string]any{"providers": ps})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "search_checks",
		Description: `Search the security checks of one provider.

Parameters:
- provider (required): provider name, e.g. "aws"
- search: case-insensitive substring of check id, title or description
- service: exact service name
- limit: page size, 1-1000 (default 100)
- offset: page offset`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, in SearchChecksInput) (*mcp.CallToolResult, map[string]any, error) {
		page, err := c.SearchChecks(ctx, in.Provider, catalog.Filter{
			Search:  in.Search,
			Service: in.Service,
			Limit:   in.Limit,
			Offset:  in.Offset,
		})
		if err != nil {
			return nil, nil, err
		}
		return structured(page)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "start_mapping",
		Description: `Upload a framework document and start mapping it to provider checks.
Returns batch_id and one job per provider. Poll batch_status until the status is
completed, failed or partial.

Parameters:
- file_path (required): local path to a PDF, CSV, XLSX, XLS, JSON or TXT document
- framework_name (required): short name, e.g. "CIS"
- providers (required): provider names, e.g. ["aws", "gcp"]
- framework_version, framework_full_name, framework_description: optional metadata
- enable_subgroup: include SubGroup in requirement attributes (default true)
- field_mappings: which document columns carry id, name, description and section
- custom_instructions: extra guidance for the mapper`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, in StartMappingInput) (*mcp.CallToolResult, map[string]any, error) {
		res, err := submit(ctx, c, submission{
			File:               in.FilePath,
			Framework:          in.FrameworkName,
			Version:            in.FrameworkVersion,
			FullName:           in.FrameworkFullName,
			Description:        in.Description,
			Providers:          in.Providers,
			EnableSubgroup:     in.EnableSubgroup,
			FieldMappings:      in.FieldMappings,
			CustomInstructions: in.CustomInstructions,
		})
		if err != nil {
			return nil, nil, err
		}
		return structured(res)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "batch_status",
		Description: "Get the derived status, overall progress and per-job state of a mapping batch.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in IDInput) (*mcp.CallToolResult, map[string]any, error) {
		v, err := c.BatchStatus(ctx, in.ID)
		if err != nil {
			return nil, nil, err
		}
		return structured(v)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_status",
		Description: "Get one mapping job: progress, summary and download links once completed, error once failed.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in IDInput) (*mcp.CallToolResult, map[string]any, error) {
		v, err := c.JobStatus(ctx, in.ID)
		if err != nil {
			return nil, nil, err
		}
		return structured(v)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_job",
		Description: "Cancel a running or queued mapping job.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in IDInput) (*mcp.CallToolResult, map[string]any, error) {
		v, err := c.CancelJob(ctx, in.ID)
		if err != nil {
			return nil, nil, err
		}
		return structured(v)
	})

	return server
}

// structured turns an API answer into the map form MCP tools return.
func structured(v any) (*mcp.CallToolResult, map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}
