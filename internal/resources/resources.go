package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/tasksync/internal/logging"
	"github.com/teemow/tasksync/internal/server"
	"github.com/teemow/tasksync/internal/tools/common"
)

// Resource URIs
const (
	HelpURI    = "tasksync://help"
	SessionURI = "tasksync://session"
)

const helpText = `# Task commands

- **task_add** ` + "`title`" + `: create a task due today at 23:59.
- **task_list**: show today's open tasks, numbered in due order.
- **task_complete** ` + "`number`" + `: mark the task with that number as done.

Numbers come from the most recent task_list in the same conversation.
When a listing is old or a task was changed elsewhere, run task_list again.
Pass the optional ` + "`scope`" + ` argument to keep separate numbering per channel.
`

// RegisterResources registers the help and session resources
func RegisterResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if s == nil || sc == nil {
		return fmt.Errorf("server and server context are required")
	}

	helpResource := mcp.NewResource(
		HelpURI,
		"Task Help",
		mcp.WithResourceDescription("How to add, list and complete tasks"),
		mcp.WithMIMEType("text/markdown"),
	)
	s.AddResource(helpResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			&mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "text/markdown",
				Text:     helpText,
			},
		}, nil
	})

	sessionResource := mcp.NewResource(
		SessionURI,
		"Task Session",
		mcp.WithResourceDescription("State of the task numbering for the current session"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(sessionResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleSession(ctx, request, sc)
	})

	return nil
}

// handleSession reports whether the session has a live listing. The raw
// scope is not returned; clients get its hash for correlation with logs.
func handleSession(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	scope := common.ScopeFromRequest(ctx, nil)
	cache := sc.Engine().Cache()
	generation := cache.Generation(scope)

	data := map[string]interface{}{
		"scopeHash":    logging.ScopeHash(scope),
		"hasListing":   generation > 0,
		"generation":   generation,
		"referenceTTL": cache.TTL().String(),
		"timezone":     sc.Engine().Location().String(),
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
