package task_tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/tasksync/internal/engine"
	"github.com/teemow/tasksync/internal/instrumentation"
	"github.com/teemow/tasksync/internal/logging"
	"github.com/teemow/tasksync/internal/server"
	"github.com/teemow/tasksync/internal/tasks"
	"github.com/teemow/tasksync/internal/tools/common"
)

// Tool names
const (
	ToolAdd      = "task_add"
	ToolList     = "task_list"
	ToolComplete = "task_complete"
)

const scopeDescription = "Optional sub-scope within the current session, e.g. a chat channel ID. " +
	"Task numbers from task_list are only valid within the same scope."

// RegisterTaskTools registers the task tools with the MCP server
func RegisterTaskTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if s == nil || sc == nil {
		return errors.New("server and server context are required")
	}

	addTool := mcp.NewTool(ToolAdd,
		mcp.WithDescription("Add a new task due today at 23:59. "+
			"Use task_list afterwards to see it with its number."),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("What needs to be done"),
		),
		mcp.WithString(common.ScopeArg, mcp.Description(scopeDescription)),
	)
	s.AddTool(addTool, common.InstrumentedToolHandler(ToolAdd, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleAdd(ctx, request, sc)
	}))

	listTool := mcp.NewTool(ToolList,
		mcp.WithDescription("List today's open tasks, numbered from 1 in due order. "+
			"The numbers are what task_complete expects and stay valid until the next listing."),
		mcp.WithString(common.ScopeArg, mcp.Description(scopeDescription)),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler(ToolList, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleList(ctx, request, sc)
	}))

	completeTool := mcp.NewTool(ToolComplete,
		mcp.WithDescription("Mark a task as done by its number from the most recent task_list. "+
			"If the listing is old or the number is unknown, list again first."),
		mcp.WithNumber("number",
			mcp.Required(),
			mcp.Description("Task number as shown by task_list (1, 2, ...)"),
		),
		mcp.WithString(common.ScopeArg, mcp.Description(scopeDescription)),
	)
	s.AddTool(completeTool, common.InstrumentedToolHandler(ToolComplete, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleComplete(ctx, request, sc)
	}))

	return nil
}

func handleAdd(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	scope := common.ScopeFromRequest(ctx, args)
	title, _ := args["title"].(string)

	inv := common.InvocationFromContext(ctx)
	if inv != nil {
		inv.WithOperation(instrumentation.OperationAdd)
	}

	task, err := sc.Engine().AddTask(ctx, scope, title)
	if err != nil {
		return failure(ctx, sc, scope, err), nil
	}
	if inv != nil {
		inv.WithTask(0, task.UID).WithOutcome(instrumentation.OutcomeSuccess)
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task created: %s\nDue: %s\n\nUse task_list to see all of today's tasks.",
		task.Title, formatDue(task.Due, sc.Engine().Location()))), nil
}

func handleList(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	scope := common.ScopeFromRequest(ctx, request.GetArguments())

	inv := common.InvocationFromContext(ctx)
	if inv != nil {
		inv.WithOperation(instrumentation.OperationList)
	}

	listed, err := sc.Engine().ListTasks(ctx, scope)
	if err != nil {
		return failure(ctx, sc, scope, err), nil
	}
	if inv != nil {
		inv.WithOutcome(instrumentation.OutcomeSuccess)
	}

	return mcp.NewToolResultText(renderListing(listed, sc.Engine().Location())), nil
}

func handleComplete(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	scope := common.ScopeFromRequest(ctx, args)

	inv := common.InvocationFromContext(ctx)
	if inv != nil {
		inv.WithOperation(instrumentation.OperationComplete)
	}

	ordinal, err := ordinalArg(args)
	if err != nil {
		return failure(ctx, sc, scope, err), nil
	}
	if inv != nil {
		inv.WithTask(ordinal, "")
	}

	task, err := sc.Engine().CompleteTask(ctx, scope, ordinal)
	if err != nil {
		return failure(ctx, sc, scope, err), nil
	}
	if inv != nil {
		inv.WithTask(ordinal, task.UID).WithOutcome(instrumentation.OutcomeSuccess)
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task completed: %s", task.Title)), nil
}

// ordinalArg reads the "number" argument. JSON numbers arrive as float64;
// strings such as "2" or "#2" are accepted for clients that send text.
func ordinalArg(args map[string]interface{}) (int, error) {
	invalid := &tasks.ValidationError{Field: "number", Message: "must be a whole task number from task_list"}

	switch v := args["number"].(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v > math.MaxInt32 || v < math.MinInt32 {
			return 0, invalid
		}
		return int(v), nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(v), "#"))
		if err != nil {
			return 0, invalid
		}
		return n, nil
	default:
		return 0, invalid
	}
}

func renderListing(listed []tasks.OrdinalTask, loc *time.Location) string {
	if len(listed) == 0 {
		return "No open tasks due today."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Today's tasks (%d):\n", len(listed))
	for _, ot := range listed {
		fmt.Fprintf(&b, "%d. %s (due %s)\n", ot.Ordinal, ot.Task.Title, ot.Task.Due.In(loc).Format("15:04"))
	}
	b.WriteString("\nUse task_complete with a number to mark a task done.")
	return b.String()
}

func formatDue(due time.Time, loc *time.Location) string {
	if due.IsZero() {
		return "none"
	}
	return "today at " + due.In(loc).Format("15:04")
}

// failure turns an engine error into a tool error result. The text shown to
// the user depends only on the error kind; details go to the logs.
func failure(ctx context.Context, sc *server.ServerContext, scope string, err error) *mcp.CallToolResult {
	outcome := engine.Outcome(err)
	common.RecordFailure(ctx, outcome, err)
	sc.Logger().Warn("Task tool failed",
		logging.Scope(scope),
		slog.String("outcome", outcome),
		logging.Err(err),
	)
	return mcp.NewToolResultError(userMessage(err))
}

// userMessage maps an error onto the text shown in chat.
func userMessage(err error) string {
	var (
		ve *tasks.ValidationError
		nf *tasks.NotFoundError
		pe *tasks.ParseError
		te *tasks.TransportError
	)
	switch {
	case errors.As(err, &ve):
		if ve.Field == "title" {
			return "Please give the task a title."
		}
		return "Please give a task number from task_list, for example 2."
	case errors.As(err, &nf):
		if nf.Reason == tasks.ReasonVanished {
			return fmt.Sprintf("Task %d was deleted elsewhere. Run task_list to refresh the numbers.", nf.Ordinal)
		}
		return fmt.Sprintf("There is no task %d in your current listing. Re-list with task_list and try again.", nf.Ordinal)
	case errors.As(err, &pe):
		return "A task on the server could not be read. Please try again later."
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return "Could not reach the task server. Please try again later."
	default:
		return "Something went wrong. Please try again later."
	}
}
