package task_tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/tasksync/internal/engine"
	"github.com/teemow/tasksync/internal/refcache"
	"github.com/teemow/tasksync/internal/server"
	"github.com/teemow/tasksync/internal/tasks"
	"github.com/teemow/tasksync/internal/testutil"
	"github.com/teemow/tasksync/internal/tools/common"
)

var (
	testLoc = time.FixedZone("CET", 3600)
	testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, testLoc)
)

type fixture struct {
	store *testutil.FakeStore
	sc    *server.ServerContext
	srv   *mcpserver.MCPServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewFakeStore()
	clock := func() time.Time { return testNow }
	eng, err := engine.New(engine.Config{
		Store:    store,
		Cache:    refcache.New(refcache.Config{Clock: clock}),
		Clock:    clock,
		Location: testLoc,
	})
	require.NoError(t, err)

	sc, err := server.NewServerContext(context.Background(), server.Options{Engine: eng, Store: store})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	srv := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterTaskTools(srv, sc))
	return &fixture{store: store, sc: sc, srv: srv}
}

func (f *fixture) session(id string) context.Context {
	return testutil.SessionContext(context.Background(), f.srv, id)
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func dueAt(hour, minute int) time.Time {
	return time.Date(2024, 3, 1, hour, minute, 0, 0, testLoc)
}

func TestRegisterTaskTools_RequiresArguments(t *testing.T) {
	assert.Error(t, RegisterTaskTools(nil, nil))
}

func TestRegisterTaskTools_ListsTools(t *testing.T) {
	f := newFixture(t)

	msg := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp := f.srv.HandleMessage(context.Background(), msg)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range []string{ToolAdd, ToolList, ToolComplete} {
		assert.Contains(t, string(raw), `"`+name+`"`)
	}
	assert.Contains(t, string(raw), "23:59", "help text should explain the default due time")
}

func TestTaskAdd(t *testing.T) {
	f := newFixture(t)

	result, err := handleAdd(f.session("s1"), callRequest(map[string]interface{}{"title": "  Buy milk "}), f.sc)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Task created: Buy milk")
	assert.Contains(t, text, "today at 23:59")
	assert.Equal(t, 1, f.store.CreateCalls)
}

func TestTaskAdd_BlankTitle(t *testing.T) {
	f := newFixture(t)

	for _, args := range []map[string]interface{}{
		{"title": "   "},
		{},
		{"title": 7},
	} {
		result, err := handleAdd(f.session("s1"), callRequest(args), f.sc)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, "Please give the task a title.", resultText(t, result))
	}
	assert.Equal(t, 0, f.store.CreateCalls, "blank titles must not reach the store")
}

func TestTaskList_RendersOrdinals(t *testing.T) {
	f := newFixture(t)
	f.store.Put(tasks.Task{UID: "b", Title: "Call mom", Status: tasks.StatusNeedsAction, Due: dueAt(18, 0)})
	f.store.Put(tasks.Task{UID: "a", Title: "Buy milk", Status: tasks.StatusNeedsAction, Due: dueAt(9, 30)})

	result, err := handleList(f.session("s1"), callRequest(nil), f.sc)
	require.NoError(t, err)

	expected := "Today's tasks (2):\n" +
		"1. Buy milk (due 09:30)\n" +
		"2. Call mom (due 18:00)\n" +
		"\nUse task_complete with a number to mark a task done."
	assert.Equal(t, expected, resultText(t, result))
}

func TestTaskList_Empty(t *testing.T) {
	f := newFixture(t)

	result, err := handleList(f.session("s1"), callRequest(nil), f.sc)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "No open tasks due today.", resultText(t, result))
}

func TestTaskList_TransportErrorIsGeneric(t *testing.T) {
	f := newFixture(t)
	f.store.QueryErr = &tasks.TransportError{Op: "query", Err: errors.New("dial tcp 10.0.0.1:443: secret-host unreachable")}

	result, err := handleList(f.session("s1"), callRequest(nil), f.sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)

	text := resultText(t, result)
	assert.Equal(t, "Could not reach the task server. Please try again later.", text)
	assert.NotContains(t, text, "secret-host")
}

func TestTaskComplete_Flow(t *testing.T) {
	f := newFixture(t)
	f.store.Put(tasks.Task{UID: "a", Title: "Buy milk", Status: tasks.StatusNeedsAction, Due: dueAt(9, 30)})
	f.store.Put(tasks.Task{UID: "b", Title: "Call mom", Status: tasks.StatusNeedsAction, Due: dueAt(18, 0)})
	ctx := f.session("s1")

	_, err := handleList(ctx, callRequest(nil), f.sc)
	require.NoError(t, err)

	result, err := handleComplete(ctx, callRequest(map[string]interface{}{"number": float64(2)}), f.sc)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Task completed: Call mom", resultText(t, result))

	task, ok := f.store.Get("b")
	require.True(t, ok)
	assert.Equal(t, tasks.StatusCompleted, task.Status)

	// Completing again is a no-op that still succeeds.
	result, err = handleComplete(ctx, callRequest(map[string]interface{}{"number": "#2"}), f.sc)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 1, f.store.Writes)
}

func TestTaskComplete_ScopesAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.store.Put(tasks.Task{UID: "a", Title: "Buy milk", Status: tasks.StatusNeedsAction, Due: dueAt(9, 30)})

	_, err := handleList(f.session("s1"), callRequest(map[string]interface{}{common.ScopeArg: "#kitchen"}), f.sc)
	require.NoError(t, err)

	// Same session, other channel: no listing yet.
	result, err := handleComplete(f.session("s1"), callRequest(map[string]interface{}{"number": float64(1)}), f.sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Re-list with task_list")

	// Other session, same channel name.
	result, err = handleComplete(f.session("s2"), callRequest(map[string]interface{}{"number": float64(1), common.ScopeArg: "#kitchen"}), f.sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = handleComplete(f.session("s1"), callRequest(map[string]interface{}{"number": float64(1), common.ScopeArg: "#kitchen"}), f.sc)
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestTaskComplete_Vanished(t *testing.T) {
	f := newFixture(t)
	f.store.Put(tasks.Task{UID: "a", Title: "Buy milk", Status: tasks.StatusNeedsAction, Due: dueAt(9, 30)})
	ctx := f.session("s1")

	_, err := handleList(ctx, callRequest(nil), f.sc)
	require.NoError(t, err)
	f.store.Delete("a")

	result, err := handleComplete(ctx, callRequest(map[string]interface{}{"number": float64(1)}), f.sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Task 1 was deleted elsewhere. Run task_list to refresh the numbers.", resultText(t, result))
}

func TestTaskComplete_InvalidNumber(t *testing.T) {
	f := newFixture(t)

	for _, args := range []map[string]interface{}{
		{"number": 1.5},
		{"number": "two"},
		{},
	} {
		result, err := handleComplete(f.session("s1"), callRequest(args), f.sc)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.True(t, strings.HasPrefix(resultText(t, result), "Please give a task number"))
	}
	assert.Equal(t, 0, f.store.SetStatusCalls)
}

func TestOrdinalArg(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    int
		wantErr bool
	}{
		{"float", float64(3), 3, false},
		{"int", 4, 4, false},
		{"string", "5", 5, false},
		{"hash prefix", " #6 ", 6, false},
		{"zero passes through", float64(0), 0, false},
		{"fraction", 2.5, 0, true},
		{"text", "abc", 0, true},
		{"missing", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ordinalArg(map[string]interface{}{"number": tt.value})
			if tt.wantErr {
				var ve *tasks.ValidationError
				assert.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"stale", &tasks.NotFoundError{Reason: tasks.ReasonStaleOrdinal, Ordinal: 3}, "no task 3"},
		{"vanished", &tasks.NotFoundError{Reason: tasks.ReasonVanished, Ordinal: 1, UID: "x"}, "deleted elsewhere"},
		{"parse", &tasks.ParseError{Reason: "bad DUE", Raw: []byte("BEGIN:VTODO")}, "could not be read"},
		{"transport", &tasks.TransportError{Op: "put"}, "Could not reach"},
		{"deadline", context.DeadlineExceeded, "Could not reach"},
		{"other", errors.New("boom"), "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := userMessage(tt.err)
			assert.Contains(t, msg, tt.contains)
			assert.NotContains(t, msg, "BEGIN:VTODO")
		})
	}
}
