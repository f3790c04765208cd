package resources

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/tasksync/internal/engine"
	"github.com/teemow/tasksync/internal/server"
	"github.com/teemow/tasksync/internal/tasks"
	"github.com/teemow/tasksync/internal/testutil"
)

func newServerContext(t *testing.T) *server.ServerContext {
	t.Helper()
	eng, err := engine.New(engine.Config{Store: testutil.NewFakeStore()})
	require.NoError(t, err)
	sc, err := server.NewServerContext(context.Background(), server.Options{Engine: eng})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func readRequest(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func TestRegisterResources_RequiresArguments(t *testing.T) {
	assert.Error(t, RegisterResources(nil, nil))
}

func TestRegisterResources_Listed(t *testing.T) {
	sc := newServerContext(t)
	srv := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithResourceCapabilities(false, false))
	require.NoError(t, RegisterResources(srv, sc))

	resp := srv.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), HelpURI)
	assert.Contains(t, string(raw), SessionURI)
}

func TestHandleSession(t *testing.T) {
	sc := newServerContext(t)
	srv := mcpserver.NewMCPServer("test", "0.0.0")
	ctx := testutil.SessionContext(context.Background(), srv, "session-9")

	read := func() map[string]interface{} {
		contents, err := handleSession(ctx, readRequest(SessionURI), sc)
		require.NoError(t, err)
		require.Len(t, contents, 1)
		text, ok := contents[0].(*mcp.TextResourceContents)
		require.True(t, ok)
		assert.NotContains(t, text.Text, "session-9")

		var data map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(text.Text), &data))
		return data
	}

	data := read()
	assert.Equal(t, false, data["hasListing"])

	sc.Engine().Cache().Rebuild("session-9", []tasks.Task{{UID: "a"}})
	data = read()
	assert.Equal(t, true, data["hasListing"])
	assert.Equal(t, float64(1), data["generation"])
}
