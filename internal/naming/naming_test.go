package naming

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpHelper_AlwaysReturnsEmptySuggestion(t *testing.T) {
	h := NoOpHelper{}
	s, err := h.SuggestName(context.Background(), "_0x1a2b", Context{Role: "loop-counter"})
	require.NoError(t, err)
	assert.Equal(t, Suggestion{}, s)
}

// echoServerHandler answers every namingHelper/suggest call with a
// fixed suggestion derived from the request, so the client can be
// exercised end to end without a real naming helper process.
type echoServerHandler struct{}

func (echoServerHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Method != suggestMethod {
		return
	}
	var params suggestParams
	if req.Params != nil {
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			_ = conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{Message: err.Error()})
			return
		}
	}
	_ = conn.Reply(ctx, req.ID, suggestResult{
		Name:       "index",
		Confidence: 0.9,
		Rationale:  "used only as an array subscript in " + params.Role,
	})
}

func TestClient_SuggestNameRoundTripsOverJSONRPC(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	jsonrpc2.NewConn(context.Background(), jsonrpc2.NewPlainObjectStream(serverConn), echoServerHandler{})
	client := NewClient(clientConn, 2*time.Second)
	defer client.Close()

	s, err := client.SuggestName(context.Background(), "_0x1a2b", Context{Role: "loop-counter"})
	require.NoError(t, err)
	assert.Equal(t, "index", s.Name)
	assert.Equal(t, 0.9, s.Confidence)
	assert.Contains(t, s.Rationale, "loop-counter")
}
