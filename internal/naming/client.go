package naming

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

// suggestMethod is the single JSON-RPC method this client ever calls;
// a naming-helper process need implement nothing else.
const suggestMethod = "namingHelper/suggest"

// suggestParams and suggestResult mirror Context and Suggestion field
// for field: the wire shape of a single SuggestName round trip.
type suggestParams struct {
	Identifier string   `json:"identifier"`
	Role       string   `json:"role"`
	Snippet    string   `json:"snippet"`
	Facts      []string `json:"facts,omitempty"`
	Language   string   `json:"language,omitempty"`
}

type suggestResult struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Client is a Helper backed by a JSON-RPC 2.0 connection to an
// out-of-process naming helper (SPEC_FULL.md §6.3), using
// sourcegraph/jsonrpc2 the way kanso's own LSP server uses it
// transitively through glsp — here promoted to a direct, concrete
// client rather than hidden behind glsp's LSP-shaped protocol handler,
// since a naming helper is a plain request/response service, not an
// editor-facing language server.
type Client struct {
	conn    *jsonrpc2.Conn
	timeout time.Duration
}

// NewClient opens a JSON-RPC 2.0 connection over rwc (typically a pipe
// to a child process, or a TCP/Unix socket connection to a standalone
// helper service), framing messages with the plain
// Content-Length-free object stream codec since there is no editor on
// the other end to require LSP's header framing. timeout bounds every
// individual SuggestName call (internal/config's
// Rename.HelperTimeout).
func NewClient(rwc io.ReadWriteCloser, timeout time.Duration) *Client {
	stream := jsonrpc2.NewPlainObjectStream(rwc)
	conn := jsonrpc2.NewConn(context.Background(), stream, noopHandler{})
	return &Client{conn: conn, timeout: timeout}
}

// SuggestName implements Helper by round-tripping a single JSON-RPC
// call, bounded by the client's configured timeout composed with
// whatever deadline ctx already carries (spec.md §5's naming-helper
// suspension point).
func (c *Client) SuggestName(ctx context.Context, identifier string, nctx Context) (Suggestion, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := suggestParams{
		Identifier: identifier,
		Role:       nctx.Role,
		Snippet:    nctx.Snippet,
		Facts:      nctx.Facts,
		Language:   nctx.Language,
	}

	var result suggestResult
	if err := c.conn.Call(callCtx, suggestMethod, params, &result); err != nil {
		return Suggestion{}, fmt.Errorf("naming: suggest %q: %w", identifier, err)
	}

	return Suggestion{Name: result.Name, Confidence: result.Confidence, Rationale: result.Rationale}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// noopHandler discards any request or notification the helper sends
// back unprompted; this client only ever initiates calls, it never
// serves them.
type noopHandler struct{}

func (noopHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {}
