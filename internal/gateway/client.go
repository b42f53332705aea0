package gateway

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// #endregion

// #region types

// Request is the wire request for one capability call.
type Request struct {
	Capability string         `json:"capability"`
	Args       map[string]any `json:"args,omitempty"`
}

// Result is the wire response from a capability call.
type Result struct {
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ErrKind string          `json:"err_kind,omitempty"`
}

// #endregion types

// #region invoker

// Invoker is the transport seam for capability calls.
// *grpc.ClientConn satisfies it; tests inject a fake.
type Invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// #endregion invoker

// #region client-struct

// Client wraps the gRPC connection to the external skill service.
// It carries no routing or retry logic; callers own the retry policy.
type Client struct {
	conn    *grpc.ClientConn
	invoker Invoker
	timeout time.Duration
}

// #endregion client-struct

// #region constructor

const invokeMethod = "/hlcs.SkillService/Invoke"

// New connects to the skill service at addr. callTimeout is applied to
// calls whose context carries no deadline of its own.
func New(addr string, callTimeout time.Duration) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, invoker: conn, timeout: callTimeout}, nil
}

// NewWithInvoker creates a Client with an injected transport.
// Used for testing without a real gRPC connection.
func NewWithInvoker(inv Invoker, callTimeout time.Duration) *Client {
	return &Client{invoker: inv, timeout: callTimeout}
}

// #endregion constructor

// #region close

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region call

// Call invokes a named capability with structured arguments.
// Transport and deadline failures return *UnavailableError; a response with
// OK=false returns *CapabilityError. The payload is never substituted.
func (c *Client) Call(ctx context.Context, capability string, args map[string]any) (Result, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := Request{Capability: capability, Args: args}
	var res Result
	err := c.invoker.Invoke(ctx, invokeMethod, &req, &res, grpc.CallContentSubtype(codecName))
	if err != nil {
		return Result{}, &UnavailableError{Capability: capability, Err: err}
	}
	if !res.OK {
		return Result{}, &CapabilityError{Capability: capability, Kind: res.ErrKind}
	}
	return res, nil
}

// #endregion call

// #region retriable

// Retriable reports whether err represents a transient gateway failure
// worth another attempt under the caller's retry budget.
func Retriable(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// #endregion retriable
