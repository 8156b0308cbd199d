package setstream

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pior/setstream/resp"
)

var ErrConnectionClosed = errors.New("setstream: connection closed")

// Connection is a single RESP connection. Requests on a connection are
// serialized; concurrency comes from the pool.
type Connection struct {
	conn   net.Conn
	Reader *bufio.Reader
	Writer *bufio.Writer

	mu     sync.Mutex
	closed bool
}

func NewConnection(netConn net.Conn) *Connection {
	return &Connection{
		conn:   netConn,
		Reader: bufio.NewReader(netConn),
		Writer: bufio.NewWriter(netConn),
	}
}

// Send writes req and reads its reply. Error replies are returned on
// Reply.Err with a nil error. A non-nil error means the exchange failed and
// resp.ShouldCloseConnection tells whether the connection is still usable.
func (c *Connection) Send(ctx context.Context, req *resp.Request) (*resp.Reply, error) {
	replies, err := c.SendBatch(ctx, []*resp.Request{req})
	if err != nil {
		return nil, err
	}
	return replies[0], nil
}

// SendBatch pipelines reqs: it writes them all, flushes once and reads one
// reply per request. Replies are in request order. An error loses every
// reply of the batch.
func (c *Connection) SendBatch(ctx context.Context, reqs []*resp.Request) ([]*resp.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, &resp.ConnectionError{Op: "deadline", Err: err}
	}

	// A cancelled context unblocks pending I/O by moving the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	for _, req := range reqs {
		if err := resp.WriteRequest(c.Writer, req); err != nil {
			return nil, c.ioError(ctx, "write", err)
		}
	}
	if err := c.Writer.Flush(); err != nil {
		return nil, c.ioError(ctx, "write", err)
	}

	replies := make([]*resp.Reply, len(reqs))
	for i := range replies {
		reply, err := resp.ReadReply(c.Reader)
		if err != nil {
			return nil, c.ioError(ctx, "read", err)
		}
		replies[i] = reply
	}
	return replies, nil
}

// ioError prefers the context error when the context caused the failure.
func (c *Connection) ioError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return &resp.ConnectionError{Op: op, Err: ctx.Err()}
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			return &resp.ConnectionError{Op: op, Err: context.DeadlineExceeded}
		}
	}
	var state resp.ErrorWithConnectionState
	if errors.As(err, &state) {
		return err
	}
	return &resp.ConnectionError{Op: op, Err: err}
}

// Ping checks the connection with a PING round trip.
func (c *Connection) Ping(ctx context.Context) error {
	reply, err := c.Send(ctx, resp.NewRequest(resp.CmdPing))
	if err != nil {
		return err
	}
	if reply.HasError() {
		return reply.Err
	}
	return nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
