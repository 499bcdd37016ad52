package updatestream

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"updatestream-cdc/internal/rpc"
)

// serveUpdateStreamMethod is the fixed streaming entry point of the
// replication service.
const serveUpdateStreamMethod = "/updatestream.UpdateStream/ServeUpdateStream"

// Position identifies a point in the replication log. GroupId is the
// server-assigned coordinate used to start and resume a stream. ServerId is
// advisory and local-only; it is never sent to the server.
type Position struct {
	GroupId  string `json:"group_id" yaml:"group_id"`
	ServerId string `json:"server_id,omitempty" yaml:"server_id"`
}

// Transport is the RPC client a Conn drives. The transport owns all stream
// iteration state; StreamNext returns (nil, nil) on clean exhaustion.
type Transport interface {
	Dial(ctx context.Context) error
	Close() error
	StreamCall(ctx context.Context, method string, args map[string]interface{}) error
	StreamNext() (map[string]interface{}, error)
}

// Conn follows one update stream over a single transport connection. A Conn
// serves one stream at a time and is driven synchronously by a single
// caller; it holds no locking of its own. There is no retry or reconnect
// here: any stream failure ends the stream, and resuming means dialing a
// fresh Conn and starting from a checkpointed position.
type Conn struct {
	transport Transport
	logger    *logrus.Logger
	streaming bool
}

// NewConn wraps an undialed transport client.
func NewConn(transport Transport, logger *logrus.Logger) *Conn {
	return &Conn{
		transport: transport,
		logger:    logger,
	}
}

// NewStreamConn creates a Conn over the standard gRPC transport with the
// given connection parameters. user, password, keyFile and certFile may be
// empty; encrypted selects TLS.
func NewStreamConn(addr string, timeout time.Duration, user, password string, encrypted bool, keyFile, certFile string, logger *logrus.Logger) *Conn {
	opts := rpc.DefaultOptions(addr)
	opts.DialTimeout = timeout
	opts.User = user
	opts.Password = password
	opts.Encrypted = encrypted
	opts.KeyFile = keyFile
	opts.CertFile = certFile
	return NewConn(rpc.NewClient(opts, logger), logger)
}

// Dial establishes the transport connection. It must not be called on an
// already-open Conn.
func (c *Conn) Dial(ctx context.Context) error {
	if err := c.transport.Dial(ctx); err != nil {
		return fmt.Errorf("update stream: dial: %w", err)
	}
	c.logger.Debug("update stream: connected")
	return nil
}

// Close releases the transport connection. Safe to call while a stream is
// still in progress.
func (c *Conn) Close() error {
	c.streaming = false
	return c.transport.Close()
}

// StreamStart issues the streaming call at pos and pulls the first reply.
// Only the group coordinate goes on the wire; ServerId stays local. A nil
// event with nil error means the stream ended cleanly before producing
// anything.
func (c *Conn) StreamStart(ctx context.Context, pos Position) (*ChangeEvent, error) {
	args := map[string]interface{}{"GroupId": pos.GroupId}
	if err := c.transport.StreamCall(ctx, serveUpdateStreamMethod, args); err != nil {
		return nil, classifyStreamError(c.logger, err)
	}
	c.streaming = true
	return c.next()
}

// StreamNext pulls the next reply from the stream started by StreamStart.
// A nil event with nil error means the stream is exhausted. Calling it
// without a stream in progress fails with ErrInvalidState.
func (c *Conn) StreamNext() (*ChangeEvent, error) {
	if !c.streaming {
		return nil, ErrInvalidState
	}
	return c.next()
}

// next is the single pull site; StreamStart and StreamNext apply the same
// error classification through it.
func (c *Conn) next() (*ChangeEvent, error) {
	reply, err := c.transport.StreamNext()
	if err != nil {
		c.streaming = false
		return nil, classifyStreamError(c.logger, err)
	}
	if reply == nil {
		c.streaming = false
		return nil, nil
	}
	return DecodeEvent(reply)
}
