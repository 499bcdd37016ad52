// Package rpc implements the streaming transport client for the update
// stream service. Requests and replies are schemaless struct documents
// carried over a gRPC server-streaming call, so the packages above it deal
// only in maps of named fields.
package rpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Options contains connection parameters for a Client.
type Options struct {
	Addr string

	// DialTimeout bounds connection establishment. Zero means dial
	// asynchronously with no bound.
	DialTimeout time.Duration

	// Optional credentials, sent as per-RPC metadata when set.
	User     string
	Password string

	// Encrypted selects TLS; KeyFile/CertFile optionally supply a client
	// key pair.
	Encrypted bool
	KeyFile   string
	CertFile  string

	// Keepalive parameters
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration

	// Additional dial options
	DialOptions []grpc.DialOption
}

// DefaultOptions returns default connection options for addr.
func DefaultOptions(addr string) Options {
	return Options{
		Addr:             addr,
		DialTimeout:      10 * time.Second,
		KeepaliveTime:    10 * time.Second,
		KeepaliveTimeout: 3 * time.Second,
	}
}

// Client is a streaming RPC client. It owns all stream iteration state; one
// streaming call may be in flight at a time.
type Client struct {
	opts   Options
	logger *logrus.Logger
	conn   *grpc.ClientConn
	stream grpc.ClientStream
}

// NewClient creates an undialed client.
func NewClient(opts Options, logger *logrus.Logger) *Client {
	return &Client{
		opts:   opts,
		logger: logger,
	}
}

// Dial establishes the connection described by the client's options.
func (c *Client) Dial(ctx context.Context) error {
	creds, err := c.transportCredentials()
	if err != nil {
		return err
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.opts.KeepaliveTime,
			Timeout:             c.opts.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	}
	dialOpts = append(dialOpts, c.opts.DialOptions...)

	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
		dialOpts = append(dialOpts, grpc.WithBlock())
	}

	conn, err := grpc.DialContext(ctx, c.opts.Addr, dialOpts...)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.opts.Addr, err)
	}
	c.conn = conn
	c.logger.Debugf("Connected to update stream server at %s", c.opts.Addr)
	return nil
}

func (c *Client) transportCredentials() (credentials.TransportCredentials, error) {
	if !c.opts.Encrypted {
		return insecure.NewCredentials(), nil
	}
	cfg := &tls.Config{}
	if c.opts.CertFile != "" && c.opts.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.opts.CertFile, c.opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return credentials.NewTLS(cfg), nil
}

// Close releases the connection. Safe to call with a stream still open.
func (c *Client) Close() error {
	c.stream = nil
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// StreamCall issues the named server-streaming method with args as the
// request document. The stream stays bound to ctx: cancelling it tears the
// stream down.
func (c *Client) StreamCall(ctx context.Context, method string, args map[string]interface{}) error {
	if c.conn == nil {
		return &Error{Code: codes.Unavailable, Msg: "client is not dialed"}
	}
	req, err := structpb.NewStruct(args)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	if c.opts.User != "" {
		ctx = metadata.AppendToOutgoingContext(ctx,
			"username", c.opts.User,
			"password", c.opts.Password,
		)
	}

	desc := &grpc.StreamDesc{
		StreamName:    path.Base(method),
		ServerStreams: true,
	}
	stream, err := c.conn.NewStream(ctx, desc, method)
	if err != nil {
		return classify(err)
	}
	if err := stream.SendMsg(req); err != nil {
		return classify(err)
	}
	if err := stream.CloseSend(); err != nil {
		return classify(err)
	}
	c.stream = stream
	return nil
}

// StreamNext pulls the next reply from the in-flight stream. It returns
// (nil, nil) on clean exhaustion, an AppError when the remote handler
// reported a failure, and an Error on RPC-layer failures.
func (c *Client) StreamNext() (map[string]interface{}, error) {
	if c.stream == nil {
		return nil, &Error{Code: codes.FailedPrecondition, Msg: "no stream in progress"}
	}
	reply := new(structpb.Struct)
	err := c.stream.RecvMsg(reply)
	if err == io.EOF {
		c.stream = nil
		return nil, nil
	}
	if err != nil {
		c.stream = nil
		return nil, classify(err)
	}
	return reply.AsMap(), nil
}
