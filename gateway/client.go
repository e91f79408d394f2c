package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/vsock"
)

// EnclaveClient sends one request to the enclave and decodes its reply into resp.
type EnclaveClient interface {
	Call(ctx context.Context, req any, resp any) error
}

type dialFunc func(ctx context.Context) (net.Conn, error)

// socketClient speaks the enclave framing: one JSON request per connection,
// terminated by a write half-close, answered by one JSON response.
type socketClient struct {
	dial    dialFunc
	timeout time.Duration
}

// NewVsockClient dials the enclave at cid:port over vsock.
func NewVsockClient(cid, port uint32, timeout time.Duration) EnclaveClient {
	return &socketClient{
		dial: func(context.Context) (net.Conn, error) {
			return vsock.Dial(cid, port, nil)
		},
		timeout: timeout,
	}
}

// NewTCPClient dials an enclave running in tcp mode, for local development.
func NewTCPClient(addr string, timeout time.Duration) EnclaveClient {
	var d net.Dialer
	return &socketClient{
		dial: func(ctx context.Context) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		},
		timeout: timeout,
	}
}

type closeWriter interface {
	CloseWrite() error
}

func (c *socketClient) Call(ctx context.Context, req any, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to dial enclave: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	cw, ok := conn.(closeWriter)
	if !ok {
		return fmt.Errorf("enclave connection does not support half-close")
	}
	if err := cw.CloseWrite(); err != nil {
		return fmt.Errorf("failed to close request stream: %w", err)
	}

	if err := json.NewDecoder(conn).Decode(resp); err != nil {
		return fmt.Errorf("failed to decode enclave response: %w", err)
	}
	return nil
}
