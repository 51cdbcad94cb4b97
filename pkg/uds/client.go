package uds

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"github.com/yongdono/kungfu/pkg/exception"
)

const unixNetwork = "unix"

// ErrBadAck is returned when the server answers a notice with anything but an ack.
var ErrBadAck = errors.New("uds: unexpected ack")

// Client dials Unix domain sockets using a precomputed address.
type Client struct {
	addr    net.UnixAddr
	timeout time.Duration
}

// NewClient creates a client for the provided socket path.
func NewClient(path string) (*Client, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return &Client{addr: net.UnixAddr{Name: path, Net: unixNetwork}, timeout: time.Second}, nil
}

// Path returns the configured socket path.
func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.addr.Name
}

// Dial opens a Unix domain socket connection.
func (c *Client) Dial() (*net.UnixConn, error) {
	if c == nil {
		return nil, exception.ErrNilClientUDS
	}
	if c.addr.Name == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return net.DialUnix(unixNetwork, nil, &c.addr)
}

// Notify sends n over a fresh connection and waits for the ack.
func (c *Client) Notify(ctx context.Context, n Notice) error {
	conn, err := c.Dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := writeNotice(bufio.NewWriter(conn), n); err != nil {
		return err
	}
	ack, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return err
	}
	if ack != ackLine {
		return ErrBadAck
	}
	return nil
}
