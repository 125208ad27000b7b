package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/mapleleafu/typerace/models"
	"github.com/mapleleafu/typerace/protocol"
)

// ErrTimeout is returned by Client.Request when no reply arrives in time.
var ErrTimeout = errors.New("transport: timed out waiting for server response")

// UnicastConn is the server side of the command channel.
type UnicastConn struct {
	conn *net.UDPConn
}

func ListenUnicast(addr string) (*UnicastConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &UnicastConn{conn: conn}, nil
}

func (u *UnicastConn) LocalAddr() *net.UDPAddr {
	return u.conn.LocalAddr().(*net.UDPAddr)
}

// Serve blocks reading datagrams and hands each one to handle on the calling
// goroutine. Read errors are logged and skipped; Serve returns once ctx is
// cancelled or the socket is closed.
func (u *UnicastConn) Serve(ctx context.Context, handle func(models.Message)) error {
	stop := context.AfterFunc(ctx, func() { u.conn.Close() })
	defer stop()

	buf := make([]byte, protocol.MaxPayload)
	for {
		n, addr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Error receiving unicast message: %v", err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		handle(models.Message{Payload: payload, Addr: addr})
	}
}

func (u *UnicastConn) Reply(addr *net.UDPAddr, payload []byte) error {
	if _, err := u.conn.WriteToUDP(payload, addr); err != nil {
		return fmt.Errorf("reply to %s: %w", addr, err)
	}
	return nil
}

func (u *UnicastConn) Close() error {
	return u.conn.Close()
}

// Client sends commands to the server. Every call uses its own socket, so a
// late reply to an earlier call can never be read as the answer to a later one.
type Client struct {
	server  *net.UDPAddr
	timeout time.Duration
}

func NewClient(serverAddr string, timeout time.Duration) (*Client, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", serverAddr, err)
	}
	if timeout <= 0 {
		timeout = protocol.ResponseTimeout
	}
	return &Client{server: udpAddr, timeout: timeout}, nil
}

// Request sends payload and waits for a single reply datagram. There is no retry.
func (c *Client) Request(ctx context.Context, payload []byte) ([]byte, error) {
	conn, err := net.DialUDP("udp", nil, c.server)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.server, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	ctxDeadline := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline, ctxDeadline = d, true
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("send to %s: %w", c.server, err)
	}

	buf := make([]byte, protocol.MaxPayload)
	n, err := conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if ctxDeadline {
				return nil, context.DeadlineExceeded
			}
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("receive from %s: %w", c.server, err)
	}
	return buf[:n], nil
}

// Send fires a datagram without waiting for a reply.
func (c *Client) Send(payload []byte) error {
	conn, err := net.DialUDP("udp", nil, c.server)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.server, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("send to %s: %w", c.server, err)
	}
	return nil
}
