package conversation

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/pairchat/pairchat/pkg/protocol"
)

// Conn is one live transport connection to the relay. Exactly one exists
// per Manager at a time.
type Conn interface {
	// WriteFrame sends one event frame.
	WriteFrame(f *protocol.Frame) error

	// ReadFrame blocks until the next event frame arrives. It returns an
	// error once the connection is closed.
	ReadFrame() (*protocol.Frame, error)

	// SetReadDeadline bounds the next ReadFrame. The zero time means no
	// deadline.
	SetReadDeadline(t time.Time) error

	// Close closes the connection, unblocking any pending ReadFrame.
	Close() error
}

// Dialer opens an authenticated Conn to the relay at url.
type Dialer func(ctx context.Context, url, token string) (Conn, error)

// Dial is the production Dialer. It performs the websocket handshake with
// the session token in the Authorization header.
func Dial(ctx context.Context, url, token string) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	d := ws.Dialer{
		Header:  ws.HandshakeHeaderHTTP(header),
		Timeout: 10 * time.Second,
	}
	conn, br, _, err := d.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	// br holds frames the server sent during the handshake; keep reading
	// through it so none are lost.
	var rw io.ReadWriter = conn
	if br != nil {
		rw = struct {
			io.Reader
			io.Writer
		}{br, conn}
	}
	return &wsConn{conn: conn, rw: rw}, nil
}

// wsConn frames protocol events as websocket text messages over a gobwas
// client connection.
type wsConn struct {
	conn net.Conn
	rw   io.ReadWriter
	wmu  sync.Mutex
	rmu  sync.Mutex
}

func (c *wsConn) WriteFrame(f *protocol.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := wsutil.WriteClientText(c.conn, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (c *wsConn) ReadFrame() (*protocol.Frame, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	data, err := wsutil.ReadServerText(c.rw)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	var f protocol.Frame
	if err := f.Decode(data); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, nil)
	c.wmu.Unlock()
	return c.conn.Close()
}
